// Package services содержит логику регистрации, входа по паролю и через Google.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/drivemetrics/internal/lib/clock"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/jwt"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/password"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
	"github.com/magabrotheeeer/drivemetrics/internal/storage/repository"
)

var (
	// ErrEmailTaken пользователь с таким email уже есть.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials неверный email или пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrGoogleDisabled вход через Google не настроен.
	ErrGoogleDisabled = errors.New("google sign-in is not configured")
	// ErrGoogleIdentity Google не подтвердил личность пользователя.
	ErrGoogleIdentity = errors.New("google identity rejected")
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByGoogleSub(ctx context.Context, sub string) (*models.User, error)
	LinkGoogleAccount(ctx context.Context, userID, sub string) error
}

// IdentityProvider внешний OpenID Connect провайдер.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// Identity проверенная личность из ID-токена.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// RegisterInput данные регистрации.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

// Session результат успешного входа.
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// AuthService отвечает за регистрацию, авторизацию и валидацию JWT.
type AuthService struct {
	users    UserRepository
	jwtMaker jwt.Maker
	google   IdentityProvider
	clock    clock.Clock
	log      *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService. google может быть nil.
func NewAuthService(users UserRepository, jwtMaker jwt.Maker, google IdentityProvider,
	clk clock.Clock, log *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
		google:   google,
		clock:    clk,
		log:      log,
	}
}

// Register создаёт пользователя в пробном периоде и сразу выдаёт токен.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	const op = "services.auth.Register"

	hashed, err := password.GetHash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hashed,
		FullName:     strings.TrimSpace(in.FullName),
		TrialStartAt: s.clock.Now(),
	}
	if in.Phone != "" {
		phone := in.Phone
		user.Phone = &phone
	}

	created, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user registered", slog.String("op", op), sl.UserID(created.ID))
	return s.session(op, created)
}

// Login проверяет пароль пользователя и генерирует JWT.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (*Session, error) {
	const op = "services.auth.Login"

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// у пользователей, пришедших через Google, пароля нет
	if user.PasswordHash == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return s.session(op, user)
}

// ValidateToken проверяет JWT и возвращает его claims.
func (s *AuthService) ValidateToken(_ context.Context, token string) (*jwt.Claims, error) {
	return s.jwtMaker.ParseToken(token)
}

// GoogleAuthURL возвращает адрес согласия Google и случайный state,
// который вызывающая сторона сохраняет до колбэка.
func (s *AuthService) GoogleAuthURL() (authURL, state string, err error) {
	if s.google == nil {
		return "", "", ErrGoogleDisabled
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("services.auth.GoogleAuthURL: %w", err)
	}
	state = base64.RawURLEncoding.EncodeToString(b)
	return s.google.AuthCodeURL(state), state, nil
}

// GoogleSignIn обменивает код авторизации на личность и находит пользователя:
// по Google-аккаунту, затем по email с привязкой аккаунта, иначе создаёт нового в trial.
func (s *AuthService) GoogleSignIn(ctx context.Context, code string) (*Session, error) {
	const op = "services.auth.GoogleSignIn"
	if s.google == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrGoogleDisabled)
	}

	id, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrGoogleIdentity, err)
	}
	if id.Subject == "" || id.Email == "" || !id.EmailVerified {
		return nil, fmt.Errorf("%s: %w: email missing or not verified", op, ErrGoogleIdentity)
	}

	user, err := s.users.GetUserByGoogleSub(ctx, id.Subject)
	if err == nil {
		return s.session(op, user)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err = s.users.GetUserByEmail(ctx, id.Email)
	switch {
	case err == nil:
		if err := s.users.LinkGoogleAccount(ctx, user.ID, id.Subject); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sub := id.Subject
		user.GoogleSub = &sub
		s.log.Info("google account linked", slog.String("op", op), sl.UserID(user.ID))
		return s.session(op, user)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := id.Subject
	user, err = s.users.CreateUser(ctx, models.User{
		Email:        strings.ToLower(id.Email),
		FullName:     id.Name,
		GoogleSub:    &sub,
		TrialStartAt: s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user registered via google", slog.String("op", op), sl.UserID(user.ID))
	return s.session(op, user)
}

func (s *AuthService) session(op string, user *models.User) (*Session, error) {
	token, err := s.jwtMaker.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Session{Token: token, User: user}, nil
}
