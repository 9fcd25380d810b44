// Package google HTTP-обработчики входа через Google (OAuth 2.0 + OpenID Connect).
//
// Start перенаправляет пользователя на страницу согласия Google и запоминает
// state в cookie. Callback сверяет state, обменивает код на ID-токен и выдаёт
// собственный JWT сервиса.
package google

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/drivemetrics/internal/http/response"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	auth "github.com/magabrotheeeer/drivemetrics/internal/services/auth"
)

// StateCookie имя cookie с параметром state.
const StateCookie = "oauth_state"

const stateTTL = 5 * time.Minute

// Service вход через Google.
type Service interface {
	GoogleAuthURL() (authURL, state string, err error)
	GoogleSignIn(ctx context.Context, code string) (*auth.Session, error)
}

// StartHandler обрабатывает GET /auth/google.
type StartHandler struct {
	log     *slog.Logger
	service Service
}

// NewStart создает StartHandler.
func NewStart(log *slog.Logger, service Service) *StartHandler {
	return &StartHandler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Вход через Google
// @Description Перенаправляет на страницу согласия Google.
// @Tags Auth
// @Success 302
// @Failure 404 {object} response.ErrorResponse "Вход через Google не настроен"
// @Router /auth/google [get]
func (h *StartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.google.start"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	authURL, state, err := h.service.GoogleAuthURL()
	if err != nil {
		if errors.Is(err, auth.ErrGoogleDisabled) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("google sign-in is not available"))
			return
		}
		log.Error("failed to build google auth url", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler обрабатывает GET /auth/google/callback.
type CallbackHandler struct {
	log         *slog.Logger
	service     Service
	frontendURL string
}

// NewCallback создает CallbackHandler. Если frontendURL пуст, сессия
// возвращается в JSON вместо перенаправления.
func NewCallback(log *slog.Logger, service Service, frontendURL string) *CallbackHandler {
	return &CallbackHandler{
		log:         log,
		service:     service,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// ServeHTTP godoc
// @Summary Возврат из Google
// @Description Сверяет state, проверяет ID-токен Google и выдаёт JWT.
// @Tags Auth
// @Produce  json
// @Param code query string true "Код авторизации"
// @Param state query string true "State из cookie"
// @Success 200 {object} response.Response{data=auth.Session}
// @Success 302
// @Failure 400 {object} response.ErrorResponse "Неверный state или код"
// @Failure 403 {object} response.ErrorResponse "Google не подтвердил email"
// @Failure 404 {object} response.ErrorResponse "Вход через Google не настроен"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/google/callback [get]
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.google.callback"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		log.Info("google consent declined", slog.String("error", e))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("google sign-in was cancelled"))
		return
	}

	cookie, err := r.Cookie(StateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		log.Warn("oauth state mismatch")
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid oauth state"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: StateCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	code := q.Get("code")
	if code == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing authorization code"))
		return
	}

	session, err := h.service.GoogleSignIn(r.Context(), code)
	switch {
	case errors.Is(err, auth.ErrGoogleDisabled):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("google sign-in is not available"))
		return
	case errors.Is(err, auth.ErrGoogleIdentity):
		log.Warn("google identity rejected", sl.Err(err))
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("google account email is not verified"))
		return
	case err != nil:
		log.Error("google sign-in failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}

	log.Info("google sign-in success", sl.UserID(session.User.ID))
	if h.frontendURL == "" {
		render.JSON(w, r, response.StatusOKWithData(session))
		return
	}
	http.Redirect(w, r, h.frontendURL+"/auth/callback#token="+url.QueryEscape(session.Token), http.StatusFound)
}
