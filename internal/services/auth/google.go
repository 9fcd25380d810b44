package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/magabrotheeeer/drivemetrics/internal/config"
)

// GoogleIssuer издатель ID-токенов Google.
const GoogleIssuer = "https://accounts.google.com"

// GoogleProvider вход через Google по OpenID Connect.
type GoogleProvider struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogleProvider загружает discovery-документ Google.
func NewGoogleProvider(ctx context.Context, cfg config.Google) (*GoogleProvider, error) {
	return NewOIDCProvider(ctx, GoogleIssuer, cfg)
}

// NewOIDCProvider настраивает провайдера для произвольного издателя.
func NewOIDCProvider(ctx context.Context, issuer string, cfg config.Google) (*GoogleProvider, error) {
	const op = "services.auth.NewOIDCProvider"

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// AuthCodeURL адрес страницы согласия.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Exchange обменивает код на токены и проверяет подпись ID-токена.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	const op = "services.auth.Exchange"

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("missing id_token"))
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Identity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}
