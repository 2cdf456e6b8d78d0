package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/mediagallery/backend/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleIssuer = "https://accounts.google.com"

// GoogleProfile is the subset of the Google identity this application uses.
type GoogleProfile struct {
	Email         string
	Name          string
	EmailVerified bool
}

// GoogleAuthenticator abstracts the external identity provider so handlers
// can be exercised without network access.
type GoogleAuthenticator interface {
	VerifyIDToken(ctx context.Context, rawToken string) (*GoogleProfile, error)
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*GoogleProfile, error)
}

type GoogleService struct {
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
}

// NewGoogleService performs OIDC discovery against Google once at startup.
func NewGoogleService(ctx context.Context, cfg config.GoogleConfig) (*GoogleService, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google client id is not configured")
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery failed: %w", err)
	}

	return &GoogleService{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}, nil
}

func (s *GoogleService) VerifyIDToken(ctx context.Context, rawToken string) (*GoogleProfile, error) {
	idToken, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var claims struct {
		Email         string `json:"email"`
		Name          string `json:"name"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, errors.New("google token carries no email claim")
	}

	return &GoogleProfile{
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}, nil
}

func (s *GoogleService) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange swaps an authorization code for tokens and verifies the embedded
// ID token.
func (s *GoogleService) Exchange(ctx context.Context, code string) (*GoogleProfile, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("token response carries no id_token")
	}

	return s.VerifyIDToken(ctx, rawIDToken)
}
