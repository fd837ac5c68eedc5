package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/tmcfarlane/gatehouse/internal/auth"
	"github.com/tmcfarlane/gatehouse/internal/db"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// GoogleConfig holds the Google OAuth client settings.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Issuer overrides the OIDC issuer for tests.
	Issuer string
}

// Google authenticates users against Google. The ID token returned by
// the code exchange is verified against Google's published keys rather
// than trusting the userinfo endpoint.
type Google struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogle discovers Google's OIDC configuration and builds the flow.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = googleIssuer
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("google: failed to discover provider: %w", err)
	}

	return &Google{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// Name returns the provider kind.
func (g *Google) Name() db.Provider {
	return db.ProviderGoogle
}

// AuthCodeURL returns Google's authorization URL. Offline access is
// requested so a refresh token arrives on first consent.
func (g *Google) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the code for tokens, verifies the ID token, and
// extracts the profile claims.
func (g *Google) Exchange(ctx context.Context, code string) (auth.Assertion, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return auth.Assertion{}, fmt.Errorf("google: failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return auth.Assertion{}, errors.New("google: no id_token in token response")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return auth.Assertion{}, fmt.Errorf("google: failed to verify id_token: %w", err)
	}

	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return auth.Assertion{}, fmt.Errorf("google: failed to parse claims: %w", err)
	}

	if claims.Email == "" {
		return auth.Assertion{}, auth.ErrMissingEmail
	}

	return auth.Assertion{
		Provider:     db.ProviderGoogle,
		SubjectID:    claims.Sub,
		Email:        claims.Email,
		DisplayName:  claims.Name,
		Avatar:       claims.Picture,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}, nil
}

var _ Flow = (*Google)(nil)
