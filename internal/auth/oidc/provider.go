// Package oidc implements OpenID Connect sign-in for the portal.
// It handles OIDC service discovery, the authorization code exchange, and turning the
// verified ID token into an auth.Identity.
package oidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gdg-portal/permission-portal/internal/auth"
	"github.com/gdg-portal/permission-portal/internal/config"
	"golang.org/x/oauth2"
)

// OIDCProvider wraps the generic OIDC provider
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
	provider *oidc.Provider
}

// NewOIDCProvider initializes a new OIDC provider. ctx bounds the discovery request.
func NewOIDCProvider(ctx context.Context, cfg *config.OIDCConfig) (*OIDCProvider, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("OIDC is not enabled")
	}

	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("OIDC issuer URL is required")
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("OIDC client ID is required")
	}

	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC client secret is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.Scopes,
	}

	return &OIDCProvider{
		verifier: verifier,
		config:   oauth2Config,
		provider: provider,
	}, nil
}

// AuthURL returns the OAuth2 authorization URL
func (p *OIDCProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// EndSessionEndpoint returns the provider's end_session_endpoint from the discovery
// document, or "" if none is advertised.
func (p *OIDCProvider) EndSessionEndpoint() string {
	if p.provider == nil {
		return ""
	}
	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := p.provider.Claims(&claims); err != nil {
		return ""
	}
	return claims.EndSessionEndpoint
}

// Authenticate exchanges the authorization code, verifies the returned ID token and
// extracts the identity from it.
func (p *OIDCProvider) Authenticate(ctx context.Context, code string) (auth.Identity, error) {
	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return auth.Identity{}, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return auth.Identity{}, fmt.Errorf("token response has no id_token")
	}

	idToken, err := p.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return auth.Identity{}, err
	}
	return ExtractIdentity(idToken)
}

// ExchangeCode exchanges the authorization code for tokens
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	return token, nil
}

// VerifyIDToken verifies the ID token signature, audience and expiry
func (p *OIDCProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return idToken, nil
}

// idTokenClaims are the standard claims the portal reads
type idTokenClaims struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// ExtractIdentity extracts the user's identity from a verified ID token
func ExtractIdentity(idToken *oidc.IDToken) (auth.Identity, error) {
	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return auth.Identity{}, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	return identityFromClaims(claims)
}

func identityFromClaims(c idTokenClaims) (auth.Identity, error) {
	if c.Sub == "" {
		return auth.Identity{}, fmt.Errorf("ID token missing 'sub' claim")
	}
	if c.Email == "" {
		return auth.Identity{}, fmt.Errorf("ID token missing 'email' claim")
	}

	first, last := c.GivenName, c.FamilyName
	if first == "" && last == "" {
		first, last = auth.SplitName(c.Name)
	}

	return auth.Identity{
		ID:        c.Sub,
		Email:     c.Email,
		FirstName: first,
		LastName:  last,
	}, nil
}
