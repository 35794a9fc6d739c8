package oidc

import (
	"context"
	"strings"
	"testing"

	"github.com/gdg-portal/permission-portal/internal/config"
	"golang.org/x/oauth2"
)

// newMockOIDCProvider constructs an OIDCProvider directly without network calls,
// pointing OAuth2 endpoints at an unreachable URL so error paths work correctly.
func newMockOIDCProvider() *OIDCProvider {
	return &OIDCProvider{
		config: &oauth2.Config{
			ClientID:     "portal-client",
			ClientSecret: "portal-secret",
			RedirectURL:  "http://localhost:8080/auth/callback",
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://idp.example.com/authorize",
				TokenURL: "http://127.0.0.1:1/token", // port 1: always refused
			},
		},
	}
}

func TestNewOIDCProvider_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.OIDCConfig
	}{
		{"disabled", config.OIDCConfig{Enabled: false}},
		{"missing issuer", config.OIDCConfig{Enabled: true, ClientID: "c", ClientSecret: "s"}},
		{"missing client id", config.OIDCConfig{Enabled: true, IssuerURL: "https://idp", ClientSecret: "s"}},
		{"missing client secret", config.OIDCConfig{Enabled: true, IssuerURL: "https://idp", ClientID: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOIDCProvider(context.Background(), &tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// AuthURL / EndSessionEndpoint
// ---------------------------------------------------------------------------

func TestAuthURL(t *testing.T) {
	p := newMockOIDCProvider()
	url := p.AuthURL("state-abc")
	for _, want := range []string{"state=state-abc", "client_id=portal-client", "response_type=code"} {
		if !strings.Contains(url, want) {
			t.Errorf("AuthURL() = %q, missing %q", url, want)
		}
	}
}

func TestEndSessionEndpoint_NoDiscovery(t *testing.T) {
	if got := newMockOIDCProvider().EndSessionEndpoint(); got != "" {
		t.Errorf("EndSessionEndpoint() = %q, want empty", got)
	}
}

// ---------------------------------------------------------------------------
// Code exchange
// ---------------------------------------------------------------------------

func TestExchangeCode_NetworkError(t *testing.T) {
	p := newMockOIDCProvider()
	if _, err := p.ExchangeCode(context.Background(), "some-code"); err == nil {
		t.Error("ExchangeCode expected error for unreachable token endpoint, got nil")
	}
}

func TestAuthenticate_NetworkError(t *testing.T) {
	p := newMockOIDCProvider()
	if _, err := p.Authenticate(context.Background(), "some-code"); err == nil {
		t.Error("Authenticate expected error for unreachable token endpoint, got nil")
	}
}

// ---------------------------------------------------------------------------
// Claims → Identity
// ---------------------------------------------------------------------------

func TestIdentityFromClaims(t *testing.T) {
	t.Run("given and family name", func(t *testing.T) {
		id, err := identityFromClaims(idTokenClaims{
			Sub: "sub-1", Email: "ada@example.com", GivenName: "Ada", FamilyName: "Lovelace", Name: "ignored",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.ID != "sub-1" || id.FirstName != "Ada" || id.LastName != "Lovelace" {
			t.Errorf("identity = %+v", id)
		}
	})

	t.Run("falls back to splitting name", func(t *testing.T) {
		id, err := identityFromClaims(idTokenClaims{Sub: "sub-2", Email: "grace@example.com", Name: "Grace Hopper"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id.FirstName != "Grace" || id.LastName != "Hopper" {
			t.Errorf("name = %q %q", id.FirstName, id.LastName)
		}
	})

	t.Run("missing sub", func(t *testing.T) {
		if _, err := identityFromClaims(idTokenClaims{Email: "x@example.com"}); err == nil {
			t.Error("expected error for missing sub")
		}
	})

	t.Run("missing email", func(t *testing.T) {
		if _, err := identityFromClaims(idTokenClaims{Sub: "sub-3"}); err == nil {
			t.Error("expected error for missing email")
		}
	})
}
