// Package session implements the sign-in flow: the OIDC redirect and callback,
// sign-out, and the development sign-in used without an identity provider.
package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gdg-portal/permission-portal/internal/auth"
	"github.com/gdg-portal/permission-portal/internal/config"
	"github.com/gdg-portal/permission-portal/internal/crypto"
	"github.com/gin-gonic/gin"
)

const (
	stateCookie = "portal_oauth_state"
	stateTTL    = 10 * time.Minute
)

// Authenticator is the identity provider as seen by the sign-in flow.
type Authenticator interface {
	AuthURL(state string) string
	Authenticate(ctx context.Context, code string) (auth.Identity, error)
	EndSessionEndpoint() string
}

// Handlers serves the sign-in pages.
type Handlers struct {
	cfg      *config.Config
	provider Authenticator
	cipher   *crypto.StateCipher
}

// NewHandlers creates the sign-in handlers. provider may be nil when no identity
// provider is configured; only development sign-in is then possible.
func NewHandlers(cfg *config.Config, provider Authenticator, cipher *crypto.StateCipher) *Handlers {
	return &Handlers{cfg: cfg, provider: provider, cipher: cipher}
}

// SignInPage renders the sign-in page. A browser that already holds a valid
// session goes straight to the landing page.
func (h *Handlers) SignInPage() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie(h.cfg.Auth.Session.CookieName); err == nil {
			if _, err := auth.ResolveIdentity(token); err == nil {
				c.Redirect(http.StatusFound, "/")
				return
			}
		}

		c.HTML(http.StatusOK, "sign_in.html", gin.H{
			"Title":      "Sign in",
			"Error":      c.Query("error"),
			"SSOEnabled": h.provider != nil,
			"DevMode":    IsDevMode(),
		})
	}
}

// Login starts the authorization code flow. The state travels in a sealed,
// short-lived cookie so no server-side session store is needed.
func (h *Handlers) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.provider == nil {
			c.Redirect(http.StatusFound, "/sign-in?error="+url.QueryEscape("Single sign-on is not configured."))
			return
		}

		state, err := crypto.RandomToken(32)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to generate oauth state", "error", err)
			c.String(http.StatusInternalServerError, "Failed to start sign-in")
			return
		}
		sealed, err := h.cipher.SealWithExpiry(state, stateTTL)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to seal oauth state", "error", err)
			c.String(http.StatusInternalServerError, "Failed to start sign-in")
			return
		}

		h.setCookie(c, stateCookie, sealed, int(stateTTL.Seconds()))
		c.Redirect(http.StatusFound, h.provider.AuthURL(state))
	}
}

// Callback completes the authorization code flow and issues the session cookie.
func (h *Handlers) Callback() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		fail := func(msg string, attrs ...any) {
			slog.WarnContext(ctx, "sign-in failed: "+msg, attrs...)
			c.Redirect(http.StatusFound, "/sign-in?error="+url.QueryEscape(msg))
		}

		if h.provider == nil {
			fail("Single sign-on is not configured.")
			return
		}
		if e := c.Query("error"); e != "" {
			fail("The identity provider refused the sign-in.", "provider_error", e)
			return
		}

		sealed, err := c.Cookie(stateCookie)
		h.setCookie(c, stateCookie, "", -1)
		if err != nil {
			fail("Sign-in session expired. Please try again.")
			return
		}
		want, err := h.cipher.OpenWithExpiry(sealed)
		if err != nil || want == "" || c.Query("state") != want {
			fail("Sign-in session expired. Please try again.", "error", err)
			return
		}

		identity, err := h.provider.Authenticate(ctx, c.Query("code"))
		if err != nil {
			fail("Could not verify your identity.", "error", err)
			return
		}

		if err := h.startSession(c, identity); err != nil {
			fail("Could not start your session.", "error", err)
			return
		}
		slog.InfoContext(ctx, "user signed in", "user_id", identity.ID)
		c.Redirect(http.StatusFound, "/")
	}
}

// SignOut clears the session and, when the provider advertises one, continues
// to its end-session endpoint so the single sign-on session ends too.
func (h *Handlers) SignOut() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.setCookie(c, h.cfg.Auth.Session.CookieName, "", -1)

		target := "/sign-in"
		if h.provider != nil {
			if endSession := h.provider.EndSessionEndpoint(); endSession != "" {
				if u, err := url.Parse(endSession); err == nil {
					q := u.Query()
					q.Set("post_logout_redirect_uri", h.cfg.Server.GetPublicURL()+"/sign-in")
					q.Set("client_id", h.cfg.Auth.OIDC.ClientID)
					u.RawQuery = q.Encode()
					target = u.String()
				}
			}
		}
		c.Redirect(http.StatusFound, target)
	}
}

func (h *Handlers) startSession(c *gin.Context, identity auth.Identity) error {
	ttl := h.cfg.Auth.Session.TTL
	token, err := auth.GenerateSessionToken(identity, ttl)
	if err != nil {
		return err
	}
	h.setCookie(c, h.cfg.Auth.Session.CookieName, token, int(ttl.Seconds()))
	return nil
}

func (h *Handlers) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.cfg.Auth.Session.Secure, true)
}
