// Package api wires the portal's HTTP routes.
//
// Everything except the health checks and the sign-in flow sits behind the session
// middleware, which resolves the identity and ensures the directory entry before
// any role check. Pages that need review rights additionally pass through
// RequireAction.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gdg-portal/permission-portal/internal/api/admin"
	"github.com/gdg-portal/permission-portal/internal/api/member"
	"github.com/gdg-portal/permission-portal/internal/api/session"
	"github.com/gdg-portal/permission-portal/internal/api/views"
	"github.com/gdg-portal/permission-portal/internal/auth"
	"github.com/gdg-portal/permission-portal/internal/config"
	"github.com/gdg-portal/permission-portal/internal/crypto"
	"github.com/gdg-portal/permission-portal/internal/middleware"
	"github.com/gdg-portal/permission-portal/internal/services"
	"github.com/gin-gonic/gin"
)

// Version is reported by /version and the version subcommand.
var Version = "0.1.0"

// Pinger is satisfied by *sql.DB and *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Dependencies are the collaborators the router needs. Provider and Limiter
// may be nil.
type Dependencies struct {
	DB        Pinger
	Directory *services.Directory
	Ledger    *services.Ledger
	AuditLog  *services.AuditLog
	Provider  session.Authenticator
	Limiter   middleware.Limiter
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, error) {
	tmpl, err := views.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	cipher, err := crypto.StateCipherFromSecret(auth.GetJWTSecret())
	if err != nil {
		return nil, fmt.Errorf("failed to derive state cipher: %w", err)
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	var signOutOrigin string
	if deps.Provider != nil {
		signOutOrigin = middleware.OriginOf(deps.Provider.EndSessionEndpoint())
	}
	router.Use(middleware.SecurityHeadersMiddleware(
		middleware.DefaultSecurityHeadersConfig(cfg.Security.TLS.Enabled, signOutOrigin)))
	router.Use(CORSMiddleware(cfg))

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.DB))
	router.GET("/version", versionHandler())

	sessionCfg := cfg.Auth.Session
	sessionHandlers := session.NewHandlers(cfg, deps.Provider, cipher)
	memberHandlers := member.NewHandlers(deps.Ledger, deps.Directory)
	adminHandlers := admin.NewHandlers(deps.Ledger, deps.Directory, deps.AuditLog)

	web := router.Group("/")
	web.Use(middleware.RateLimitMiddleware(deps.Limiter))
	web.Use(middleware.NoStoreMiddleware())
	{
		web.GET("/sign-in", sessionHandlers.SignInPage())
		web.GET("/auth/login", sessionHandlers.Login())
		web.GET("/auth/callback", sessionHandlers.Callback())
		web.POST("/sign-out", sessionHandlers.SignOut())
		web.GET("/sign-in/dev", session.DevModeMiddleware(), sessionHandlers.DevSignIn())

		signedIn := web.Group("/")
		signedIn.Use(middleware.SessionMiddleware(sessionCfg.CookieName, sessionCfg.Secure, deps.Directory))
		{
			signedIn.GET("/", landingHandler())

			memberGroup := signedIn.Group("/member")
			{
				memberGroup.GET("", middleware.RequireAction(auth.ActionListOwn), memberHandlers.Page())
				memberGroup.POST("/requests", middleware.RequireAction(auth.ActionSubmitRequest), memberHandlers.SubmitRequest())
				memberGroup.POST("/position", middleware.RequireAction(auth.ActionSetPosition), memberHandlers.SetPosition())
			}

			adminGroup := signedIn.Group("/admin")
			{
				adminGroup.GET("", middleware.RequireAction(auth.ActionReviewRequests), adminHandlers.Page())
				adminGroup.POST("/requests/:id/status", middleware.RequireAction(auth.ActionTransitionRequest), adminHandlers.SetStatus())
			}
		}
	}

	return router, nil
}

// landingHandler sends reviewers to the admin view and everyone else to their
// own requests.
func landingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if auth.Authorize(user.Role, auth.ActionReviewRequests) {
			c.Redirect(http.StatusFound, "/admin")
			return
		}
		c.Redirect(http.StatusFound, "/member")
	}
}

// healthCheckHandler reports liveness including database connectivity.
func healthCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler gates traffic on the database answering within two seconds.
func readinessHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{}
		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"version": Version})
	}
}

// LoggerMiddleware emits one structured record per request. The handler set up
// by telemetry.SetupLogger decides between JSON and text output.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.GetRequestID(c)),
		}
		if userID := c.GetString(middleware.UserIDKey); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if cfg.Logging.Level == "debug" {
			attrs = append(attrs, slog.String("user_agent", c.Request.UserAgent()))
		}
		slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

// CORSMiddleware answers cross-origin requests from the configured origins.
// The portal serves its own pages, so by default no origin is allowed.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, OPTIONS"
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID")
			c.Header("Access-Control-Max-Age", "3600")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
