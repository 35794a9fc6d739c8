package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gdg-portal/permission-portal/internal/audit"
	"github.com/gdg-portal/permission-portal/internal/auth/oidc"
	"github.com/gdg-portal/permission-portal/internal/config"
	"github.com/gdg-portal/permission-portal/internal/db/repositories"
	"github.com/gdg-portal/permission-portal/internal/middleware"
	"github.com/gdg-portal/permission-portal/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// BackgroundServices holds the resources started alongside the router that
// must be released on shutdown, after the HTTP server has drained.
type BackgroundServices struct {
	stopLimiter func()
	ledger      *services.Ledger
	shippers    *audit.MultiShipper
}

// shipDrainTimeout bounds how long Shutdown waits for in-flight audit
// shipments before closing the shippers.
const shipDrainTimeout = 20 * time.Second

// Shutdown releases the rate limiter backend, waits for in-flight audit
// shipments and then flushes the audit shippers.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.stopLimiter != nil {
		bg.stopLimiter()
	}
	if bg.ledger != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shipDrainTimeout)
		if !bg.ledger.WaitForShipments(ctx) {
			slog.Warn("audit shipments still in flight at shutdown")
		}
		cancel()
	}
	if bg.shippers != nil {
		if err := bg.shippers.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// Build assembles repositories, services and the identity provider from cfg and
// returns the configured router.
func Build(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*gin.Engine, *BackgroundServices, error) {
	userRepo := repositories.NewUserRepository(db)
	requestRepo := repositories.NewRequestRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	shippers, err := audit.NewMultiShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure audit shippers: %w", err)
	}
	if shippers.Len() > 0 {
		slog.Info("audit shipping enabled", "shippers", shippers.Len())
	}

	limiter, stopLimiter, err := middleware.NewLimiter(cfg)
	if err != nil {
		_ = shippers.Close()
		return nil, nil, err
	}
	bg := &BackgroundServices{stopLimiter: stopLimiter, shippers: shippers}

	var shipper services.AuditShipper
	if shippers.Len() > 0 {
		shipper = shippers
	}

	ledger := services.NewLedger(requestRepo, shipper)
	bg.ledger = ledger

	deps := Dependencies{
		DB:        db,
		Directory: services.NewDirectory(userRepo),
		Ledger:    ledger,
		AuditLog:  services.NewAuditLog(auditRepo),
		Limiter:   limiter,
	}

	if cfg.Auth.OIDC.Enabled {
		provider, err := oidc.NewOIDCProvider(ctx, &cfg.Auth.OIDC)
		if err != nil {
			bg.Shutdown()
			return nil, nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
		}
		deps.Provider = provider
		slog.Info("OIDC provider initialized", "issuer", cfg.Auth.OIDC.IssuerURL)
	} else {
		slog.Warn("OIDC is disabled; only development sign-in is available")
	}

	router, err := NewRouter(cfg, deps)
	if err != nil {
		bg.Shutdown()
		return nil, nil, err
	}
	return router, bg, nil
}
