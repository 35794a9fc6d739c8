// Package admin serves the review view for admins and organizers: the pending
// queue, recent history with revert, the audit table and the counters.
package admin

import (
	"context"
	"net/http"

	"github.com/gdg-portal/permission-portal/internal/api/views"
	"github.com/gdg-portal/permission-portal/internal/auth"
	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/middleware"
	"github.com/gdg-portal/permission-portal/internal/services"
	"github.com/gin-gonic/gin"
)

const homePath = "/admin"

// Ledger is the part of the request ledger reviewers use.
type Ledger interface {
	ListPending(ctx context.Context) ([]models.PermissionRequestWithUser, error)
	ListRecent(ctx context.Context, limit int) ([]models.PermissionRequestWithUser, error)
	CountAll(ctx context.Context) (int, error)
	Transition(ctx context.Context, requestID, actorID string, actorRole models.Role, newStatus models.RequestStatus) error
}

// UserCounter counts directory entries.
type UserCounter interface {
	CountAll(ctx context.Context) (int, error)
}

// AuditReader lists recent audit entries.
type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]models.AuditLogWithActor, error)
}

// Handlers serves /admin.
type Handlers struct {
	ledger   Ledger
	users    UserCounter
	auditLog AuditReader
}

func NewHandlers(ledger Ledger, users UserCounter, auditLog AuditReader) *Handlers {
	return &Handlers{ledger: ledger, users: users, auditLog: auditLog}
}

// Page renders the admin view.
// GET /admin
func (h *Handlers) Page() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		user := middleware.CurrentUser(c)

		pending, err := h.ledger.ListPending(ctx)
		if err != nil {
			views.HandleError(c, err, homePath)
			return
		}
		recent, err := h.ledger.ListRecent(ctx, services.DefaultListLimit)
		if err != nil {
			views.HandleError(c, err, homePath)
			return
		}
		showAudit := auth.Authorize(user.Role, auth.ActionReadAudit)
		var audit []models.AuditLogWithActor
		if showAudit {
			audit, err = h.auditLog.ListRecent(ctx, services.DefaultListLimit)
			if err != nil {
				views.HandleError(c, err, homePath)
				return
			}
		}
		userCount, err := h.users.CountAll(ctx)
		if err != nil {
			views.HandleError(c, err, homePath)
			return
		}
		requestCount, err := h.ledger.CountAll(ctx)
		if err != nil {
			views.HandleError(c, err, homePath)
			return
		}

		c.HTML(http.StatusOK, "admin.html", gin.H{
			"Title":        "Review requests",
			"User":         user,
			"Pending":      pending,
			"Recent":       recent,
			"ShowAudit":    showAudit,
			"Audit":        audit,
			"UserCount":    userCount,
			"RequestCount": requestCount,
			"Error":        c.Query("error"),
		})
	}
}

// SetStatus transitions one request. The form also carries the title, but the
// audit entry always snapshots the title stored with the request.
// POST /admin/requests/:id/status
func (h *Handlers) SetStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		status := models.RequestStatus(c.PostForm("status"))

		err := h.ledger.Transition(c.Request.Context(), c.Param("id"), user.ID, user.Role, status)
		if err != nil {
			views.HandleError(c, err, homePath)
			return
		}
		c.Redirect(http.StatusFound, homePath)
	}
}
