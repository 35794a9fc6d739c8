// Package member serves the member view: a member's own requests, the submit
// form and the position form.
package member

import (
	"context"
	"net/http"

	"github.com/gdg-portal/permission-portal/internal/api/views"
	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/middleware"
	"github.com/gin-gonic/gin"
)

const homePath = "/member"

// Ledger is the part of the request ledger members use.
type Ledger interface {
	Submit(ctx context.Context, userID, title, reason string) (string, error)
	ListMine(ctx context.Context, userID string) ([]models.PermissionRequest, error)
}

// Directory is the part of the user directory members use.
type Directory interface {
	SetPosition(ctx context.Context, userID, position string) error
}

// Handlers serves /member.
type Handlers struct {
	ledger    Ledger
	directory Directory
}

func NewHandlers(ledger Ledger, directory Directory) *Handlers {
	return &Handlers{ledger: ledger, directory: directory}
}

// Page renders the member view.
// GET /member
func (h *Handlers) Page() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)

		requests, err := h.ledger.ListMine(c.Request.Context(), user.ID)
		if err != nil {
			views.HandleError(c, err, homePath)
			return
		}

		c.HTML(http.StatusOK, "member.html", gin.H{
			"Title":    "My requests",
			"User":     user,
			"Requests": requests,
			"Success":  c.Query("success") == "true",
			"Error":    c.Query("error"),
		})
	}
}

// SubmitRequest files a new request for the signed-in member.
// POST /member/requests
func (h *Handlers) SubmitRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)

		_, err := h.ledger.Submit(c.Request.Context(), user.ID, c.PostForm("title"), c.PostForm("reason"))
		if err != nil {
			views.HandleError(c, err, homePath)
			return
		}
		c.Redirect(http.StatusFound, homePath+"?success=true")
	}
}

// SetPosition updates the signed-in member's position.
// POST /member/position
func (h *Handlers) SetPosition() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)

		if err := h.directory.SetPosition(c.Request.Context(), user.ID, c.PostForm("position")); err != nil {
			views.HandleError(c, err, homePath)
			return
		}
		c.Redirect(http.StatusFound, homePath)
	}
}
