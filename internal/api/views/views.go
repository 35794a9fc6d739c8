// Package views holds the portal's server-rendered templates and the helper that
// turns a classified error into the redirect or page the browser should see.
package views

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/perrors"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.Local().Format("Jan 2, 2006 15:04")
	},
	"statusClass": func(s models.RequestStatus) string {
		switch s {
		case models.RequestStatusApproved:
			return "status-approved"
		case models.RequestStatusRejected:
			return "status-rejected"
		default:
			return "status-pending"
		}
	},
}

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

// MustTemplates is Templates for callers that cannot continue without them.
func MustTemplates() *template.Template {
	t, err := Templates()
	if err != nil {
		panic(err)
	}
	return t
}

// RedirectWithError sends the browser back to path with msg in the error query
// parameter, where the page shows it inline.
func RedirectWithError(c *gin.Context, path, msg string) {
	c.Redirect(http.StatusFound, path+"?error="+url.QueryEscape(msg))
}

// HandleError maps err onto the browser flow: unauthenticated users go to
// sign-in, forbidden ones to their member page, validation and not-found
// errors back to backPath with a message, and anything else renders the error
// page with a 500.
func HandleError(c *gin.Context, err error, backPath string) {
	switch perrors.CodeOf(err) {
	case perrors.ErrCodeUnauthenticated:
		c.Redirect(http.StatusFound, "/sign-in")
	case perrors.ErrCodeForbidden:
		c.Redirect(http.StatusFound, "/member")
	case perrors.ErrCodeValidation, perrors.ErrCodeNotFound:
		RedirectWithError(c, backPath, perrors.MessageOf(err))
	default:
		var pe *perrors.Err
		if errors.As(err, &pe) {
			pe.Print(c.Request.Context())
		} else {
			slog.ErrorContext(c.Request.Context(), "unhandled error", "error", err)
		}
		c.HTML(http.StatusInternalServerError, "error.html", gin.H{
			"Title":   "Something went wrong",
			"Message": perrors.MessageOf(err),
		})
	}
	c.Abort()
}
