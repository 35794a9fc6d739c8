package views

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/perrors"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTemplates_AllPagesParse(t *testing.T) {
	tmpl, err := Templates()
	if err != nil {
		t.Fatalf("Templates() error: %v", err)
	}
	for _, name := range []string{"member.html", "admin.html", "sign_in.html", "error.html", "header", "footer"} {
		if tmpl.Lookup(name) == nil {
			t.Errorf("template %q not found", name)
		}
	}
}

func TestStatusClass(t *testing.T) {
	fn := funcs["statusClass"].(func(models.RequestStatus) string)
	tests := map[models.RequestStatus]string{
		models.RequestStatusPending:  "status-pending",
		models.RequestStatusApproved: "status-approved",
		models.RequestStatusRejected: "status-rejected",
	}
	for status, want := range tests {
		if got := fn(status); got != want {
			t.Errorf("statusClass(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantLoc  string
	}{
		{"unauthenticated", perrors.NewUnauthenticated("no session", nil), http.StatusFound, "/sign-in"},
		{"forbidden", perrors.NewForbidden("nope"), http.StatusFound, "/member"},
		{"validation", perrors.NewValidation("Title is required"), http.StatusFound, "/member?error=Title+is+required"},
		{"not found", perrors.NewNotFound("request not found"), http.StatusFound, "/member?error=request+not+found"},
		{"internal", perrors.NewInternal("failed", errors.New("boom")), http.StatusInternalServerError, ""},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.SetHTMLTemplate(MustTemplates())
			r.GET("/", func(c *gin.Context) { HandleError(c, tt.err, "/member") })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if got := w.Header().Get("Location"); got != tt.wantLoc {
				t.Errorf("Location = %q, want %q", got, tt.wantLoc)
			}
		})
	}
}
