package session

import (
	"net/http"
	"os"
	"strings"

	"github.com/gdg-portal/permission-portal/internal/auth"
	"github.com/gin-gonic/gin"
)

// IsDevMode reports whether DEV_MODE=true or DEV_MODE=1 is set.
func IsDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	return devMode == "true" || devMode == "1"
}

// DevModeMiddleware hides development routes unless dev mode is on.
func DevModeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsDevMode() {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Next()
	}
}

// DevSignIn issues a session for the identity given in the query string,
// bypassing the identity provider.
// GET /sign-in/dev?id=…&email=…&name=…
func (h *Handlers) DevSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.Query("id"))
		email := strings.TrimSpace(c.Query("email"))
		if id == "" || email == "" {
			c.Redirect(http.StatusFound, "/sign-in?error=id+and+email+are+required")
			return
		}

		first, last := auth.SplitName(c.Query("name"))
		identity := auth.Identity{ID: "dev|" + id, Email: email, FirstName: first, LastName: last}
		if err := h.startSession(c, identity); err != nil {
			c.String(http.StatusInternalServerError, "Could not start your session.")
			return
		}
		c.Redirect(http.StatusFound, "/")
	}
}
