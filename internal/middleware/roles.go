package middleware

import (
	"net/http"

	"github.com/gdg-portal/permission-portal/internal/auth"
	"github.com/gin-gonic/gin"
)

// MemberHomePath is where users without the privilege for a page are sent.
const MemberHomePath = "/member"

// RequireAction lets the request through only when the signed-in user's role
// may perform action. Must run after SessionMiddleware.
func RequireAction(action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.Redirect(http.StatusFound, SignInPath)
			c.Abort()
			return
		}
		if !auth.Authorize(user.Role, action) {
			c.Redirect(http.StatusFound, MemberHomePath)
			c.Abort()
			return
		}
		c.Next()
	}
}
