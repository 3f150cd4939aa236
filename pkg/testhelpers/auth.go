package testhelpers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rentmarket/pkg/auth"
	"rentmarket/pkg/response"
)

// UserHeader is read by HeaderAuth instead of a bearer token.
const UserHeader = "X-Test-User"

// HeaderAuth authenticates handler tests by trusting the X-Test-User header.
func HeaderAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(UserHeader)
		if uid == "" {
			response.Abort(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		auth.SetUserID(c, uid)
		c.Next()
	}
}
