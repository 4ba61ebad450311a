package app

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// basicAuthMiddleware enforces HTTP Basic credentials. An empty password
// disables the check.
func basicAuthMiddleware(realm, username, password string) gin.HandlerFunc {
	challenge := `Basic realm="` + realm + `"`
	return func(c *gin.Context) {
		if password == "" {
			c.Next()
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		if !ok || !secretEqual(user, username) || !secretEqual(pass, password) {
			c.Header("WWW-Authenticate", challenge)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

var errAdminToken = errors.New("admin token required")

// adminTokenMiddleware requires "Authorization: Bearer <token>" on admin
// endpoints. An empty token disables the check.
func adminTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || !secretEqual(strings.TrimSpace(got), token) {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			abortWithError(c, http.StatusUnauthorized, errAdminToken)
			return
		}
		c.Next()
	}
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
