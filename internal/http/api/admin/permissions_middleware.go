package admin

import (
	"net/http"

	permissions "github.com/campus-card/cardledger/internal/http/api/admin/permissions"
	"github.com/gin-gonic/gin"
)

// adminPermissionMiddleware enforces role checks for admin routes.
func adminPermissionMiddleware() gin.HandlerFunc {
	permissionMap := permissions.DefinitionMap()

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		def, ok := permissionMap[permissions.Key(c.Request.Method, path)]
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		claims, okClaims := operatorFromContext(c)
		if !okClaims {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
			return
		}

		if !permissions.Allowed(def, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		c.Next()
	}
}
