package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mveldkamp/accounthub/internal/domain/user"
)

// RequireAdmin gates directory management. No resolved session is 401; a
// session without the ADMIN role is 403.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)

		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Please log in.",
				},
			})
			return
		}

		if u.Role != user.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "forbidden",
					"message": "Admin role required",
				},
			})
			return
		}
		c.Next()
	}
}
