package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-ledger/internal/models"
	appErrors "github.com/noah-isme/course-ledger/pkg/errors"
	"github.com/noah-isme/course-ledger/pkg/response"
)

// RequireRoles rejects principals that carry none of roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := PrincipalFromContext(c)
		if principal == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !principal.HasRole(roles...) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotAuthorized, "role not permitted for this operation"))
			c.Abort()
			return
		}
		c.Next()
	}
}
