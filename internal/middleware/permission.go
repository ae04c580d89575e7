package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/permissions"
	apperrors "github.com/veritrail/veritrail/pkg/errors"
	"github.com/veritrail/veritrail/pkg/metrics"
	"github.com/veritrail/veritrail/pkg/response"
)

// RequirePermission checks that the authenticated user holds the permission
// code, resolved fresh against the policy tables on every request.
func RequirePermission(resolver *permissions.Resolver, code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxUserIDKey)
		if !ok {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		userID, _ := v.(string)

		allowed, err := resolver.Resolve(c.Request.Context(), userID, code)
		if err != nil {
			if errors.Is(err, permissions.ErrActorNotFound) {
				// Token outlived the account.
				metrics.PermissionChecks.WithLabelValues(code, "denied").Inc()
				response.Error(c, apperrors.ErrUnauthorized)
				c.Abort()
				return
			}
			metrics.PermissionChecks.WithLabelValues(code, "error").Inc()
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   gin.H{"code": apperrors.ErrInternalServer.Code, "message": "permission check failed"},
			})
			return
		}
		if !allowed {
			metrics.PermissionChecks.WithLabelValues(code, "denied").Inc()
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}
		metrics.PermissionChecks.WithLabelValues(code, "allowed").Inc()
		c.Next()
	}
}

// RequireRole checks that the authenticated user currently holds one of the
// given roles. The role is re-read from the database, not trusted from the
// token.
func RequireRole(resolver *permissions.Resolver, roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(CtxUserIDKey)
		if !ok {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		userID, _ := v.(string)

		allowed, err := resolver.RequireRole(c.Request.Context(), userID, roles...)
		if err != nil {
			if errors.Is(err, permissions.ErrActorNotFound) {
				response.Error(c, apperrors.ErrUnauthorized)
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   gin.H{"code": apperrors.ErrInternalServer.Code, "message": "role check failed"},
			})
			return
		}
		if !allowed {
			response.Error(c, apperrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
