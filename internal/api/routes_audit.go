package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/handlers"
	"github.com/veritrail/veritrail/internal/middleware"
	"github.com/veritrail/veritrail/internal/permissions"
)

func registerAuditRoutes(api *gin.RouterGroup, db *gorm.DB, resolver *permissions.Resolver) error {
	auditHandler, err := handlers.NewAuditHandler(db)
	if err != nil {
		return err
	}

	api.GET("/audit", middleware.RequirePermission(resolver, permissions.ViewAudit), auditHandler.List)

	// The ledger is append-only: every mutating verb gets a fixed refusal,
	// authenticated or not beyond the group's auth gate.
	for _, register := range []func(string, ...gin.HandlerFunc) gin.IRoutes{
		api.PUT, api.PATCH, api.DELETE, api.POST,
	} {
		register("/audit/:id", auditHandler.Immutable)
	}

	return nil
}
