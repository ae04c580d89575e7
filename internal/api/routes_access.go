package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/handlers"
	"github.com/veritrail/veritrail/internal/middleware"
	"github.com/veritrail/veritrail/internal/permissions"
)

func registerAccessRoutes(api *gin.RouterGroup, db *gorm.DB, resolver *permissions.Resolver) error {
	accessHandler, err := handlers.NewAccessHandler(db)
	if err != nil {
		return err
	}

	access := api.Group("/access-requests")
	{
		access.POST("", middleware.RequirePermission(resolver, permissions.RequestAccess), accessHandler.Request)
		access.GET("/mine", accessHandler.Mine)
		access.GET("", middleware.RequirePermission(resolver, permissions.ReviewAccess), accessHandler.List)
		// The service re-checks the admin role; the permission gate keeps the
		// endpoint invisible to everyone else.
		access.POST("/:id/decision", middleware.RequirePermission(resolver, permissions.ReviewAccess), accessHandler.Decide)
	}

	return nil
}
