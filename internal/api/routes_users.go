package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/handlers"
	"github.com/veritrail/veritrail/internal/middleware"
	"github.com/veritrail/veritrail/internal/permissions"
)

func registerUserRoutes(api *gin.RouterGroup, db *gorm.DB, resolver *permissions.Resolver) error {
	userHandler, err := handlers.NewUserHandler(db)
	if err != nil {
		return err
	}

	manage := middleware.RequirePermission(resolver, permissions.ManageUsers)

	users := api.Group("/users")
	{
		users.GET("", manage, userHandler.List)
		users.GET("/:id", manage, userHandler.Get)
		users.POST("", manage, userHandler.Create)
		users.PUT("/:id/role", manage, userHandler.SetRole)
		users.PUT("/:id/permissions", manage, userHandler.SetPermission)
		users.DELETE("/:id/permissions/:code", manage, userHandler.ClearPermission)
	}

	api.PUT("/roles/permissions", manage, userHandler.SetRolePermission)

	return nil
}
