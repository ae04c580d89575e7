package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/handlers"
	"github.com/veritrail/veritrail/internal/middleware"
	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/permissions"
)

// registerRegisterRoutes mounts the governed registers and their nested
// proposal endpoints. There is no PUT/PATCH on the entities themselves:
// field edits only happen through approved proposals.
func registerRegisterRoutes(api *gin.RouterGroup, db *gorm.DB, resolver *permissions.Resolver) error {
	registerHandler, err := handlers.NewRegisterHandler(db)
	if err != nil {
		return err
	}
	proposalHandler, err := handlers.NewProposalHandler(db)
	if err != nil {
		return err
	}

	view := middleware.RequirePermission(resolver, permissions.ViewCompliance)
	edit := middleware.RequirePermission(resolver, permissions.EditCompliance)

	risks := api.Group("/risks")
	{
		risks.GET("", view, registerHandler.ListRisks)
		risks.GET("/:id", view, registerHandler.GetRisk)
		risks.POST("", edit, registerHandler.CreateRisk)
		risks.GET("/:id/proposals", view, proposalHandler.ListForEntity(models.EntityKindRisk))
		// Proposing a change only needs read access; applying it needs approval.
		risks.POST("/:id/proposals", view, proposalHandler.Propose(models.EntityKindRisk))
		// Reviewer authorization is entity-aware (SMCR) and checked in the service.
		risks.POST("/:id/proposals/:proposalID/review", proposalHandler.Review(models.EntityKindRisk))
	}

	controls := api.Group("/controls")
	{
		controls.GET("", view, registerHandler.ListControls)
		controls.GET("/:id", view, registerHandler.GetControl)
		controls.POST("", edit, registerHandler.CreateControl)
		controls.GET("/:id/proposals", view, proposalHandler.ListForEntity(models.EntityKindControl))
		controls.POST("/:id/proposals", view, proposalHandler.Propose(models.EntityKindControl))
		controls.POST("/:id/proposals/:proposalID/review", proposalHandler.Review(models.EntityKindControl))
	}

	actions := api.Group("/actions")
	{
		actions.GET("", view, registerHandler.ListActions)
		actions.GET("/:id", view, registerHandler.GetAction)
		actions.POST("", edit, registerHandler.CreateAction)
		actions.GET("/:id/proposals", view, proposalHandler.ListForEntity(models.EntityKindAction))
		actions.POST("/:id/proposals", view, proposalHandler.Propose(models.EntityKindAction))
		actions.POST("/:id/proposals/:proposalID/review", proposalHandler.Review(models.EntityKindAction))
	}

	return nil
}
