package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/permissions"
	"github.com/veritrail/veritrail/internal/services"
	"github.com/veritrail/veritrail/pkg/response"
)

// ProposalHandler serves the change proposal endpoints, nested under the
// governed entity they target. The entity kind is fixed at route wiring time.
type ProposalHandler struct {
	service *services.ProposalService
}

func NewProposalHandler(db *gorm.DB) (*ProposalHandler, error) {
	resolver, err := permissions.NewResolver(db)
	if err != nil {
		return nil, err
	}
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewProposalService(db, resolver, audit)
	if err != nil {
		return nil, err
	}
	return &ProposalHandler{service: svc}, nil
}

type proposeRequest struct {
	FieldChanged string  `json:"field_changed" validate:"required,min=1,max=64"`
	OldValue     *string `json:"old_value"`
	NewValue     *string `json:"new_value"`
	Rationale    string  `json:"rationale" validate:"max=2000"`
}

// Propose handles POST /api/<register>/:id/proposals for the given kind.
func (h *ProposalHandler) Propose(kind models.EntityKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req proposeRequest
		if !bindAndValidate(c, &req) {
			return
		}

		proposal, err := h.service.Propose(requestContext(c), services.ProposeInput{
			ActorID:      currentUserID(c),
			EntityKind:   kind,
			EntityID:     c.Param("id"),
			FieldChanged: req.FieldChanged,
			OldValue:     req.OldValue,
			NewValue:     req.NewValue,
			Rationale:    req.Rationale,
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusCreated, proposal)
	}
}

// ListForEntity handles GET /api/<register>/:id/proposals for the given kind.
func (h *ProposalHandler) ListForEntity(kind models.EntityKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		proposals, err := h.service.ListForEntity(requestContext(c), kind, c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, proposals)
	}
}

type reviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Note     string `json:"note" validate:"max=2000"`
}

// Review handles POST /api/<register>/:id/proposals/:proposalID/review.
func (h *ProposalHandler) Review(kind models.EntityKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reviewRequest
		if !bindAndValidate(c, &req) {
			return
		}

		proposal, err := h.service.Review(requestContext(c), services.ReviewInput{
			ReviewerID: currentUserID(c),
			ProposalID: c.Param("proposalID"),
			Decision:   models.ProposalStatus(req.Decision),
			Note:       req.Note,
			EntityKind: kind,
			EntityID:   c.Param("id"),
		})
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, proposal)
	}
}
