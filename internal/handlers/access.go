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

// AccessHandler serves time-boxed access elevation requests.
type AccessHandler struct {
	service *services.AccessService
}

func NewAccessHandler(db *gorm.DB) (*AccessHandler, error) {
	resolver, err := permissions.NewResolver(db)
	if err != nil {
		return nil, err
	}
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewAccessService(db, resolver, audit)
	if err != nil {
		return nil, err
	}
	return &AccessHandler{service: svc}, nil
}

type accessRequestPayload struct {
	Code          string `json:"code" validate:"required"`
	Reason        string `json:"reason" validate:"required,min=3,max=2000"`
	DurationHours int    `json:"duration_hours" validate:"required,gte=1,lte=168"`
	EntityKind    string `json:"entity_kind" validate:"omitempty,oneof=risk control action"`
	EntityID      string `json:"entity_id" validate:"omitempty,uuid4"`
}

// POST /api/access-requests
func (h *AccessHandler) Request(c *gin.Context) {
	var req accessRequestPayload
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.service.Request(requestContext(c), services.RequestInput{
		RequesterID:   currentUserID(c),
		Code:          req.Code,
		Reason:        req.Reason,
		DurationHours: req.DurationHours,
		EntityKind:    req.EntityKind,
		EntityID:      req.EntityID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, request)
}

type accessDecisionPayload struct {
	Approve *bool `json:"approve" validate:"required"`
}

// POST /api/access-requests/:id/decision
func (h *AccessHandler) Decide(c *gin.Context) {
	var req accessDecisionPayload
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.service.Decide(requestContext(c), currentUserID(c), c.Param("id"), *req.Approve)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, request)
}

// GET /api/access-requests
func (h *AccessHandler) List(c *gin.Context) {
	opts := services.AccessListOptions{
		RequesterID: c.Query("requester_id"),
		Status:      models.AccessRequestStatus(c.Query("status")),
	}

	requests, err := h.service.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, requests)
}

// GET /api/access-requests/mine
func (h *AccessHandler) Mine(c *gin.Context) {
	requests, err := h.service.List(requestContext(c), services.AccessListOptions{
		RequesterID: currentUserID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, requests)
}
