package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/services"
	appErrors "github.com/veritrail/veritrail/pkg/errors"
	"github.com/veritrail/veritrail/pkg/response"
)

// RegisterHandler serves the governed registers: risks, controls, actions.
// Creation and reads only; field edits go through the proposal endpoints.
type RegisterHandler struct {
	service *services.RegisterService
}

func NewRegisterHandler(db *gorm.DB) (*RegisterHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewRegisterService(db, audit)
	if err != nil {
		return nil, err
	}
	return &RegisterHandler{service: svc}, nil
}

type createRiskRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Severity    string `json:"severity" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	OwnerID     string `json:"owner_id" validate:"omitempty,uuid4"`
	SMCR        bool   `json:"smcr"`
}

// POST /api/risks
func (h *RegisterHandler) CreateRisk(c *gin.Context) {
	var req createRiskRequest
	if !bindAndValidate(c, &req) {
		return
	}

	risk, err := h.service.CreateRisk(requestContext(c), services.CreateRiskInput{
		ActorID:     currentUserID(c),
		Title:       req.Title,
		Description: req.Description,
		Severity:    models.RiskSeverity(req.Severity),
		OwnerID:     req.OwnerID,
		SMCR:        req.SMCR,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, risk)
}

// GET /api/risks
func (h *RegisterHandler) ListRisks(c *gin.Context) {
	risks, err := h.service.ListRisks(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, risks)
}

// GET /api/risks/:id
func (h *RegisterHandler) GetRisk(c *gin.Context) {
	risk, err := h.service.GetRisk(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, risk)
}

type createControlRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=4000"`
	OwnerID     string `json:"owner_id" validate:"omitempty,uuid4"`
}

// POST /api/controls
func (h *RegisterHandler) CreateControl(c *gin.Context) {
	var req createControlRequest
	if !bindAndValidate(c, &req) {
		return
	}

	control, err := h.service.CreateControl(requestContext(c), services.CreateControlInput{
		ActorID:     currentUserID(c),
		Title:       req.Title,
		Description: req.Description,
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, control)
}

// GET /api/controls
func (h *RegisterHandler) ListControls(c *gin.Context) {
	controls, err := h.service.ListControls(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, controls)
}

// GET /api/controls/:id
func (h *RegisterHandler) GetControl(c *gin.Context) {
	control, err := h.service.GetControl(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, control)
}

type createActionRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=4000"`
	OwnerID     string `json:"owner_id" validate:"omitempty,uuid4"`
	DueDate     string `json:"due_date" validate:"omitempty"`
}

// POST /api/actions
func (h *RegisterHandler) CreateAction(c *gin.Context) {
	var req createActionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	var due *time.Time
	if req.DueDate != "" {
		parsed, err := parseDate(req.DueDate)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("due_date must be an RFC 3339 timestamp or YYYY-MM-DD date"))
			return
		}
		due = &parsed
	}

	action, err := h.service.CreateAction(requestContext(c), services.CreateActionInput{
		ActorID:     currentUserID(c),
		Title:       req.Title,
		Description: req.Description,
		OwnerID:     req.OwnerID,
		DueDate:     due,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, action)
}

// GET /api/actions
func (h *RegisterHandler) ListActions(c *gin.Context) {
	actions, err := h.service.ListActions(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, actions)
}

// GET /api/actions/:id
func (h *RegisterHandler) GetAction(c *gin.Context) {
	action, err := h.service.GetAction(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, action)
}

func parseDate(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", value)
}
