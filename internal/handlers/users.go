package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/services"
	"github.com/veritrail/veritrail/pkg/response"
)

// UserHandler manages accounts and the permission policy surface.
type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(db *gorm.DB) (*UserHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	us, err := services.NewUserService(db, audit)
	if err != nil {
		return nil, err
	}
	return &UserHandler{service: us}, nil
}

type createUserRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Role        string `json:"role" validate:"omitempty,oneof=ADMIN COMPLIANCE_OFFICER MANAGER VIEWER"`
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.service.Create(requestContext(c), services.CreateUserInput{
		ActorID:     currentUserID(c),
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        models.Role(req.Role),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.service.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, users)
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN COMPLIANCE_OFFICER MANAGER VIEWER"`
}

// PUT /api/users/:id/role
func (h *UserHandler) SetRole(c *gin.Context) {
	var req setRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.service.SetRole(requestContext(c), currentUserID(c), c.Param("id"), models.Role(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

type setPermissionRequest struct {
	Code    string `json:"code" validate:"required"`
	Granted *bool  `json:"granted" validate:"required"`
}

// PUT /api/users/:id/permissions
func (h *UserHandler) SetPermission(c *gin.Context) {
	var req setPermissionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.service.SetUserPermission(requestContext(c), currentUserID(c), c.Param("id"), req.Code, *req.Granted)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"code": req.Code, "granted": *req.Granted})
}

// DELETE /api/users/:id/permissions/:code
func (h *UserHandler) ClearPermission(c *gin.Context) {
	err := h.service.ClearUserPermission(requestContext(c), currentUserID(c), c.Param("id"), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"code": c.Param("code"), "cleared": true})
}

type setRolePermissionRequest struct {
	Role    string `json:"role" validate:"required,oneof=ADMIN COMPLIANCE_OFFICER MANAGER VIEWER"`
	Code    string `json:"code" validate:"required"`
	Granted *bool  `json:"granted" validate:"required"`
}

// PUT /api/roles/permissions
func (h *UserHandler) SetRolePermission(c *gin.Context) {
	var req setRolePermissionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.service.SetRolePermission(requestContext(c), currentUserID(c), models.Role(req.Role), req.Code, *req.Granted)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"role": req.Role, "code": req.Code, "granted": *req.Granted})
}
