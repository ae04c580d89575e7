package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/veritrail/veritrail/internal/auth"
	"github.com/veritrail/veritrail/internal/security"
	"github.com/veritrail/veritrail/pkg/response"
)

// SystemHandler exposes operational self-checks.
type SystemHandler struct {
	posture *security.PostureService
}

// NewSystemHandler constructs the system handler.
func NewSystemHandler(db *gorm.DB, jwt *iauth.JWTService) *SystemHandler {
	return &SystemHandler{posture: security.NewPostureService(db, jwt)}
}

// Posture runs the compliance posture checks and returns their outcome.
func (h *SystemHandler) Posture(c *gin.Context) {
	result := h.posture.Run(requestContext(c))
	response.Success(c, http.StatusOK, result)
}
