package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role enumerates the coarse user roles. Each role carries a default
// permission set via RolePermission rows; per-user overrides live in
// UserPermission.
type Role string

const (
	RoleAdmin             Role = "ADMIN"
	RoleComplianceOfficer Role = "COMPLIANCE_OFFICER"
	RoleManager           Role = "MANAGER"
	RoleViewer            Role = "VIEWER"
)

// Roles lists every known role, in descending order of privilege.
func Roles() []Role {
	return []Role{RoleAdmin, RoleComplianceOfficer, RoleManager, RoleViewer}
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleComplianceOfficer, RoleManager, RoleViewer:
		return true
	}
	return false
}

// User describes an account able to authenticate and act on compliance records.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	DisplayName string `json:"display_name"`
	Role        Role   `gorm:"not null;index;default:VIEWER" json:"role"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
