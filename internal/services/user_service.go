package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/permissions"
	"github.com/veritrail/veritrail/pkg/crypto"
	apperrors "github.com/veritrail/veritrail/pkg/errors"
	"github.com/veritrail/veritrail/pkg/metrics"
)

var (
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrUserExists indicates a username or email collision.
	ErrUserExists = apperrors.NewConflict("USER_EXISTS", "Username or email already in use")
)

// UserService manages accounts, role assignment, and the permission policy
// surface (role defaults and per-user overrides).
type UserService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, audit: audit, now: time.Now}, nil
}

// CreateUserInput describes the payload accepted by Create.
type CreateUserInput struct {
	ActorID     string
	Username    string
	Email       string
	Password    string
	DisplayName string
	Role        models.Role
}

// Create provisions a new account with a bcrypt-hashed password.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" {
		return nil, apperrors.NewBadRequest("username and email are required")
	}
	role := input.Role
	if role == "" {
		role = models.RoleViewer
	}
	if !role.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", role))
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:    username,
		Email:       email,
		Password:    hash,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Role:        role,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    optionalID(input.ActorID),
		Action:     "user.create",
		EntityKind: "user",
		EntityID:   user.ID,
		Payload: map[string]any{
			"username": user.Username,
			"role":     user.Role,
		},
	})

	return user, nil
}

// Authenticate verifies credentials and stamps the last login time. Inactive
// accounts fail the same way as unknown ones.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", strings.TrimSpace(username)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if !user.IsActive || !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	loginAt := s.now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", loginAt).Error; err != nil {
		return nil, fmt.Errorf("user service: stamp login: %w", err)
	}
	user.LastLoginAt = &loginAt

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    &user.ID,
		ActorName:  user.Username,
		ActorRole:  user.Role,
		Action:     "user.login",
		EntityKind: "user",
		EntityID:   user.ID,
	})

	return &user, nil
}

// Get returns a single user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// List returns all users ordered by username.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var users []models.User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: list users: %w", err)
	}
	return users, nil
}

// SetRole reassigns a user's role. Per-user overrides are left untouched and
// keep winning over the new role's defaults.
func (s *UserService) SetRole(ctx context.Context, actorID, userID string, role models.Role) (*models.User, error) {
	ctx = ensureContext(ctx)

	if !role.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", role))
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := user.Role

	if err := s.db.WithContext(ctx).Model(user).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("user service: set role: %w", err)
	}
	user.Role = role

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    optionalID(actorID),
		Action:     "user.set_role",
		EntityKind: "user",
		EntityID:   user.ID,
		Payload: map[string]any{
			"previous_role": previous,
			"role":          role,
		},
	})

	return user, nil
}

// SetRolePermission upserts a role-level default for a permission code.
func (s *UserService) SetRolePermission(ctx context.Context, actorID string, role models.Role, code string, granted bool) error {
	ctx = ensureContext(ctx)

	if !role.Valid() {
		return apperrors.NewBadRequest(fmt.Sprintf("unknown role %q", role))
	}
	if !permissions.Known(code) {
		return apperrors.NewBadRequest(fmt.Sprintf("unknown permission code %q", code))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.RolePermission
		err := tx.Where("role = ? AND code = ?", role, code).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&existing).Update("granted", granted).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.RolePermission{Role: role, Code: code, Granted: granted}).Error
		default:
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("user service: set role permission: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    optionalID(actorID),
		Action:     "policy.set_role_permission",
		EntityKind: "role",
		EntityID:   string(role),
		Payload: map[string]any{
			"permission": code,
			"granted":    granted,
		},
	})
	return nil
}

// SetUserPermission upserts a per-user override. The override is
// authoritative over the user's role defaults until cleared.
func (s *UserService) SetUserPermission(ctx context.Context, actorID, userID, code string, granted bool) error {
	ctx = ensureContext(ctx)

	if !permissions.Known(code) {
		return apperrors.NewBadRequest(fmt.Sprintf("unknown permission code %q", code))
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.UserPermission
		err := tx.Where("user_id = ? AND code = ?", user.ID, code).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&existing).Update("granted", granted).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.UserPermission{UserID: user.ID, Code: code, Granted: granted}).Error
		default:
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("user service: set user permission: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    optionalID(actorID),
		Action:     "policy.set_user_permission",
		EntityKind: "user",
		EntityID:   user.ID,
		Payload: map[string]any{
			"permission": code,
			"granted":    granted,
		},
	})
	return nil
}

// ClearUserPermission removes a per-user override, restoring inheritance
// from the user's role defaults.
func (s *UserService) ClearUserPermission(ctx context.Context, actorID, userID, code string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("user_id = ? AND code = ?", strings.TrimSpace(userID), code).
		Delete(&models.UserPermission{})
	if result.Error != nil {
		return fmt.Errorf("user service: clear user permission: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    optionalID(actorID),
		Action:     "policy.clear_user_permission",
		EntityKind: "user",
		EntityID:   userID,
		Payload:    map[string]any{"permission": code},
	})
	return nil
}

func optionalID(id string) *string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return &id
}
