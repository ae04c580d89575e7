package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/models"
)

// ErrActorNotFound indicates the actor identity could not be loaded. Callers
// treat this as unauthenticated rather than forbidden.
var ErrActorNotFound = errors.New("permissions: actor not found")

// Resolver computes the effective grant for an (actor, permission code) pair.
//
// Resolution order: a UserPermission row, when present, is authoritative for
// that user regardless of role. Otherwise the RolePermission default for the
// user's role applies. Absent both rows the answer is deny (fail closed).
type Resolver struct {
	db *gorm.DB
}

// NewResolver constructs a permission resolver backed by the provided database.
func NewResolver(db *gorm.DB) (*Resolver, error) {
	if db == nil {
		return nil, errors.New("permission resolver: db is required")
	}
	return &Resolver{db: db}, nil
}

// Resolve determines whether the user holds the specified permission.
// It is a pure read; a concurrent policy edit may observe either value.
func (r *Resolver) Resolve(ctx context.Context, userID, code string) (bool, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, ErrActorNotFound
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return false, errors.New("permission resolver: permission code is required")
	}

	var override models.UserPermission
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND code = ?", userID, code).
		First(&override).Error
	switch {
	case err == nil:
		return override.Granted, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return false, fmt.Errorf("permission resolver: load override: %w", err)
	}

	user, err := r.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}

	var roleDefault models.RolePermission
	err = r.db.WithContext(ctx).
		Where("role = ? AND code = ?", user.Role, code).
		First(&roleDefault).Error
	switch {
	case err == nil:
		return roleDefault.Granted, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No policy row means deny.
		return false, nil
	default:
		return false, fmt.Errorf("permission resolver: load role default: %w", err)
	}
}

// RequireRole reports whether the user holds one of the listed roles. It is a
// shortcut for surfaces that predate fine-grained permission codes; new
// capabilities should use Resolve.
func (r *Resolver) RequireRole(ctx context.Context, userID string, roles ...models.Role) (bool, error) {
	ctx = ensureContext(ctx)

	user, err := r.loadUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return false, err
	}

	for _, role := range roles {
		if user.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) loadUser(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, ErrActorNotFound
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActorNotFound
		}
		return nil, fmt.Errorf("permission resolver: load user: %w", err)
	}
	return &user, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
