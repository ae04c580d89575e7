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
	apperrors "github.com/veritrail/veritrail/pkg/errors"
	"github.com/veritrail/veritrail/pkg/metrics"
)

var (
	// ErrAccessRequestNotFound indicates the access request does not exist.
	ErrAccessRequestNotFound = apperrors.New("ACCESS_REQUEST_NOT_FOUND", "Access request not found", http.StatusNotFound)
	// ErrDuplicateAccessRequest rejects a second PENDING request for the same
	// (requester, permission, target) triple.
	ErrDuplicateAccessRequest = apperrors.NewConflict("ACCESS_REQUEST_DUPLICATE", "A pending request for this permission already exists")
	// ErrAccessRequestDecided rejects a second decision on a settled request.
	ErrAccessRequestDecided = apperrors.NewConflict("ACCESS_REQUEST_DECIDED", "Access request has already been decided")
	// ErrInvalidDuration rejects durations outside the allowed window.
	ErrInvalidDuration = apperrors.NewBadRequest(fmt.Sprintf(
		"duration must be between %d and %d hours", models.MinAccessDurationHours, models.MaxAccessDurationHours))
)

// AccessService manages time-boxed permission elevations: request, decision,
// and the periodic expiry sweep that revokes lapsed grants.
type AccessService struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	audit    *AuditService
	now      func() time.Time
}

// NewAccessService constructs an AccessService.
func NewAccessService(db *gorm.DB, resolver *permissions.Resolver, audit *AuditService) (*AccessService, error) {
	if db == nil {
		return nil, errors.New("access service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("access service: permission resolver is required")
	}
	return &AccessService{
		db:       db,
		resolver: resolver,
		audit:    audit,
		now:      time.Now,
	}, nil
}

// RequestInput describes the payload accepted by Request.
type RequestInput struct {
	RequesterID   string
	Code          string
	Reason        string
	DurationHours int
	EntityKind    string
	EntityID      string
}

// Request files a PENDING access request. At most one PENDING request may
// exist per (requester, permission, target) triple.
func (s *AccessService) Request(ctx context.Context, input RequestInput) (*models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	code := strings.TrimSpace(input.Code)
	if !permissions.Known(code) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown permission code %q", code))
	}
	if input.DurationHours < models.MinAccessDurationHours || input.DurationHours > models.MaxAccessDurationHours {
		return nil, ErrInvalidDuration
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, apperrors.NewBadRequest("a reason is required")
	}

	var requester models.User
	if err := s.db.WithContext(ctx).First(&requester, "id = ?", strings.TrimSpace(input.RequesterID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("access service: load requester: %w", err)
	}

	request := &models.AccessRequest{
		RequesterID:   requester.ID,
		Code:          code,
		Reason:        reason,
		DurationHours: input.DurationHours,
		EntityKind:    strings.TrimSpace(input.EntityKind),
		EntityID:      strings.TrimSpace(input.EntityID),
		Status:        models.AccessRequestPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.AccessRequest{}).
			Where("requester_id = ? AND code = ? AND entity_kind = ? AND entity_id = ? AND status = ?",
				request.RequesterID, request.Code, request.EntityKind, request.EntityID, models.AccessRequestPending).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("access service: check pending: %w", err)
		}
		if existing > 0 {
			return ErrDuplicateAccessRequest
		}
		return tx.Create(request).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateAccessRequest
		}
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    &requester.ID,
		ActorName:  requester.Username,
		ActorRole:  requester.Role,
		Action:     "access.request",
		EntityKind: request.EntityKind,
		EntityID:   request.EntityID,
		Payload: map[string]any{
			"request_id":     request.ID,
			"permission":     request.Code,
			"duration_hours": request.DurationHours,
			"reason":         request.Reason,
		},
	})

	return request, nil
}

// Decide settles a PENDING request. Only administrators may review access
// requests; this surface predates fine-grained permission codes and keeps
// the coarse role check. Approval writes the backing UserPermission grant in
// the same transaction as the status flip.
func (s *AccessService) Decide(ctx context.Context, reviewerID, requestID string, approve bool) (*models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	var reviewer models.User
	if err := s.db.WithContext(ctx).First(&reviewer, "id = ?", strings.TrimSpace(reviewerID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("access service: load reviewer: %w", err)
	}

	isAdmin, err := s.resolver.RequireRole(ctx, reviewer.ID, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("access service: check reviewer role: %w", err)
	}
	if !isAdmin {
		return nil, apperrors.ErrForbidden
	}

	var request models.AccessRequest
	if err := s.db.WithContext(ctx).First(&request, "id = ?", strings.TrimSpace(requestID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccessRequestNotFound
		}
		return nil, fmt.Errorf("access service: load request: %w", err)
	}

	decidedAt := s.now()
	status := models.AccessRequestRejected
	var grantedUntil *time.Time
	if approve {
		status = models.AccessRequestApproved
		until := decidedAt.Add(time.Duration(request.DurationHours) * time.Hour)
		grantedUntil = &until
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.AccessRequest{}).
			Where("id = ? AND status = ?", request.ID, models.AccessRequestPending).
			Updates(map[string]any{
				"status":        status,
				"reviewer_id":   reviewer.ID,
				"decided_at":    decidedAt,
				"granted_until": grantedUntil,
			})
		if result.Error != nil {
			return fmt.Errorf("access service: update request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAccessRequestDecided
		}

		if !approve {
			return nil
		}

		// Create or refresh the per-user grant backing the elevation.
		var existing models.UserPermission
		err := tx.Where("user_id = ? AND code = ?", request.RequesterID, request.Code).First(&existing).Error
		switch {
		case err == nil:
			return tx.Model(&existing).Update("granted", true).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.UserPermission{
				UserID:  request.RequesterID,
				Code:    request.Code,
				Granted: true,
			}).Error
		default:
			return fmt.Errorf("access service: load grant: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}

	action := "access.reject"
	if approve {
		action = "access.approve"
	}
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    &reviewer.ID,
		ActorName:  reviewer.Username,
		ActorRole:  reviewer.Role,
		Action:     action,
		EntityKind: request.EntityKind,
		EntityID:   request.EntityID,
		Payload: map[string]any{
			"request_id":    request.ID,
			"permission":    request.Code,
			"requester_id":  request.RequesterID,
			"granted_until": grantedUntil,
		},
	})

	if err := s.db.WithContext(ctx).First(&request, "id = ?", request.ID).Error; err != nil {
		return nil, fmt.Errorf("access service: reload request: %w", err)
	}
	return &request, nil
}

// SweepExpired transitions every APPROVED request whose grant has lapsed to
// EXPIRED and deletes the backing UserPermission row, one transaction per
// request. The conditional status update makes the sweep idempotent and safe
// to run concurrently from multiple instances: a request already swept is
// not swept (or audited) twice. Returns the number of newly expired grants.
func (s *AccessService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ctx = ensureContext(ctx)

	var lapsed []models.AccessRequest
	if err := s.db.WithContext(ctx).
		Where("status = ? AND granted_until < ?", models.AccessRequestApproved, now).
		Find(&lapsed).Error; err != nil {
		return 0, fmt.Errorf("access service: select lapsed grants: %w", err)
	}

	expired := 0
	for i := range lapsed {
		request := lapsed[i]
		swept := false

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&models.AccessRequest{}).
				Where("id = ? AND status = ?", request.ID, models.AccessRequestApproved).
				Update("status", models.AccessRequestExpired)
			if result.Error != nil {
				return fmt.Errorf("access service: expire request: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				// Another instance swept it first.
				return nil
			}

			if err := tx.Where("user_id = ? AND code = ?", request.RequesterID, request.Code).
				Delete(&models.UserPermission{}).Error; err != nil {
				return fmt.Errorf("access service: revoke grant: %w", err)
			}

			swept = true
			expired++
			return nil
		})
		if err != nil {
			return expired, err
		}
		if !swept {
			continue
		}

		recordAudit(s.audit, ctx, AuditEntry{
			Action:     "access.expire",
			EntityKind: request.EntityKind,
			EntityID:   request.EntityID,
			Payload: map[string]any{
				"request_id":    request.ID,
				"permission":    request.Code,
				"requester_id":  request.RequesterID,
				"granted_until": request.GrantedUntil,
			},
		})
		metrics.AccessGrantsExpired.Inc()
	}

	return expired, nil
}

// AccessListOptions filters access request listings.
type AccessListOptions struct {
	RequesterID string
	Status      models.AccessRequestStatus
}

// List returns access requests, most recent first.
func (s *AccessService) List(ctx context.Context, opts AccessListOptions) ([]models.AccessRequest, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.AccessRequest{})
	if opts.RequesterID != "" {
		query = query.Where("requester_id = ?", opts.RequesterID)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var requests []models.AccessRequest
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("access service: list requests: %w", err)
	}
	return requests, nil
}
