package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/auditctx"
	"github.com/veritrail/veritrail/internal/models"
	apperrors "github.com/veritrail/veritrail/pkg/errors"
)

// AuditEntry captures a single privileged action to append to the ledger.
type AuditEntry struct {
	ActorID    *string
	ActorName  string
	ActorRole  models.Role
	Action     string
	EntityKind string
	EntityID   string
	Payload    map[string]any
	ReportID   *string
	IPAddress  string
	UserAgent  string

	// OccurredAt overrides the write-time timestamp. It is an escape hatch
	// for trusted internal callers replaying history, not a general surface.
	OccurredAt *time.Time
}

// AuditFilters encapsulates optional filters when querying the ledger.
type AuditFilters struct {
	ActorID    string
	Action     string
	EntityKind string
	EntityID   string
	Since      *time.Time
	Until      *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService appends to and reads from the audit ledger. There is no
// mutating surface: Update and Delete exist only to refuse.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Record appends one entry to the ledger. The actor's role is captured at
// write time: when not supplied it is snapshotted from the user row, so the
// entry stays accurate after later role changes.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}

	// Request metadata travels in the context; explicit fields win.
	if actor, ok := auditctx.FromContext(ctx); ok {
		if entry.ActorID == nil && actor.UserID != "" {
			id := actor.UserID
			entry.ActorID = &id
		}
		if entry.IPAddress == "" {
			entry.IPAddress = actor.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = actor.UserAgent
		}
	}

	log := models.AuditLog{
		Action:     strings.TrimSpace(entry.Action),
		ActorName:  strings.TrimSpace(entry.ActorName),
		ActorRole:  entry.ActorRole,
		EntityKind: strings.TrimSpace(entry.EntityKind),
		EntityID:   strings.TrimSpace(entry.EntityID),
		ReportID:   entry.ReportID,
		IPAddress:  strings.TrimSpace(entry.IPAddress),
		UserAgent:  strings.TrimSpace(entry.UserAgent),
	}

	if entry.ActorID != nil && strings.TrimSpace(*entry.ActorID) != "" {
		id := strings.TrimSpace(*entry.ActorID)
		log.ActorID = &id

		if log.ActorRole == "" || log.ActorName == "" {
			var actor models.User
			if err := s.db.WithContext(ctx).Select("username", "role").First(&actor, "id = ?", id).Error; err == nil {
				if log.ActorRole == "" {
					log.ActorRole = actor.Role
				}
				if log.ActorName == "" {
					log.ActorName = actor.Username
				}
			}
		}
	}

	if entry.Payload != nil {
		encoded, err := json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("audit service: marshal payload: %w", err)
		}
		log.Payload = datatypes.JSON(encoded)
	}

	if entry.OccurredAt != nil {
		log.CreatedAt = *entry.OccurredAt
	}

	if err := s.db.WithContext(ctx).Create(&log).Error; err != nil {
		return fmt.Errorf("audit service: append entry: %w", err)
	}
	return nil
}

// List returns paginated ledger entries ordered most recent first.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.AuditLog
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count entries: %w", err)
	}

	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list entries: %w", err)
	}

	return results, total, nil
}

// Update refuses: the ledger is append-only.
func (s *AuditService) Update(ctx context.Context, id string, changes map[string]any) error {
	return apperrors.ErrImmutableRecord
}

// Delete refuses: the ledger is append-only.
func (s *AuditService) Delete(ctx context.Context, id string) error {
	return apperrors.ErrImmutableRecord
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.ActorID != "" {
		query = query.Where("actor_id = ?", filters.ActorID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.EntityKind != "" {
		query = query.Where("entity_kind = ?", filters.EntityKind)
	}
	if filters.EntityID != "" {
		query = query.Where("entity_id = ?", filters.EntityID)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}
