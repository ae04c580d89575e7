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
	// ErrProposalNotFound indicates the requested change proposal does not exist.
	ErrProposalNotFound = apperrors.New("PROPOSAL_NOT_FOUND", "Change proposal not found", http.StatusNotFound)
	// ErrProposalAlreadyReviewed rejects a second review of a terminal proposal.
	ErrProposalAlreadyReviewed = apperrors.NewConflict("PROPOSAL_REVIEWED", "Proposal has already been reviewed")
	// ErrEntityNotFound indicates the governed record a proposal targets is missing.
	ErrEntityNotFound = apperrors.New("ENTITY_NOT_FOUND", "Governed record not found", http.StatusNotFound)
	// ErrUnknownEntityKind rejects proposals against unrecognised entity kinds.
	ErrUnknownEntityKind = apperrors.NewBadRequest("unknown entity kind")
	// ErrInvalidDecision rejects review decisions outside APPROVED/REJECTED.
	ErrInvalidDecision = apperrors.NewBadRequest("decision must be APPROVED or REJECTED")
)

// ProposalService manages the lifecycle of field-level change proposals on
// governed records: propose, review, and - on approval - atomic apply.
type ProposalService struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	audit    *AuditService
	now      func() time.Time
}

// NewProposalService constructs a ProposalService.
func NewProposalService(db *gorm.DB, resolver *permissions.Resolver, audit *AuditService) (*ProposalService, error) {
	if db == nil {
		return nil, errors.New("proposal service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("proposal service: permission resolver is required")
	}
	return &ProposalService{
		db:       db,
		resolver: resolver,
		audit:    audit,
		now:      time.Now,
	}, nil
}

// ProposeInput describes the payload accepted by Propose.
type ProposeInput struct {
	ActorID      string
	EntityKind   models.EntityKind
	EntityID     string
	FieldChanged string
	OldValue     *string
	NewValue     *string
	Rationale    string
}

// Propose records a PENDING change proposal against an existing governed
// record. Proposing needs no special permission beyond being an
// authenticated user able to view the entity; write access is checked at
// review time instead.
func (s *ProposalService) Propose(ctx context.Context, input ProposeInput) (*models.ChangeProposal, error) {
	ctx = ensureContext(ctx)

	if !input.EntityKind.Valid() {
		return nil, ErrUnknownEntityKind
	}
	field := strings.TrimSpace(input.FieldChanged)
	if field == "" {
		return nil, apperrors.NewBadRequest("field name is required")
	}

	actorID := strings.TrimSpace(input.ActorID)
	var actor models.User
	if err := s.db.WithContext(ctx).First(&actor, "id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("proposal service: load actor: %w", err)
	}

	if err := s.entityExists(ctx, input.EntityKind, input.EntityID); err != nil {
		return nil, err
	}

	proposal := &models.ChangeProposal{
		EntityKind:   input.EntityKind,
		EntityID:     strings.TrimSpace(input.EntityID),
		FieldChanged: field,
		OldValue:     input.OldValue,
		NewValue:     input.NewValue,
		ProposerID:   actor.ID,
		Rationale:    strings.TrimSpace(input.Rationale),
		Status:       models.ProposalPending,
	}

	if err := s.db.WithContext(ctx).Create(proposal).Error; err != nil {
		return nil, fmt.Errorf("proposal service: create proposal: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    &actor.ID,
		ActorName:  actor.Username,
		ActorRole:  actor.Role,
		Action:     "proposal.create",
		EntityKind: string(input.EntityKind),
		EntityID:   proposal.EntityID,
		Payload: map[string]any{
			"proposal_id": proposal.ID,
			"field":       proposal.FieldChanged,
			"old_value":   derefOrNil(proposal.OldValue),
			"new_value":   derefOrNil(proposal.NewValue),
		},
	})

	return proposal, nil
}

// ReviewInput describes the payload accepted by Review. EntityKind/EntityID,
// when set, assert the proposal belongs to that parent record.
type ReviewInput struct {
	ReviewerID string
	ProposalID string
	Decision   models.ProposalStatus
	Note       string
	EntityKind models.EntityKind
	EntityID   string
}

// Review applies a terminal decision to a PENDING proposal. The status flip
// and, on approval, the field write commit in one transaction: a crash
// cannot leave an APPROVED proposal whose effect never applied, nor an
// applied effect on a proposal still reading PENDING. The conditional
// "WHERE status = PENDING" update is the sole concurrency guard; of two
// simultaneous reviews exactly one wins and the other gets a conflict.
func (s *ProposalService) Review(ctx context.Context, input ReviewInput) (*models.ChangeProposal, error) {
	ctx = ensureContext(ctx)

	if input.Decision != models.ProposalApproved && input.Decision != models.ProposalRejected {
		return nil, ErrInvalidDecision
	}

	var proposal models.ChangeProposal
	if err := s.db.WithContext(ctx).First(&proposal, "id = ?", strings.TrimSpace(input.ProposalID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("proposal service: load proposal: %w", err)
	}

	if input.EntityKind != "" && (proposal.EntityKind != input.EntityKind || proposal.EntityID != input.EntityID) {
		return nil, ErrProposalNotFound
	}

	reviewer, err := s.authorizeReviewer(ctx, strings.TrimSpace(input.ReviewerID), &proposal)
	if err != nil {
		return nil, err
	}

	reviewedAt := s.now()
	note := strings.TrimSpace(input.Note)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ChangeProposal{}).
			Where("id = ? AND status = ?", proposal.ID, models.ProposalPending).
			Updates(map[string]any{
				"status":      input.Decision,
				"reviewer_id": reviewer.ID,
				"review_note": note,
				"reviewed_at": reviewedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("proposal service: update status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrProposalAlreadyReviewed
		}

		if input.Decision == models.ProposalApproved && proposal.NewValue != nil {
			if err := applyFieldChange(tx, proposal.EntityKind, proposal.EntityID, proposal.FieldChanged, *proposal.NewValue, reviewedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrProposalAlreadyReviewed) {
			metrics.ProposalReviews.WithLabelValues("conflict").Inc()
		}
		return nil, err
	}

	metrics.ProposalReviews.WithLabelValues(strings.ToLower(string(input.Decision))).Inc()

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    &reviewer.ID,
		ActorName:  reviewer.Username,
		ActorRole:  reviewer.Role,
		Action:     "proposal.review",
		EntityKind: string(proposal.EntityKind),
		EntityID:   proposal.EntityID,
		Payload: map[string]any{
			"proposal_id": proposal.ID,
			"decision":    string(input.Decision),
			"field":       proposal.FieldChanged,
			"old_value":   derefOrNil(proposal.OldValue),
			"new_value":   derefOrNil(proposal.NewValue),
			"note":        note,
		},
	})

	if err := s.db.WithContext(ctx).First(&proposal, "id = ?", proposal.ID).Error; err != nil {
		return nil, fmt.Errorf("proposal service: reload proposal: %w", err)
	}
	return &proposal, nil
}

// ListForEntity returns the proposals recorded against a governed record,
// most recent first.
func (s *ProposalService) ListForEntity(ctx context.Context, kind models.EntityKind, entityID string) ([]models.ChangeProposal, error) {
	ctx = ensureContext(ctx)

	if !kind.Valid() {
		return nil, ErrUnknownEntityKind
	}

	var proposals []models.ChangeProposal
	if err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_id = ?", kind, strings.TrimSpace(entityID)).
		Order("created_at DESC").
		Find(&proposals).Error; err != nil {
		return nil, fmt.Errorf("proposal service: list proposals: %w", err)
	}
	return proposals, nil
}

// authorizeReviewer checks the reviewer holds the approval permission for the
// proposal's entity class. SMCR-flagged risks require manage:smcr; everything
// else requires can:approve-entities.
func (s *ProposalService) authorizeReviewer(ctx context.Context, reviewerID string, proposal *models.ChangeProposal) (*models.User, error) {
	var reviewer models.User
	if err := s.db.WithContext(ctx).First(&reviewer, "id = ?", reviewerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("proposal service: load reviewer: %w", err)
	}

	code := permissions.ApproveEntities
	if proposal.EntityKind == models.EntityKindRisk {
		var risk models.Risk
		if err := s.db.WithContext(ctx).Select("smcr").First(&risk, "id = ?", proposal.EntityID).Error; err == nil && risk.SMCR {
			code = permissions.ManageSMCR
		}
	}

	granted, err := s.resolver.Resolve(ctx, reviewer.ID, code)
	if err != nil {
		return nil, fmt.Errorf("proposal service: resolve %s: %w", code, err)
	}
	if !granted {
		return nil, apperrors.ErrForbidden
	}
	return &reviewer, nil
}

func (s *ProposalService) entityExists(ctx context.Context, kind models.EntityKind, entityID string) error {
	model, err := entityModel(kind)
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", strings.TrimSpace(entityID)).Count(&count).Error; err != nil {
		return fmt.Errorf("proposal service: check entity: %w", err)
	}
	if count == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func derefOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
