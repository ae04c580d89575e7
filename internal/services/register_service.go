package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/models"
	apperrors "github.com/veritrail/veritrail/pkg/errors"
)

// Business reference prefixes per register.
const (
	riskReferencePrefix    = "RSK"
	controlReferencePrefix = "CTL"
	actionReferencePrefix  = "ACT"
)

// RegisterService owns the governed registers: risks, controls, and action
// items. Creation assigns dense business references; field edits never happen
// here and always route through the change proposal engine.
type RegisterService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// NewRegisterService constructs a RegisterService.
func NewRegisterService(db *gorm.DB, audit *AuditService) (*RegisterService, error) {
	if db == nil {
		return nil, errors.New("register service: db is required")
	}
	return &RegisterService{db: db, audit: audit, now: time.Now}, nil
}

// CreateRiskInput describes the payload accepted by CreateRisk.
type CreateRiskInput struct {
	ActorID     string
	Title       string
	Description string
	Severity    models.RiskSeverity
	OwnerID     string
	SMCR        bool
}

// CreateRisk registers a new risk and assigns its RSK reference.
func (s *RegisterService) CreateRisk(ctx context.Context, input CreateRiskInput) (*models.Risk, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}
	severity := input.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	switch severity {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown severity %q", severity))
	}

	risk := &models.Risk{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Severity:    severity,
		Status:      models.RiskOpen,
		OwnerID:     optionalID(input.OwnerID),
		SMCR:        input.SMCR,
	}
	err := createWithReference(ctx, s.db, riskReferencePrefix, &models.Risk{},
		func(reference string) { risk.Reference = reference },
		func(tx *gorm.DB) error { return tx.Create(risk).Error },
	)
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    optionalID(input.ActorID),
		Action:     "risk.create",
		EntityKind: string(models.EntityKindRisk),
		EntityID:   risk.ID,
		Payload: map[string]any{
			"reference": risk.Reference,
			"title":     risk.Title,
			"severity":  risk.Severity,
			"smcr":      risk.SMCR,
		},
	})
	return risk, nil
}

// CreateControlInput describes the payload accepted by CreateControl.
type CreateControlInput struct {
	ActorID     string
	Title       string
	Description string
	OwnerID     string
}

// CreateControl registers a new control and assigns its CTL reference.
func (s *RegisterService) CreateControl(ctx context.Context, input CreateControlInput) (*models.Control, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}

	control := &models.Control{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      models.ControlActive,
		OwnerID:     optionalID(input.OwnerID),
	}
	err := createWithReference(ctx, s.db, controlReferencePrefix, &models.Control{},
		func(reference string) { control.Reference = reference },
		func(tx *gorm.DB) error { return tx.Create(control).Error },
	)
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    optionalID(input.ActorID),
		Action:     "control.create",
		EntityKind: string(models.EntityKindControl),
		EntityID:   control.ID,
		Payload: map[string]any{
			"reference": control.Reference,
			"title":     control.Title,
		},
	})
	return control, nil
}

// CreateActionInput describes the payload accepted by CreateAction.
type CreateActionInput struct {
	ActorID     string
	Title       string
	Description string
	OwnerID     string
	DueDate     *time.Time
}

// CreateAction registers a new remedial action and assigns its ACT reference.
func (s *RegisterService) CreateAction(ctx context.Context, input CreateActionInput) (*models.ActionItem, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}

	action := &models.ActionItem{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      models.ActionOpen,
		OwnerID:     optionalID(input.OwnerID),
		DueDate:     input.DueDate,
	}
	err := createWithReference(ctx, s.db, actionReferencePrefix, &models.ActionItem{},
		func(reference string) { action.Reference = reference },
		func(tx *gorm.DB) error { return tx.Create(action).Error },
	)
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    optionalID(input.ActorID),
		Action:     "action.create",
		EntityKind: string(models.EntityKindAction),
		EntityID:   action.ID,
		Payload: map[string]any{
			"reference": action.Reference,
			"title":     action.Title,
			"due_date":  action.DueDate,
		},
	})
	return action, nil
}

// GetRisk returns a single risk by id.
func (s *RegisterService) GetRisk(ctx context.Context, id string) (*models.Risk, error) {
	var risk models.Risk
	if err := s.load(ctx, &risk, id); err != nil {
		return nil, err
	}
	return &risk, nil
}

// GetControl returns a single control by id.
func (s *RegisterService) GetControl(ctx context.Context, id string) (*models.Control, error) {
	var control models.Control
	if err := s.load(ctx, &control, id); err != nil {
		return nil, err
	}
	return &control, nil
}

// GetAction returns a single action item by id.
func (s *RegisterService) GetAction(ctx context.Context, id string) (*models.ActionItem, error) {
	var action models.ActionItem
	if err := s.load(ctx, &action, id); err != nil {
		return nil, err
	}
	return &action, nil
}

func (s *RegisterService) load(ctx context.Context, dest any, id string) error {
	ctx = ensureContext(ctx)
	err := s.db.WithContext(ctx).First(dest, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEntityNotFound
	}
	return err
}

// ListRisks returns risks ordered by reference.
func (s *RegisterService) ListRisks(ctx context.Context) ([]models.Risk, error) {
	ctx = ensureContext(ctx)
	var risks []models.Risk
	if err := s.db.WithContext(ctx).Order("reference ASC").Find(&risks).Error; err != nil {
		return nil, fmt.Errorf("register service: list risks: %w", err)
	}
	return risks, nil
}

// ListControls returns controls ordered by reference.
func (s *RegisterService) ListControls(ctx context.Context) ([]models.Control, error) {
	ctx = ensureContext(ctx)
	var controls []models.Control
	if err := s.db.WithContext(ctx).Order("reference ASC").Find(&controls).Error; err != nil {
		return nil, fmt.Errorf("register service: list controls: %w", err)
	}
	return controls, nil
}

// ListActions returns action items ordered by reference.
func (s *RegisterService) ListActions(ctx context.Context) ([]models.ActionItem, error) {
	ctx = ensureContext(ctx)
	var actions []models.ActionItem
	if err := s.db.WithContext(ctx).Order("reference ASC").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("register service: list actions: %w", err)
	}
	return actions, nil
}
