package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/models"
	apperrors "github.com/veritrail/veritrail/pkg/errors"
)

// fieldApplier converts the proposal's opaque new value into typed column
// updates for the target entity. Appliers recover type safety at the one
// point it matters: the moment an approved value is written.
type fieldApplier func(value string, now time.Time) (map[string]any, error)

// fieldAppliers is the per-kind allow-list of fields a proposal may change.
// Field names not present here are skipped silently on apply, so a stale
// proposal referencing a renamed field cannot corrupt a record.
var fieldAppliers = map[models.EntityKind]map[string]fieldApplier{
	models.EntityKindRisk: {
		"title":       textApplier("title"),
		"description": textApplier("description"),
		"owner_id":    textApplier("owner_id"),
		"severity": enumApplier("severity",
			string(models.SeverityLow), string(models.SeverityMedium),
			string(models.SeverityHigh), string(models.SeverityCritical)),
		"status": func(value string, now time.Time) (map[string]any, error) {
			cols, err := enumApplier("status",
				string(models.RiskOpen), string(models.RiskMitigated), string(models.RiskClosed))(value, now)
			if err != nil {
				return nil, err
			}
			// Closing a risk stamps when it was closed.
			if cols["status"] == string(models.RiskClosed) {
				cols["closed_at"] = now
			}
			return cols, nil
		},
		"review_date": dateApplier("review_date"),
	},
	models.EntityKindControl: {
		"title":          textApplier("title"),
		"description":    textApplier("description"),
		"owner_id":       textApplier("owner_id"),
		"status":         enumApplier("status", string(models.ControlActive), string(models.ControlLapsed), string(models.ControlRetired)),
		"last_tested_at": dateApplier("last_tested_at"),
	},
	models.EntityKindAction: {
		"title":       textApplier("title"),
		"description": textApplier("description"),
		"owner_id":    textApplier("owner_id"),
		"status": func(value string, now time.Time) (map[string]any, error) {
			cols, err := enumApplier("status",
				string(models.ActionOpen), string(models.ActionInProgress), string(models.ActionCompleted))(value, now)
			if err != nil {
				return nil, err
			}
			// Completing an action stamps the completion time.
			if cols["status"] == string(models.ActionCompleted) {
				cols["completed_at"] = now
			}
			return cols, nil
		},
		"due_date": dateApplier("due_date"),
	},
}

func textApplier(column string) fieldApplier {
	return func(value string, _ time.Time) (map[string]any, error) {
		return map[string]any{column: strings.TrimSpace(value)}, nil
	}
}

func enumApplier(column string, allowed ...string) fieldApplier {
	return func(value string, _ time.Time) (map[string]any, error) {
		candidate := strings.ToUpper(strings.TrimSpace(value))
		for _, v := range allowed {
			if candidate == v {
				return map[string]any{column: candidate}, nil
			}
		}
		return nil, apperrors.NewBadRequest(fmt.Sprintf("%q is not a valid value for %s", value, column))
	}
}

func dateApplier(column string) fieldApplier {
	return func(value string, _ time.Time) (map[string]any, error) {
		value = strings.TrimSpace(value)
		if value == "" {
			return map[string]any{column: nil}, nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, value); err == nil {
				return map[string]any{column: parsed}, nil
			}
		}
		return nil, apperrors.NewBadRequest(fmt.Sprintf("%q is not a valid date for %s", value, column))
	}
}

// entityModel returns an empty model instance for the kind.
func entityModel(kind models.EntityKind) (any, error) {
	switch kind {
	case models.EntityKindRisk:
		return &models.Risk{}, nil
	case models.EntityKindControl:
		return &models.Control{}, nil
	case models.EntityKindAction:
		return &models.ActionItem{}, nil
	default:
		return nil, ErrUnknownEntityKind
	}
}

// applyFieldChange writes the approved value into the entity inside the
// caller's transaction. Unknown field names are skipped deliberately.
func applyFieldChange(tx *gorm.DB, kind models.EntityKind, entityID, field, value string, now time.Time) error {
	appliers, ok := fieldAppliers[kind]
	if !ok {
		return ErrUnknownEntityKind
	}

	applier, ok := appliers[strings.TrimSpace(field)]
	if !ok {
		return nil
	}

	cols, err := applier(value, now)
	if err != nil {
		return err
	}

	model, err := entityModel(kind)
	if err != nil {
		return err
	}

	result := tx.Model(model).Where("id = ?", entityID).Updates(cols)
	if result.Error != nil {
		return fmt.Errorf("apply %s.%s: %w", kind, field, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEntityNotFound
	}
	return nil
}
