package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// maxReferenceAttempts bounds the retry loop when concurrent callers race for
// the same sequence number.
const maxReferenceAttempts = 8

// nextReference returns the next business reference for the collection,
// formatted as PREFIX-NNN (zero padded, widening past 999). The count-based
// candidate is only safe together with the unique index on the reference
// column and the retry loop in createWithReference; offset skips sequence
// values that already collided this call.
func nextReference(ctx context.Context, tx *gorm.DB, prefix string, model any, offset int64) (string, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(model).Count(&count).Error; err != nil {
		return "", fmt.Errorf("reference: count collection: %w", err)
	}
	return formatReference(prefix, count+1+offset), nil
}

func formatReference(prefix string, sequence int64) string {
	return fmt.Sprintf("%s-%03d", prefix, sequence)
}

// createWithReference assigns a collision-safe reference and persists the
// record. Two concurrent callers reading the same count would produce the
// same candidate; the loser's unique-index violation is retried with the
// next sequence value rather than surfaced, which also heals past gaps left
// by out-of-band imports. Attempts are bounded so a persistent conflict
// still fails loudly.
func createWithReference(ctx context.Context, db *gorm.DB, prefix string, model any, assign func(reference string), create func(tx *gorm.DB) error) error {
	ctx = ensureContext(ctx)

	var lastErr error
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ref, err := nextReference(ctx, tx, prefix, model, int64(attempt))
			if err != nil {
				return err
			}
			assign(ref)
			return create(tx)
		})
		if err == nil {
			return nil
		}
		if !isUniqueConstraintError(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("reference: exhausted %d attempts for prefix %s: %w", maxReferenceAttempts, prefix, lastErr)
}
