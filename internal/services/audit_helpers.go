package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/veritrail/veritrail/pkg/logger"
)

// recordAudit appends the entry while tolerating ledger failures: the
// triggering business operation has already committed and must not be rolled
// back or failed because the audit write did not land. The failure is logged
// operationally instead. Call sites that need the audit write to be critical
// call Record directly and propagate its error.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Record(ctx, entry); err != nil {
		logger.WithModule("audit").Error("audit write failed after committed operation",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
