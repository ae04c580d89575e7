package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/permissions"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.RolePermission{},
		&models.UserPermission{},
		&models.AccessRequest{},
		&models.ChangeProposal{},
		&models.AuditLog{},
		&models.Risk{},
		&models.Control{},
		&models.ActionItem{},
	)
}

// InstallAuditGuards installs storage-level triggers that abort any UPDATE or
// DELETE against the audit ledger. This is the structural half of the
// immutability guarantee; the model hooks are the application-level half.
func InstallAuditGuards(db *gorm.DB) error {
	var statements []string

	switch db.Dialector.Name() {
	case "sqlite":
		statements = []string{
			`CREATE TRIGGER IF NOT EXISTS audit_logs_no_update
				BEFORE UPDATE ON audit_logs
				BEGIN SELECT RAISE(ABORT, 'audit records are immutable'); END`,
			`CREATE TRIGGER IF NOT EXISTS audit_logs_no_delete
				BEFORE DELETE ON audit_logs
				BEGIN SELECT RAISE(ABORT, 'audit records are immutable'); END`,
		}
	case "postgres":
		statements = []string{
			`CREATE OR REPLACE FUNCTION audit_logs_immutable() RETURNS trigger AS $$
				BEGIN RAISE EXCEPTION 'audit records are immutable'; END;
				$$ LANGUAGE plpgsql`,
			`DROP TRIGGER IF EXISTS audit_logs_no_update ON audit_logs`,
			`CREATE TRIGGER audit_logs_no_update
				BEFORE UPDATE ON audit_logs
				FOR EACH ROW EXECUTE FUNCTION audit_logs_immutable()`,
			`DROP TRIGGER IF EXISTS audit_logs_no_delete ON audit_logs`,
			`CREATE TRIGGER audit_logs_no_delete
				BEFORE DELETE ON audit_logs
				FOR EACH ROW EXECUTE FUNCTION audit_logs_immutable()`,
		}
	case "mysql":
		statements = []string{
			`DROP TRIGGER IF EXISTS audit_logs_no_update`,
			`CREATE TRIGGER audit_logs_no_update
				BEFORE UPDATE ON audit_logs FOR EACH ROW
				SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'audit records are immutable'`,
			`DROP TRIGGER IF EXISTS audit_logs_no_delete`,
			`CREATE TRIGGER audit_logs_no_delete
				BEFORE DELETE ON audit_logs FOR EACH ROW
				SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'audit records are immutable'`,
		}
	default:
		return fmt.Errorf("audit guards: unsupported dialect %q", db.Dialector.Name())
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("audit guards: %w", err)
		}
	}
	return nil
}

// InstallAccessGuards enforces "at most one PENDING access request per
// (requester, permission, target)" at the storage layer, so concurrent
// requests racing past the application-level check still collapse to a
// single row. sqlite and postgres use a partial unique index; mysql has no
// partial indexes, so a generated column that is NULL outside PENDING backs
// the unique index instead (NULLs never collide there).
func InstallAccessGuards(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite", "postgres":
		stmt := `CREATE UNIQUE INDEX IF NOT EXISTS idx_access_requests_single_pending
			ON access_requests (requester_id, code, entity_kind, entity_id)
			WHERE status = 'PENDING'`
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("access guards: %w", err)
		}
	case "mysql":
		var columns int64
		err := db.Raw(`SELECT COUNT(*) FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = 'access_requests' AND column_name = 'pending_marker'`).
			Scan(&columns).Error
		if err != nil {
			return fmt.Errorf("access guards: inspect columns: %w", err)
		}
		if columns == 0 {
			stmt := `ALTER TABLE access_requests ADD COLUMN pending_marker CHAR(36)
				GENERATED ALWAYS AS (CASE WHEN status = 'PENDING' THEN requester_id ELSE NULL END) STORED`
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("access guards: add marker column: %w", err)
			}
		}

		var indexes int64
		err = db.Raw(`SELECT COUNT(*) FROM information_schema.statistics
			WHERE table_schema = DATABASE() AND table_name = 'access_requests' AND index_name = 'idx_access_requests_single_pending'`).
			Scan(&indexes).Error
		if err != nil {
			return fmt.Errorf("access guards: inspect indexes: %w", err)
		}
		if indexes == 0 {
			stmt := `CREATE UNIQUE INDEX idx_access_requests_single_pending
				ON access_requests (pending_marker, code, entity_kind, entity_id)`
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("access guards: create index: %w", err)
			}
		}
	default:
		return fmt.Errorf("access guards: unsupported dialect %q", db.Dialector.Name())
	}
	return nil
}

// defaultPolicy is the seeded RolePermission baseline. Per-user overrides and
// time-boxed grants layer on top of these defaults at resolve time.
var defaultPolicy = map[models.Role]map[string]bool{
	models.RoleAdmin: {
		permissions.ViewCompliance:  true,
		permissions.EditCompliance:  true,
		permissions.ApproveEntities: true,
		permissions.ManageSMCR:      true,
		permissions.ManageUsers:     true,
		permissions.ViewAudit:       true,
		permissions.RequestAccess:   true,
		permissions.ReviewAccess:    true,
	},
	models.RoleComplianceOfficer: {
		permissions.ViewCompliance:  true,
		permissions.EditCompliance:  true,
		permissions.ApproveEntities: true,
		permissions.ManageSMCR:      false,
		permissions.ManageUsers:     false,
		permissions.ViewAudit:       true,
		permissions.RequestAccess:   true,
		permissions.ReviewAccess:    false,
	},
	models.RoleManager: {
		permissions.ViewCompliance:  true,
		permissions.EditCompliance:  true,
		permissions.ApproveEntities: false,
		permissions.ViewAudit:       false,
		permissions.RequestAccess:   true,
	},
	models.RoleViewer: {
		permissions.ViewCompliance: true,
		permissions.EditCompliance: false,
		permissions.RequestAccess:  true,
	},
}

// SeedPolicy inserts the baseline RolePermission rows when absent. Existing
// rows are left untouched so operator edits survive restarts.
func SeedPolicy(db *gorm.DB) error {
	for role, codes := range defaultPolicy {
		for code, granted := range codes {
			row := models.RolePermission{Role: role, Code: code, Granted: granted}
			err := db.Where(models.RolePermission{Role: role, Code: code}).
				Attrs(row).
				FirstOrCreate(&models.RolePermission{}).Error
			if err != nil {
				return fmt.Errorf("seed policy %s/%s: %w", role, code, err)
			}
		}
	}
	return nil
}
