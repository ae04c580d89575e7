package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/permissions"
)

func openSeededDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := Open(Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, AutoMigrateAndSeed(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestSeedPolicyIsIdempotent(t *testing.T) {
	db := openSeededDB(t)

	var before int64
	require.NoError(t, db.Model(&models.RolePermission{}).Count(&before).Error)
	require.NotZero(t, before)

	// Operator edits must survive a re-seed.
	require.NoError(t, db.Model(&models.RolePermission{}).
		Where("role = ? AND code = ?", models.RoleViewer, permissions.ViewCompliance).
		Update("granted", false).Error)

	require.NoError(t, SeedPolicy(db))

	var after int64
	require.NoError(t, db.Model(&models.RolePermission{}).Count(&after).Error)
	require.Equal(t, before, after)

	var row models.RolePermission
	require.NoError(t, db.Where("role = ? AND code = ?", models.RoleViewer, permissions.ViewCompliance).First(&row).Error)
	require.False(t, row.Granted)
}

func TestAuditGuardsRejectRawMutation(t *testing.T) {
	db := openSeededDB(t)

	entry := models.AuditLog{Action: "access.request", ActorName: "requester"}
	require.NoError(t, db.Create(&entry).Error)

	// Raw SQL bypasses the GORM hooks; the storage triggers must still refuse.
	err := db.Exec("UPDATE audit_logs SET action = 'tampered' WHERE id = ?", entry.ID).Error
	require.Error(t, err)
	require.Contains(t, err.Error(), "immutable")

	err = db.Exec("DELETE FROM audit_logs WHERE id = ?", entry.ID).Error
	require.Error(t, err)
	require.Contains(t, err.Error(), "immutable")

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAccessGuardsRefuseSecondPendingRow(t *testing.T) {
	db := openSeededDB(t)

	requester := models.User{Username: "viewer", Email: "viewer@example.com", Password: "x", Role: models.RoleViewer, IsActive: true}
	require.NoError(t, db.Create(&requester).Error)

	pending := func() *models.AccessRequest {
		return &models.AccessRequest{
			RequesterID:   requester.ID,
			Code:          permissions.EditCompliance,
			Reason:        "quarter-end cover",
			DurationHours: 24,
			Status:        models.AccessRequestPending,
		}
	}

	require.NoError(t, db.Create(pending()).Error)

	// A raw duplicate insert bypasses the service's check entirely; the
	// partial unique index still refuses it.
	err := db.Create(pending()).Error
	require.Error(t, err)
	require.Contains(t, err.Error(), "UNIQUE")

	// Settled rows for the same tuple are outside the index: history keeps
	// accumulating, and a fresh PENDING request is accepted again.
	require.NoError(t, db.Model(&models.AccessRequest{}).
		Where("requester_id = ? AND status = ?", requester.ID, models.AccessRequestPending).
		Update("status", models.AccessRequestExpired).Error)

	expired := pending()
	expired.Status = models.AccessRequestExpired
	require.NoError(t, db.Create(expired).Error)
	require.NoError(t, db.Create(pending()).Error)
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "veritrail", Name: "veritrail", Host: "db", Port: 5433, Password: "secret"})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "sslmode=disable")

	_, err = buildPostgresDSN(Config{})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "veritrail", Password: "secret", Name: "veritrail"})
	require.NoError(t, err)
	require.Contains(t, dsn, "veritrail:secret@tcp(127.0.0.1:3306)/veritrail")
	require.Contains(t, dsn, "parseTime=True")

	_, err = buildMySQLDSN(Config{User: "veritrail"})
	require.Error(t, err)
}
