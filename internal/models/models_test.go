package models

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	apperrors "github.com/veritrail/veritrail/pkg/errors"
)

func openModelTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&User{},
		&RolePermission{},
		&UserPermission{},
		&AccessRequest{},
		&ChangeProposal{},
		&AuditLog{},
		&Risk{},
		&Control{},
		&ActionItem{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func TestBeforeCreateAssignsUUIDs(t *testing.T) {
	db := openModelTestDB(t)

	user := User{Username: "officer", Email: "officer@example.com", Password: "x", Role: RoleComplianceOfficer}
	require.NoError(t, db.Create(&user).Error)
	require.NotEmpty(t, user.ID)

	risk := Risk{Reference: "RSK-001", Title: "Vendor concentration"}
	require.NoError(t, db.Create(&risk).Error)
	require.NotEmpty(t, risk.ID)
}

func TestAuditLogHooksRefuseMutation(t *testing.T) {
	db := openModelTestDB(t)

	entry := AuditLog{Action: "proposal.review", ActorName: "officer", ActorRole: RoleComplianceOfficer}
	require.NoError(t, db.Create(&entry).Error)

	entry.Action = "tampered"
	err := db.Save(&entry).Error
	require.ErrorIs(t, err, apperrors.ErrImmutableRecord)

	err = db.Delete(&entry).Error
	require.ErrorIs(t, err, apperrors.ErrImmutableRecord)

	var reloaded AuditLog
	require.NoError(t, db.First(&reloaded, "id = ?", entry.ID).Error)
	require.Equal(t, "proposal.review", reloaded.Action)
}

func TestRoleValidation(t *testing.T) {
	require.True(t, RoleAdmin.Valid())
	require.False(t, Role("SUPERUSER").Valid())
	require.Len(t, Roles(), 4)
}

func TestEntityKindValidation(t *testing.T) {
	require.True(t, EntityKindRisk.Valid())
	require.True(t, EntityKindControl.Valid())
	require.True(t, EntityKindAction.Valid())
	require.False(t, EntityKind("report").Valid())
}
