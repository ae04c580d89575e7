package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/database/testutil"
	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/permissions"
	"github.com/veritrail/veritrail/internal/services"
)

func newAccessFixture(t *testing.T) (*gorm.DB, *services.AccessService, *models.AccessRequest) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedPolicy())
	resolver, err := permissions.NewResolver(db)
	require.NoError(t, err)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	access, err := services.NewAccessService(db, resolver, audit)
	require.NoError(t, err)

	viewer := &models.User{Username: "viewer", Email: "viewer@example.com", Password: "x", Role: models.RoleViewer, IsActive: true}
	admin := &models.User{Username: "admin", Email: "admin@example.com", Password: "x", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, db.Create(viewer).Error)
	require.NoError(t, db.Create(admin).Error)

	request, err := access.Request(context.Background(), services.RequestInput{
		RequesterID:   viewer.ID,
		Code:          permissions.EditCompliance,
		Reason:        "temporary cover",
		DurationHours: 1,
	})
	require.NoError(t, err)
	_, err = access.Decide(context.Background(), admin.ID, request.ID, true)
	require.NoError(t, err)

	return db, access, request
}

func TestSweeperRunOnceExpiresLapsedGrants(t *testing.T) {
	db, access, request := newAccessFixture(t)

	sweeper := NewSweeper(access, WithNow(func() time.Time {
		return time.Now().Add(2 * time.Hour)
	}))
	require.NoError(t, sweeper.RunOnce(context.Background()))

	var reloaded models.AccessRequest
	require.NoError(t, db.First(&reloaded, "id = ?", request.ID).Error)
	require.Equal(t, models.AccessRequestExpired, reloaded.Status)

	var overrides int64
	require.NoError(t, db.Model(&models.UserPermission{}).
		Where("user_id = ?", request.RequesterID).Count(&overrides).Error)
	require.Zero(t, overrides)
}

func TestSweeperRunOnceLeavesActiveGrants(t *testing.T) {
	db, access, request := newAccessFixture(t)

	sweeper := NewSweeper(access)
	require.NoError(t, sweeper.RunOnce(context.Background()))

	var reloaded models.AccessRequest
	require.NoError(t, db.First(&reloaded, "id = ?", request.ID).Error)
	require.Equal(t, models.AccessRequestApproved, reloaded.Status)
}

func TestSweeperStartRegistersJob(t *testing.T) {
	_, access, _ := newAccessFixture(t)

	sweeper := NewSweeper(access, WithSchedule("@every 1h"))
	require.NoError(t, sweeper.Start())

	done := sweeper.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}

func TestSweeperWithoutAccessServiceIsNoop(t *testing.T) {
	sweeper := NewSweeper(nil)
	require.NoError(t, sweeper.Start())
	require.NoError(t, sweeper.RunOnce(context.Background()))
}
