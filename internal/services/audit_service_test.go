package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritrail/veritrail/internal/auditctx"
	"github.com/veritrail/veritrail/internal/models"
	apperrors "github.com/veritrail/veritrail/pkg/errors"
)

func TestAuditRecordSnapshotsActor(t *testing.T) {
	env := newTestEnv(t)
	officer := env.seedUser(t, "officer", models.RoleComplianceOfficer)

	err := env.audit.Record(context.Background(), AuditEntry{
		ActorID: &officer.ID,
		Action:  "risk.create",
	})
	require.NoError(t, err)

	var entry models.AuditLog
	require.NoError(t, env.db.First(&entry, "action = ?", "risk.create").Error)
	require.Equal(t, models.RoleComplianceOfficer, entry.ActorRole)
	require.Equal(t, "officer", entry.ActorName)

	// Later role changes must not rewrite history.
	require.NoError(t, env.db.Model(officer).Update("role", models.RoleViewer).Error)
	require.NoError(t, env.db.First(&entry, "action = ?", "risk.create").Error)
	require.Equal(t, models.RoleComplianceOfficer, entry.ActorRole)
}

func TestAuditRecordHonoursExplicitTimestamp(t *testing.T) {
	env := newTestEnv(t)

	occurred := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	err := env.audit.Record(context.Background(), AuditEntry{
		Action:     "access.expire",
		OccurredAt: &occurred,
	})
	require.NoError(t, err)

	var entry models.AuditLog
	require.NoError(t, env.db.First(&entry, "action = ?", "access.expire").Error)
	require.True(t, entry.CreatedAt.Equal(occurred))
}

func TestAuditRecordPicksUpRequestMetadata(t *testing.T) {
	env := newTestEnv(t)
	actor := env.seedUser(t, "officer", models.RoleComplianceOfficer)

	ctx := auditctx.WithActor(context.Background(), auditctx.Actor{
		UserID:    actor.ID,
		IPAddress: "192.0.2.10",
		UserAgent: "veritrail-cli/1.0",
	})
	require.NoError(t, env.audit.Record(ctx, AuditEntry{Action: "proposal.create"}))

	var entry models.AuditLog
	require.NoError(t, env.db.First(&entry, "action = ?", "proposal.create").Error)
	require.NotNil(t, entry.ActorID)
	require.Equal(t, actor.ID, *entry.ActorID)
	require.Equal(t, "officer", entry.ActorName)
	require.Equal(t, "192.0.2.10", entry.IPAddress)
	require.Equal(t, "veritrail-cli/1.0", entry.UserAgent)
}

func TestAuditRecordRequiresAction(t *testing.T) {
	env := newTestEnv(t)

	require.Error(t, env.audit.Record(context.Background(), AuditEntry{Action: "  "}))
}

func TestAuditListPaginatesNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, env.audit.Record(ctx, AuditEntry{
			Action:     "proposal.review",
			EntityKind: "risk",
			OccurredAt: &at,
		}))
	}

	page, total, err := env.audit.List(ctx, AuditListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	require.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	last, _, err := env.audit.List(ctx, AuditListOptions{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, last, 1)
	require.True(t, last[0].CreatedAt.Equal(base))
}

func TestAuditListFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.seedUser(t, "filterer", models.RoleAdmin)

	require.NoError(t, env.audit.Record(ctx, AuditEntry{ActorID: &actor.ID, Action: "user.login"}))
	require.NoError(t, env.audit.Record(ctx, AuditEntry{Action: "user.login"}))
	require.NoError(t, env.audit.Record(ctx, AuditEntry{ActorID: &actor.ID, Action: "risk.create", EntityKind: "risk", EntityID: "r1"}))

	byActor, total, err := env.audit.List(ctx, AuditListOptions{Filters: AuditFilters{ActorID: actor.ID}})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, byActor, 2)

	byEntity, _, err := env.audit.List(ctx, AuditListOptions{Filters: AuditFilters{EntityKind: "risk", EntityID: "r1"}})
	require.NoError(t, err)
	require.Len(t, byEntity, 1)
	require.Equal(t, "risk.create", byEntity[0].Action)
}

func TestAuditServiceRefusesMutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.audit.Record(ctx, AuditEntry{Action: "user.login"}))
	var entry models.AuditLog
	require.NoError(t, env.db.First(&entry).Error)

	err := env.audit.Update(ctx, entry.ID, map[string]any{"action": "tampered"})
	require.ErrorIs(t, err, apperrors.ErrImmutableRecord)

	err = env.audit.Delete(ctx, entry.ID)
	require.ErrorIs(t, err, apperrors.ErrImmutableRecord)

	var count int64
	require.NoError(t, env.db.Model(&models.AuditLog{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
