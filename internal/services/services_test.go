package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/database/testutil"
	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/permissions"
)

type testEnv struct {
	db        *gorm.DB
	resolver  *permissions.Resolver
	audit     *AuditService
	users     *UserService
	proposals *ProposalService
	access    *AccessService
	register  *RegisterService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedPolicy())
	resolver, err := permissions.NewResolver(db)
	require.NoError(t, err)

	audit, err := NewAuditService(db)
	require.NoError(t, err)
	users, err := NewUserService(db, audit)
	require.NoError(t, err)
	proposals, err := NewProposalService(db, resolver, audit)
	require.NoError(t, err)
	access, err := NewAccessService(db, resolver, audit)
	require.NoError(t, err)
	register, err := NewRegisterService(db, audit)
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		resolver:  resolver,
		audit:     audit,
		users:     users,
		proposals: proposals,
		access:    access,
		register:  register,
	}
}

// seedUser inserts a user directly, bypassing bcrypt for speed. Tests that
// exercise authentication create users through the service instead.
func (e *testEnv) seedUser(t *testing.T, username string, role models.Role) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "not-a-real-hash",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) seedRisk(t *testing.T, reference, title string, smcr bool) *models.Risk {
	t.Helper()

	risk := &models.Risk{
		Reference: reference,
		Title:     title,
		Severity:  models.SeverityMedium,
		Status:    models.RiskOpen,
		SMCR:      smcr,
	}
	require.NoError(t, e.db.Create(risk).Error)
	return risk
}

func (e *testEnv) auditCount(t *testing.T, action string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, e.db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&count).Error)
	return count
}

func strPtr(s string) *string { return &s }
