package security

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	iauth "github.com/veritrail/veritrail/internal/auth"
	"github.com/veritrail/veritrail/internal/database/testutil"
	"github.com/veritrail/veritrail/internal/models"
)

func checkByID(t *testing.T, result Result, id string) Check {
	t.Helper()
	for _, check := range result.Checks {
		if check.ID == id {
			return check
		}
	}
	t.Fatalf("check %q not found", id)
	return Check{}
}

func TestPostureFlagsMissingAdmin(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedPolicy())
	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: strings.Repeat("s", 48)})
	require.NoError(t, err)

	svc := NewPostureService(db, jwt)
	result := svc.Run(context.Background())

	require.Equal(t, StatusFail, checkByID(t, result, "admin_user_present").Status)
	require.Equal(t, StatusPass, checkByID(t, result, "jwt_secret_strength").Status)
	require.Equal(t, StatusPass, checkByID(t, result, "access_token_ttl").Status)
	require.Equal(t, StatusPass, checkByID(t, result, "stale_access_grants").Status)
	require.Equal(t, 1, result.Summary[string(StatusFail)])

	admin := &models.User{Username: "root", Email: "root@example.com", Password: "x", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, db.Create(admin).Error)

	result = svc.Run(context.Background())
	require.Equal(t, StatusPass, checkByID(t, result, "admin_user_present").Status)
}

func TestPostureGradesSecretStrength(t *testing.T) {
	short, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "tiny"})
	require.NoError(t, err)
	middling, err := iauth.NewJWTService(iauth.JWTConfig{Secret: strings.Repeat("m", 40)})
	require.NoError(t, err)

	result := NewPostureService(nil, short).Run(context.Background())
	require.Equal(t, StatusFail, checkByID(t, result, "jwt_secret_strength").Status)

	result = NewPostureService(nil, middling).Run(context.Background())
	require.Equal(t, StatusWarn, checkByID(t, result, "jwt_secret_strength").Status)
}

func TestPostureWarnsOnLongTokenTTL(t *testing.T) {
	jwt, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         strings.Repeat("s", 48),
		AccessTokenTTL: 72 * time.Hour,
	})
	require.NoError(t, err)

	result := NewPostureService(nil, jwt).Run(context.Background())
	check := checkByID(t, result, "access_token_ttl")
	require.Equal(t, StatusWarn, check.Status)
	require.Contains(t, check.Message, "72h")
}

func TestPostureDetectsStaleGrants(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedPolicy())
	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: strings.Repeat("s", 48)})
	require.NoError(t, err)

	requester := &models.User{Username: "viewer", Email: "viewer@example.com", Password: "x", Role: models.RoleViewer, IsActive: true}
	require.NoError(t, db.Create(requester).Error)

	expired := time.Now().Add(-2 * time.Hour).UTC()
	grant := &models.AccessRequest{
		RequesterID:   requester.ID,
		Code:          "edit:compliance",
		Reason:        "quarter-end cover",
		DurationHours: 1,
		Status:        models.AccessRequestApproved,
		GrantedUntil:  &expired,
	}
	require.NoError(t, db.Create(grant).Error)

	svc := NewPostureService(db, jwt)
	check := checkByID(t, svc.Run(context.Background()), "stale_access_grants")
	require.Equal(t, StatusFail, check.Status)
	require.Contains(t, check.Message, "1 expired")
}

func TestPostureDegradesWithoutDependencies(t *testing.T) {
	svc := NewPostureService(nil, nil)
	result := svc.Run(nil)

	require.Len(t, result.Checks, 4)
	for _, check := range result.Checks {
		require.Equal(t, StatusWarn, check.Status, check.ID)
	}
}
