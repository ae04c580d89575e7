package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/app"
	iauth "github.com/veritrail/veritrail/internal/auth"
	"github.com/veritrail/veritrail/internal/database/testutil"
	"github.com/veritrail/veritrail/internal/models"
	"github.com/veritrail/veritrail/internal/services"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type apiFixture struct {
	db     *gorm.DB
	router *gin.Engine
	jwt    *iauth.JWTService
	users  *services.UserService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedPolicy())
	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "veritrail"})
	require.NoError(t, err)

	cfg, err := app.LoadConfig(t.TempDir())
	require.NoError(t, err)

	router, err := NewRouter(db, jwt, cfg)
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	users, err := services.NewUserService(db, audit)
	require.NoError(t, err)

	return &apiFixture{db: db, router: router, jwt: jwt, users: users}
}

func (f *apiFixture) createUser(t *testing.T, username string, role models.Role) *models.User {
	t.Helper()
	user, err := f.users.Create(context.Background(), services.CreateUserInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "password-123",
		Role:     role,
	})
	require.NoError(t, err)
	return user
}

func (f *apiFixture) tokenFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := f.jwt.GenerateAccessToken(user)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(encoded)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "veritrail_")
}

func TestLoginAndMe(t *testing.T) {
	f := newAPIFixture(t)
	f.createUser(t, "alice", models.RoleComplianceOfficer)

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": "password-123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	token, _ := data["access_token"].(string)
	require.NotEmpty(t, token)

	rec = f.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeData(t, rec)
	require.Equal(t, "alice", me["username"])

	rec = f.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/api/risks", "/api/audit", "/api/users", "/api/access-requests/mine"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "path %s", path)
	}
}

func TestRiskProposalLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	officer := f.createUser(t, "officer", models.RoleComplianceOfficer)
	manager := f.createUser(t, "manager", models.RoleManager)
	officerToken := f.tokenFor(t, officer)
	managerToken := f.tokenFor(t, manager)

	rec := f.do(t, http.MethodPost, "/api/risks", managerToken, gin.H{
		"title":    "Settlement failures in overnight batch",
		"severity": "HIGH",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	risk := decodeData(t, rec)
	riskID, _ := risk["id"].(string)
	require.Equal(t, "RSK-001", risk["reference"])

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/risks/%s/proposals", riskID), managerToken, gin.H{
		"field_changed": "severity",
		"old_value":     "HIGH",
		"new_value":     "CRITICAL",
		"rationale":     "two more incidents this week",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	proposal := decodeData(t, rec)
	proposalID, _ := proposal["id"].(string)
	require.Equal(t, "PENDING", proposal["status"])

	// Managers cannot approve.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/risks/%s/proposals/%s/review", riskID, proposalID), managerToken, gin.H{
		"decision": "APPROVED",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/risks/%s/proposals/%s/review", riskID, proposalID), officerToken, gin.H{
		"decision": "APPROVED",
		"note":     "agreed",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	reviewed := decodeData(t, rec)
	require.Equal(t, "APPROVED", reviewed["status"])

	rec = f.do(t, http.MethodGet, "/api/risks/"+riskID, managerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "CRITICAL", decodeData(t, rec)["severity"])

	// A second review conflicts.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/risks/%s/proposals/%s/review", riskID, proposalID), officerToken, gin.H{
		"decision": "REJECTED",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuditSurfaceIsReadOnly(t *testing.T) {
	f := newAPIFixture(t)
	officer := f.createUser(t, "officer", models.RoleComplianceOfficer)
	viewer := f.createUser(t, "viewer", models.RoleViewer)
	officerToken := f.tokenFor(t, officer)
	viewerToken := f.tokenFor(t, viewer)

	rec := f.do(t, http.MethodGet, "/api/audit", officerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Viewers lack view:audit.
	rec = f.do(t, http.MethodGet, "/api/audit", viewerToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodPost} {
		rec = f.do(t, method, "/api/audit/some-id", officerToken, gin.H{"action": "tampered"})
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code, "method %s", method)
		require.Contains(t, rec.Body.String(), "AUDIT_IMMUTABLE")
	}
}

func TestUserAdministrationRequiresManagePermission(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.createUser(t, "admin", models.RoleAdmin)
	officer := f.createUser(t, "officer", models.RoleComplianceOfficer)
	adminToken := f.tokenFor(t, admin)
	officerToken := f.tokenFor(t, officer)

	rec := f.do(t, http.MethodGet, "/api/users", officerToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/users", adminToken, gin.H{
		"username": "newbie",
		"email":    "newbie@example.com",
		"password": "password-123",
		"role":     "VIEWER",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeData(t, rec)
	newbieID, _ := created["id"].(string)

	rec = f.do(t, http.MethodPut, "/api/users/"+newbieID+"/role", adminToken, gin.H{"role": "MANAGER"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "MANAGER", decodeData(t, rec)["role"])

	// Per-user override beats the role default.
	rec = f.do(t, http.MethodPut, "/api/users/"+officer.ID+"/permissions", adminToken, gin.H{
		"code":    "can:approve-entities",
		"granted": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/users/"+officer.ID+"/permissions/can:approve-entities", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAccessRequestFlowOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	viewer := f.createUser(t, "viewer", models.RoleViewer)
	admin := f.createUser(t, "admin", models.RoleAdmin)
	viewerToken := f.tokenFor(t, viewer)
	adminToken := f.tokenFor(t, admin)

	rec := f.do(t, http.MethodPost, "/api/access-requests", viewerToken, gin.H{
		"code":           "edit:compliance",
		"reason":         "covering for quarter-end",
		"duration_hours": 24,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	request := decodeData(t, rec)
	requestID, _ := request["id"].(string)
	require.Equal(t, "PENDING", request["status"])

	// Requesters can see their own requests but not the review queue.
	rec = f.do(t, http.MethodGet, "/api/access-requests/mine", viewerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/access-requests", viewerToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/access-requests/"+requestID+"/decision", adminToken, gin.H{"approve": true})
	require.Equal(t, http.StatusOK, rec.Code)
	decided := decodeData(t, rec)
	require.Equal(t, "APPROVED", decided["status"])

	// The elevation is live: the viewer can now create a risk.
	rec = f.do(t, http.MethodPost, "/api/risks", viewerToken, gin.H{"title": "Raised under elevation"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate pending request for the same permission conflicts.
	rec = f.do(t, http.MethodPost, "/api/access-requests", viewerToken, gin.H{
		"code":           "edit:compliance",
		"reason":         "asking again",
		"duration_hours": 24,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/access-requests", viewerToken, gin.H{
		"code":           "edit:compliance",
		"reason":         "and again",
		"duration_hours": 24,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostureEndpointIsAdminOnly(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.createUser(t, "admin", models.RoleAdmin)
	officer := f.createUser(t, "officer", models.RoleComplianceOfficer)

	rec := f.do(t, http.MethodGet, "/api/system/posture", f.tokenFor(t, officer), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/system/posture", f.tokenFor(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "jwt_secret_strength")
	require.Contains(t, rec.Body.String(), "admin_user_present")
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}
