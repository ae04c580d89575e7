package security

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	iauth "github.com/veritrail/veritrail/internal/auth"
	"github.com/veritrail/veritrail/internal/models"
)

// CheckStatus captures the outcome of a posture check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single posture verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// PostureService evaluates the deployment's compliance posture: administrator
// coverage, token hygiene, and the state of time-boxed access grants.
type PostureService struct {
	db  *gorm.DB
	jwt *iauth.JWTService
	now func() time.Time
}

// NewPostureService constructs the posture service. Dependencies are optional;
// missing inputs degrade the affected checks to warnings.
func NewPostureService(db *gorm.DB, jwt *iauth.JWTService) *PostureService {
	return &PostureService{
		db:  db,
		jwt: jwt,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *PostureService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all posture checks and returns their outcome.
func (s *PostureService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkAdminUser(ctx),
		s.checkJWTSecret(),
		s.checkAccessTokenTTL(),
		s.checkStaleGrants(ctx),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}

	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *PostureService) checkAdminUser(ctx context.Context) Check {
	if s.db == nil {
		return Check{
			ID:          "admin_user_present",
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to confirm administrator presence.",
			Remediation: "Ensure database connectivity before running the posture check.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Count(&count).Error; err != nil {
		return Check{
			ID:          "admin_user_present",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not verify administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          "admin_user_present",
			Status:      StatusFail,
			Message:     "No active administrator found.",
			Remediation: "Create an active ADMIN user so access requests can be reviewed.",
		}
	}

	return Check{
		ID:      "admin_user_present",
		Status:  StatusPass,
		Message: "Active administrator present.",
		Details: map[string]any{"count": count},
	}
}

func (s *PostureService) checkJWTSecret() Check {
	if s.jwt == nil {
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     "JWT service not initialised; unable to assess signing secret strength.",
			Remediation: "Initialise the JWT service with a strong secret.",
		}
	}

	length := s.jwt.SecretLength()

	switch {
	case length == 0:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: "Provide a cryptographically secure signing secret (>= 32 bytes).",
		}
	case length < 32:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case length < 48:
		return Check{
			ID:          "jwt_secret_strength",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to 48+ bytes.", length),
			Remediation: "Increase the length of VERITRAIL_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      "jwt_secret_strength",
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *PostureService) checkAccessTokenTTL() Check {
	if s.jwt == nil {
		return Check{
			ID:          "access_token_ttl",
			Status:      StatusWarn,
			Message:     "JWT service not initialised; unable to evaluate token lifetime.",
			Remediation: "Initialise the JWT service before running the posture check.",
		}
	}

	const maxRecommended = 24 * time.Hour

	ttl := s.jwt.AccessTokenTTL()
	if ttl > maxRecommended {
		return Check{
			ID:          "access_token_ttl",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL (%s) exceeds recommended maximum (%s).", ttl, maxRecommended),
			Remediation: "Reduce auth.jwt.access_token_ttl to 24 hours or lower to limit credential exposure.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      "access_token_ttl",
		Status:  StatusPass,
		Message: fmt.Sprintf("Access token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

// checkStaleGrants flags approved elevations whose expiry has passed but whose
// permission override has not been swept yet.
func (s *PostureService) checkStaleGrants(ctx context.Context) Check {
	if s.db == nil {
		return Check{
			ID:          "stale_access_grants",
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to inspect access grants.",
			Remediation: "Ensure database connectivity before running the posture check.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.AccessRequest{}).
		Where("status = ? AND granted_until IS NOT NULL AND granted_until < ?", models.AccessRequestApproved, s.now().UTC()).
		Count(&count).Error; err != nil {
		return Check{
			ID:          "stale_access_grants",
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not inspect access grants: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count > 0 {
		return Check{
			ID:          "stale_access_grants",
			Status:      StatusFail,
			Message:     fmt.Sprintf("%d expired access grant(s) are still active.", count),
			Remediation: "Verify the maintenance sweep is enabled and its schedule is running.",
			Details:     map[string]any{"count": count},
		}
	}

	return Check{
		ID:      "stale_access_grants",
		Status:  StatusPass,
		Message: "No expired access grants are awaiting cleanup.",
	}
}
