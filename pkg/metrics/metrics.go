package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritrail_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// PermissionChecks counts permission resolutions and their outcome
	// (allowed|denied|error) per permission code. Denied checks are counted
	// here rather than written to the audit ledger.
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritrail_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// ProposalReviews counts change-proposal reviews by decision (approved|rejected|conflict).
	ProposalReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veritrail_proposal_reviews_total",
			Help: "Total number of change proposal reviews",
		},
		[]string{"decision"},
	)

	// AccessGrantsExpired counts access requests transitioned to EXPIRED by the sweeper.
	AccessGrantsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veritrail_access_grants_expired_total",
			Help: "Total number of access grants expired by the background sweep",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veritrail_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
