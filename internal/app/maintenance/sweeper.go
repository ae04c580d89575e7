package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/veritrail/veritrail/internal/services"
	"github.com/veritrail/veritrail/pkg/logger"
)

const defaultSweepSpec = "@every 5m"

// Sweeper periodically expires lapsed access grants. The audit ledger is a
// permanent record and is never pruned here.
type Sweeper struct {
	access *services.AccessService
	cron   *cron.Cron
	now    func() time.Time
	log    *zap.Logger

	sweepSchedule string
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchedule overrides the cron specification for the expiry sweep.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.sweepSchedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults. A nil access
// service disables the sweep entirely.
func NewSweeper(access *services.AccessService, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		access:        access,
		now:           time.Now,
		sweepSchedule: defaultSweepSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return sweeper
}

// Start registers the sweep job with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	if s.access == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.sweepSchedule, func() {
		ctx := context.Background()
		expired, err := s.access.SweepExpired(ctx, s.now())
		if err != nil {
			s.log.Warn("access grant sweep failed", zap.Error(err))
			return
		}
		if expired > 0 {
			s.log.Info("expired access grants revoked", zap.Int("count", expired))
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running job to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes the sweep immediately. Primarily used in tests and during
// graceful shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if s.access != nil {
		if _, err := s.access.SweepExpired(ctx, s.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
