package server

import (
	"context"
	"errors"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	"BarFeed/pkg/logger"
)

// IngestionJob runs one ingestion cycle.
type IngestionJob interface {
	RunIngestion(ctx context.Context) (*models.RunAudit, error)
}

// MarketClock classifies a point in time as inside or outside the session.
type MarketClock interface {
	MarketState(now time.Time) models.MarketState
}

// StatusRefresher re-evaluates pipeline health, updating the health gauges.
type StatusRefresher interface {
	Refresh(ctx context.Context) error
}

// Scheduler triggers an ingestion run on every tick.
type Scheduler struct {
	job             IngestionJob
	clock           MarketClock
	interval        time.Duration
	marketHoursOnly bool
	refresher       StatusRefresher
	log             *logger.Logger
	now             func() time.Time
}

type SchedulerOption func(*Scheduler)

// WithMarketHoursOnly skips ticks while the market is closed.
func WithMarketHoursOnly(enabled bool) SchedulerOption {
	return func(s *Scheduler) { s.marketHoursOnly = enabled }
}

func WithStatusRefresher(r StatusRefresher) SchedulerOption {
	return func(s *Scheduler) { s.refresher = r }
}

func WithSchedulerLogger(l *logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScheduler(job IngestionJob, clock MarketClock, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	s := &Scheduler{
		job:      job,
		clock:    clock,
		interval: interval,
		log:      logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started",
		logger.Duration("interval_ms", s.interval),
		logger.Bool("market_hours_only", s.marketHoursOnly),
	)
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one cycle unless the market is closed and market-hours-only is on.
// It reports whether a run was attempted.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if s.marketHoursOnly && s.clock != nil && s.clock.MarketState(s.now()) == models.MarketClosed {
		s.log.Debug("ingestion skipped", logger.String("reason", "market_closed"))
		s.refresh(ctx)
		return false
	}

	_, err := s.job.RunIngestion(ctx)
	switch {
	case errors.Is(err, domrepo.ErrRunInProgress):
		s.log.Info("ingestion skipped", logger.String("reason", "run_in_progress"))
	case err != nil && ctx.Err() == nil:
		s.log.Error("ingestion run error", logger.Error(err))
	}
	s.refresh(ctx)
	return true
}

func (s *Scheduler) refresh(ctx context.Context) {
	if s.refresher == nil || ctx.Err() != nil {
		return
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		s.log.Warn("status refresh failed", logger.Error(err))
	}
}
