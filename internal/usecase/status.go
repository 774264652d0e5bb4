package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	domsvc "BarFeed/internal/domain/service"
	"BarFeed/pkg/cache"
	"BarFeed/pkg/logger"
	"BarFeed/pkg/metrics"
)

// PipelineStatus is the on-demand view served by the status endpoint and the healthcheck.
type PipelineStatus struct {
	Symbol        string                `json:"symbol"`
	Health        models.PipelineHealth `json:"health"`
	LastRun       *models.RunAudit      `json:"last_run"`
	LastBarTime   *time.Time            `json:"last_bar_time"`
	BarsInLast60m int                   `json:"bars_in_last_60m"`
	EvaluatedAt   time.Time             `json:"evaluated_at"`
}

// StatusUseCase evaluates pipeline health from the store.
type StatusUseCase struct {
	symbol  string
	bars    domrepo.BarStore
	runs    domrepo.RunAuditStore
	session *domsvc.Session
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time

	cache    cache.Service
	cacheTTL time.Duration
}

type StatusOption func(*StatusUseCase)

// WithStatusCache keeps the evaluated status in c for ttl.
func WithStatusCache(c cache.Service, ttl time.Duration) StatusOption {
	return func(uc *StatusUseCase) {
		if c != nil && ttl > 0 {
			uc.cache = c
			uc.cacheTTL = ttl
		}
	}
}

func WithStatusMetrics(m domrepo.Metrics) StatusOption {
	return func(uc *StatusUseCase) {
		if m != nil {
			uc.metrics = m
		}
	}
}

func WithStatusLogger(l *logger.Logger) StatusOption {
	return func(uc *StatusUseCase) {
		if l != nil {
			uc.log = l
		}
	}
}

func WithStatusClock(now func() time.Time) StatusOption {
	return func(uc *StatusUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func NewStatusUseCase(
	symbol string,
	bars domrepo.BarStore,
	runs domrepo.RunAuditStore,
	session *domsvc.Session,
	opts ...StatusOption,
) *StatusUseCase {
	uc := &StatusUseCase{
		symbol:  symbol,
		bars:    bars,
		runs:    runs,
		session: session,
		metrics: metrics.Nop{},
		log:     logger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *StatusUseCase) cacheKey() string { return "status:" + uc.symbol }

// Status evaluates health at the current time. A cached status is returned while fresh.
func (uc *StatusUseCase) Status(ctx context.Context) (*PipelineStatus, error) {
	if uc.cache != nil {
		var cached PipelineStatus
		err := uc.cache.Get(ctx, uc.cacheKey(), &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			uc.log.Warn("status cache read failed", logger.Error(err))
		}
	}

	st, err := uc.evaluate(ctx)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, uc.cacheKey(), st, uc.cacheTTL); err != nil {
			uc.log.Warn("status cache write failed", logger.Error(err))
		}
	}
	return st, nil
}

func (uc *StatusUseCase) evaluate(ctx context.Context) (*PipelineStatus, error) {
	now := uc.now()

	last, err := uc.bars.Latest(ctx)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			return nil, fmt.Errorf("get latest bar: %w", err)
		}
		last = nil
	}

	count, err := uc.bars.CountSince(ctx, now.Add(-60*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("count recent bars: %w", err)
	}

	run, err := uc.runs.Last(ctx)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			return nil, fmt.Errorf("get last run: %w", err)
		}
		run = nil
	}

	health := uc.session.EvaluateHealth(last, count, now)

	st := &PipelineStatus{
		Symbol:        uc.symbol,
		Health:        health,
		LastRun:       run,
		BarsInLast60m: count,
		EvaluatedAt:   now.UTC(),
	}
	if last != nil {
		ts := last.Timestamp.UTC()
		st.LastBarTime = &ts
	}

	uc.metrics.RecordHealth(health.Status)
	if health.SecondsSinceLastBar != nil {
		uc.metrics.RecordLastBarAge(float64(*health.SecondsSinceLastBar))
	}
	return st, nil
}

// Refresh evaluates health without the cache so the health gauges track the store.
func (uc *StatusUseCase) Refresh(ctx context.Context) error {
	_, err := uc.evaluate(ctx)
	return err
}
