package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	"BarFeed/internal/service/runlock"
	"BarFeed/pkg/logger"
	"BarFeed/pkg/metrics"
)

// Run outcomes reported to metrics.
const (
	OutcomeSaved      = "saved"
	OutcomeNoNewBars  = "no_new_candles"
	OutcomeEmpty      = "empty"
	OutcomeFailed     = "failed"
	OutcomeInProgress = "in_progress"
)

const defaultProviderTimeout = 20 * time.Second

// Ingestion runs one fetch-reconcile-clean-persist cycle per call.
type Ingestion struct {
	symbol   string
	primary  domrepo.Provider
	fallback domrepo.Provider
	bars     domrepo.BarStore
	runs     domrepo.RunAuditStore
	quality  *QualityEngine
	lock     domrepo.RunLock
	pub      domrepo.Publisher
	metrics  domrepo.Metrics
	log      *logger.Logger

	providerTimeout time.Duration
	now             func() time.Time
	newID           func() string
}

type IngestionOption func(*Ingestion)

func WithProviderTimeout(d time.Duration) IngestionOption {
	return func(in *Ingestion) {
		if d > 0 {
			in.providerTimeout = d
		}
	}
}

// WithRunLock guards runs against overlap. Without it runs are serialized in-process.
func WithRunLock(l domrepo.RunLock) IngestionOption {
	return func(in *Ingestion) {
		if l != nil {
			in.lock = l
		}
	}
}

// WithPublisher fans saved bars and finished runs out after the write.
func WithPublisher(p domrepo.Publisher) IngestionOption {
	return func(in *Ingestion) { in.pub = p }
}

func WithMetrics(m domrepo.Metrics) IngestionOption {
	return func(in *Ingestion) {
		if m != nil {
			in.metrics = m
		}
	}
}

func WithLogger(l *logger.Logger) IngestionOption {
	return func(in *Ingestion) {
		if l != nil {
			in.log = l
		}
	}
}

func WithQualityEngine(q *QualityEngine) IngestionOption {
	return func(in *Ingestion) {
		if q != nil {
			in.quality = q
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) IngestionOption {
	return func(in *Ingestion) {
		if now != nil {
			in.now = now
		}
	}
}

func NewIngestion(
	symbol string,
	primary, fallback domrepo.Provider,
	bars domrepo.BarStore,
	runs domrepo.RunAuditStore,
	opts ...IngestionOption,
) *Ingestion {
	in := &Ingestion{
		symbol:          symbol,
		primary:         primary,
		fallback:        fallback,
		bars:            bars,
		runs:            runs,
		quality:         NewQualityEngine(DefaultMaxJumpPct),
		lock:            runlock.NewLocal(),
		metrics:         metrics.Nop{},
		log:             logger.NewNop(),
		providerTimeout: defaultProviderTimeout,
		now:             time.Now,
		newID:           func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

type fetchResult struct {
	bars []models.Bar
	err  error
}

// RunIngestion executes one cycle and returns its audit. Provider failures are noted on
// the audit and never returned. Only storage failures are returned as errors, together
// with the partially filled audit. ErrRunInProgress is returned when another run holds
// the lock.
func (in *Ingestion) RunIngestion(ctx context.Context) (*models.RunAudit, error) {
	ok, err := in.lock.TryLock(ctx)
	if err != nil {
		in.metrics.RecordError("run_lock")
		return nil, fmt.Errorf("run lock: %w", err)
	}
	if !ok {
		in.metrics.RecordRun(OutcomeInProgress, 0)
		return nil, domrepo.ErrRunInProgress
	}
	defer func() {
		// Release even when ctx is already canceled.
		if err := in.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			in.log.Warn("run lock release failed", logger.Error(err))
		}
	}()

	started := in.now()
	run := &models.RunAudit{
		ID:               in.newID(),
		Symbol:           in.symbol,
		StartedAt:        started.UTC(),
		ProviderPrimary:  in.primary.Name(),
		ProviderFallback: in.fallback.Name(),
	}

	outcome, latest, err := in.run(ctx, run)
	elapsed := in.now().Sub(started)
	in.metrics.RecordRun(outcome, elapsed.Seconds())
	if err != nil {
		in.metrics.RecordError("storage")
		in.log.Error("ingestion run failed",
			logger.String("run_id", run.ID),
			logger.String("symbol", in.symbol),
			logger.String("notes", run.Notes),
			logger.Error(err),
		)
		return run, err
	}

	in.logSummary(run, outcome, latest, elapsed)
	return run, nil
}

// run returns the outcome and the newest bar timestamp known after the write.
func (in *Ingestion) run(ctx context.Context, run *models.RunAudit) (string, time.Time, error) {
	primary, fallback := in.fetchBoth(ctx)

	if primary.err != nil {
		run.AddNote("primary_error: " + primary.err.Error())
		in.metrics.RecordProviderFailure(in.primary.Name())
	} else {
		run.PrimaryOK = true
		run.PrimaryFetched = len(primary.bars)
	}
	if fallback.err != nil {
		run.AddNote("fallback_error: " + fallback.err.Error())
		in.metrics.RecordProviderFailure(in.fallback.Name())
	} else {
		run.FallbackOK = true
		run.FallbackFetched = len(fallback.bars)
	}

	last, err := in.bars.Latest(ctx)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			return OutcomeFailed, time.Time{}, fmt.Errorf("storage: read latest bar: %w", err)
		}
		last = nil
	}
	var latest time.Time
	if last != nil {
		latest = last.Minute()
	}

	merged := Reconcile(primary.bars, fallback.bars)

	outcome := OutcomeEmpty
	var saved []models.Bar
	if last != nil && len(merged) > 0 && !merged[len(merged)-1].Minute().After(last.Minute()) {
		run.AddNote(models.NoteNoNewCandles)
		outcome = OutcomeNoNewBars
	} else {
		cleaned, stats := in.quality.Clean(last, merged)
		run.GapsFilled = stats.GapsFilled
		run.OutliersRejected = stats.OutliersRejected

		if len(cleaned) > 0 {
			// Nothing is written once the run has been canceled.
			if err := ctx.Err(); err != nil {
				run.GapsFilled, run.OutliersRejected = 0, 0
				return OutcomeFailed, latest, fmt.Errorf("run canceled before write: %w", err)
			}
			n, err := in.bars.InsertIgnoringConflicts(ctx, cleaned)
			if err != nil {
				return OutcomeFailed, latest, fmt.Errorf("storage: insert bars: %w", err)
			}
			run.BarsSaved = n
			saved = cleaned
			if ts := cleaned[len(cleaned)-1].Timestamp; ts.After(latest) {
				latest = ts
			}
			outcome = OutcomeSaved
		}
	}

	run.Finish(in.now().UTC())
	if err := in.runs.Save(ctx, run); err != nil {
		return OutcomeFailed, latest, fmt.Errorf("storage: save run audit: %w", err)
	}

	in.metrics.RecordBarsSaved(run.BarsSaved)
	in.metrics.RecordGapsFilled(run.GapsFilled)
	in.metrics.RecordOutliersRejected(run.OutliersRejected)
	in.publish(ctx, run, saved)
	return outcome, latest, nil
}

// fetchBoth calls both providers concurrently, each under its own timeout, and waits for both.
func (in *Ingestion) fetchBoth(ctx context.Context) (primary, fallback fetchResult) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		primary = in.fetch(ctx, in.primary)
	}()
	go func() {
		defer wg.Done()
		fallback = in.fetch(ctx, in.fallback)
	}()
	wg.Wait()
	return primary, fallback
}

func (in *Ingestion) fetch(ctx context.Context, p domrepo.Provider) (res fetchResult) {
	ctx, cancel := context.WithTimeout(ctx, in.providerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res = fetchResult{err: fmt.Errorf("%s: panic: %v", p.Name(), r)}
		}
	}()

	bars, err := p.Fetch(ctx)
	if err != nil {
		return fetchResult{err: err}
	}
	return fetchResult{bars: bars}
}

func (in *Ingestion) publish(ctx context.Context, run *models.RunAudit, saved []models.Bar) {
	if in.pub == nil {
		return
	}
	if len(saved) > 0 {
		if err := in.pub.PublishBars(ctx, in.symbol, saved); err != nil {
			in.metrics.RecordError("publish_bars")
			in.log.Warn("publish bars failed", logger.String("run_id", run.ID), logger.Error(err))
		}
	}
	if err := in.pub.PublishRun(ctx, run); err != nil {
		in.metrics.RecordError("publish_run")
		in.log.Warn("publish run failed", logger.String("run_id", run.ID), logger.Error(err))
	}
}

func (in *Ingestion) logSummary(run *models.RunAudit, outcome string, latest time.Time, elapsed time.Duration) {
	fields := []logger.Field{
		logger.String("run_id", run.ID),
		logger.String("symbol", run.Symbol),
		logger.String("outcome", outcome),
		logger.String("primary", run.ProviderPrimary),
		logger.Bool("primary_ok", run.PrimaryOK),
		logger.Int("primary_fetched", run.PrimaryFetched),
		logger.String("fallback", run.ProviderFallback),
		logger.Bool("fallback_ok", run.FallbackOK),
		logger.Int("fallback_fetched", run.FallbackFetched),
		logger.Int("saved", run.BarsSaved),
		logger.Int("gaps_filled", run.GapsFilled),
		logger.Int("outliers_rejected", run.OutliersRejected),
		logger.Duration("elapsed_ms", elapsed),
	}
	if !latest.IsZero() {
		fields = append(fields, logger.Time("last_bar", latest))
	}
	if run.Notes != "" {
		fields = append(fields, logger.String("notes", run.Notes))
	}
	in.log.Info("ingestion run finished", fields...)
}
