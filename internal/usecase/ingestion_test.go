package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	"BarFeed/internal/repository"
	"BarFeed/internal/service/runlock"
)

type stubProvider struct {
	name  string
	bars  []models.Bar
	err   error
	block bool
	panic bool
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Fetch(ctx context.Context) ([]models.Bar, error) {
	if p.panic {
		panic("upstream exploded")
	}
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	out := make([]models.Bar, len(p.bars))
	copy(out, p.bars)
	return out, nil
}

type failingBarStore struct {
	*repository.MemoryBarStore
	insertErr error
	latestErr error
}

func (s *failingBarStore) Latest(ctx context.Context) (*models.Bar, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	return s.MemoryBarStore.Latest(ctx)
}

func (s *failingBarStore) InsertIgnoringConflicts(ctx context.Context, bars []models.Bar) (int, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	return s.MemoryBarStore.InsertIgnoringConflicts(ctx, bars)
}

type recordingPublisher struct {
	mu   sync.Mutex
	bars []models.Bar
	runs []models.RunAudit
	err  error
}

func (p *recordingPublisher) PublishBars(_ context.Context, _ string, bars []models.Bar) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars = append(p.bars, bars...)
	return p.err
}

func (p *recordingPublisher) PublishRun(_ context.Context, run *models.RunAudit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, *run)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	failures []string
	errors   []string
}

func (m *recordingMetrics) RecordRun(outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordProviderFailure(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, p)
}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}

func (m *recordingMetrics) RecordBarsSaved(int) {}
func (m *recordingMetrics) RecordGapsFilled(int) {}
func (m *recordingMetrics) RecordOutliersRejected(int) {}
func (m *recordingMetrics) RecordLastBarAge(float64) {}
func (m *recordingMetrics) RecordHealth(models.HealthStatus) {}

type fixture struct {
	primary  *stubProvider
	fallback *stubProvider
	bars     *repository.MemoryBarStore
	runs     *repository.MemoryRunStore
	metrics  *recordingMetrics
}

func newFixture() *fixture {
	return &fixture{
		primary:  &stubProvider{name: "yahoo"},
		fallback: &stubProvider{name: "stooq"},
		bars:     repository.NewMemoryBarStore(),
		runs:     repository.NewMemoryRunStore(),
		metrics:  &recordingMetrics{},
	}
}

func (f *fixture) ingestion(opts ...IngestionOption) *Ingestion {
	var ids atomic.Int64
	in := NewIngestion("RELIANCE.NS", f.primary, f.fallback, f.bars, f.runs,
		append([]IngestionOption{
			WithMetrics(f.metrics),
			WithClock(func() time.Time { return t0.Add(20 * time.Minute) }),
		}, opts...)...,
	)
	in.newID = func() string {
		return fmt.Sprintf("run-%d", ids.Add(1))
	}
	return in
}

func TestRunIngestionMergesSources(t *testing.T) {
	f := newFixture()
	f.primary.bars = []models.Bar{bar(10, 100, 1), bar(11, 100.2, 1), bar(13, 100.4, 1)}
	f.fallback.bars = []models.Bar{bar(10, 100, 1), bar(11, 100.2, 1), bar(12, 100.3, 1), bar(13, 100.4, 1)}

	run, err := f.ingestion().RunIngestion(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", run.ID)
	assert.True(t, run.PrimaryOK)
	assert.True(t, run.FallbackOK)
	assert.Equal(t, 3, run.PrimaryFetched)
	assert.Equal(t, 4, run.FallbackFetched)
	assert.Equal(t, 4, run.BarsSaved)
	assert.Equal(t, 0, run.GapsFilled)
	assert.Equal(t, 0, run.OutliersRejected)
	assert.Empty(t, run.Notes)
	require.NotNil(t, run.FinishedAt)

	stored, err := f.bars.Since(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for i, b := range stored {
		assert.Equal(t, t0.Add(time.Duration(10+i)*time.Minute), b.Timestamp)
	}
	assert.Equal(t, models.ProvenanceFallback, stored[2].Provenance)

	require.Len(t, f.runs.All(), 1)
	assert.Equal(t, []string{OutcomeSaved}, f.metrics.outcomes)
}

func TestRunIngestionIsIdempotent(t *testing.T) {
	f := newFixture()
	f.primary.bars = []models.Bar{bar(0, 100, 1), bar(1, 100.1, 1)}
	f.fallback.bars = []models.Bar{bar(0, 100, 1), bar(1, 100.1, 1)}
	in := f.ingestion()

	_, err := in.RunIngestion(context.Background())
	require.NoError(t, err)
	second, err := in.RunIngestion(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, second.BarsSaved)
	assert.True(t, second.HasNote(models.NoteNoNewCandles))
	assert.Equal(t, 2, f.bars.Len())
	assert.Len(t, f.runs.All(), 2)
	assert.Equal(t, []string{OutcomeSaved, OutcomeNoNewBars}, f.metrics.outcomes)
}

func TestRunIngestionFillsFromLastPersisted(t *testing.T) {
	f := newFixture()
	_, err := f.bars.InsertIgnoringConflicts(context.Background(), []models.Bar{bar(0, 100, 1)})
	require.NoError(t, err)
	f.primary.bars = []models.Bar{bar(3, 101, 1)}
	f.fallback.err = errors.New("stooq down")

	run, err := f.ingestion().RunIngestion(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, run.GapsFilled)
	assert.Equal(t, 3, run.BarsSaved)
	assert.False(t, run.FallbackOK)
	assert.Equal(t, "fallback_error: stooq down", run.Notes)
	assert.Equal(t, []string{"stooq"}, f.metrics.failures)
	assert.Equal(t, 4, f.bars.Len())
}

func TestRunIngestionBothProvidersFail(t *testing.T) {
	f := newFixture()
	f.primary.err = errors.New("timeout")
	f.fallback.err = domrepo.ErrProviderEmpty

	run, err := f.ingestion().RunIngestion(context.Background())
	require.NoError(t, err)

	assert.False(t, run.PrimaryOK)
	assert.False(t, run.FallbackOK)
	assert.Equal(t, 0, run.BarsSaved)
	assert.Contains(t, run.Notes, "primary_error: timeout")
	assert.Contains(t, run.Notes, "fallback_error: provider returned no bars")
	assert.Len(t, f.runs.All(), 1)
	assert.Equal(t, 0, f.bars.Len())
	assert.Equal(t, []string{OutcomeEmpty}, f.metrics.outcomes)
}

func TestRunIngestionRecoversProviderPanic(t *testing.T) {
	f := newFixture()
	f.primary.panic = true
	f.fallback.bars = []models.Bar{bar(0, 100, 1)}

	run, err := f.ingestion().RunIngestion(context.Background())
	require.NoError(t, err)

	assert.False(t, run.PrimaryOK)
	assert.Contains(t, run.Notes, "primary_error: yahoo: panic: upstream exploded")
	assert.Equal(t, 1, run.BarsSaved)
}

func TestRunIngestionProviderTimeout(t *testing.T) {
	f := newFixture()
	f.primary.block = true
	f.fallback.bars = []models.Bar{bar(0, 100, 1)}

	start := time.Now()
	run, err := f.ingestion(WithProviderTimeout(20 * time.Millisecond)).RunIngestion(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, run.Notes, context.DeadlineExceeded.Error())
	assert.Equal(t, 1, run.BarsSaved)
}

func TestRunIngestionStorageFailure(t *testing.T) {
	f := newFixture()
	f.primary.bars = []models.Bar{bar(0, 100, 1)}
	store := &failingBarStore{MemoryBarStore: f.bars, insertErr: errors.New("connection reset")}

	in := NewIngestion("RELIANCE.NS", f.primary, f.fallback, store, f.runs, WithMetrics(f.metrics))
	run, err := in.RunIngestion(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")
	require.NotNil(t, run)
	assert.Empty(t, f.runs.All())
	assert.Equal(t, []string{OutcomeFailed}, f.metrics.outcomes)
	assert.Contains(t, f.metrics.errors, "storage")
}

func TestRunIngestionLatestFailure(t *testing.T) {
	f := newFixture()
	f.primary.bars = []models.Bar{bar(0, 100, 1)}
	store := &failingBarStore{MemoryBarStore: f.bars, latestErr: errors.New("db gone")}

	_, err := NewIngestion("X", f.primary, f.fallback, store, f.runs).RunIngestion(context.Background())
	assert.ErrorContains(t, err, "read latest bar")
	assert.Equal(t, 0, f.bars.Len())
}

func TestRunIngestionLockHeld(t *testing.T) {
	f := newFixture()
	lock := runlock.NewLocal()
	ok, err := lock.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	run, err := f.ingestion(WithRunLock(lock)).RunIngestion(context.Background())
	assert.ErrorIs(t, err, domrepo.ErrRunInProgress)
	assert.Nil(t, run)
	assert.Empty(t, f.runs.All())
	assert.Equal(t, []string{OutcomeInProgress}, f.metrics.outcomes)
}

func TestRunIngestionReleasesLock(t *testing.T) {
	f := newFixture()
	lock := runlock.NewLocal()
	in := f.ingestion(WithRunLock(lock))

	_, err := in.RunIngestion(context.Background())
	require.NoError(t, err)

	ok, err := lock.TryLock(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunIngestionCanceledWritesNothing(t *testing.T) {
	f := newFixture()
	f.primary.bars = []models.Bar{bar(0, 100, 1), bar(1, 100, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ingestion().RunIngestion(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.bars.Len())
	assert.Empty(t, f.runs.All())
}

func TestRunIngestionPublishes(t *testing.T) {
	f := newFixture()
	f.primary.bars = []models.Bar{bar(0, 100, 1), bar(2, 100, 1)}
	pub := &recordingPublisher{}

	run, err := f.ingestion(WithPublisher(pub)).RunIngestion(context.Background())
	require.NoError(t, err)

	assert.Len(t, pub.bars, 3)
	require.Len(t, pub.runs, 1)
	assert.Equal(t, run.ID, pub.runs[0].ID)
}

func TestRunIngestionPublisherFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.primary.bars = []models.Bar{bar(0, 100, 1)}
	pub := &recordingPublisher{err: errors.New("broker unavailable")}

	run, err := f.ingestion(WithPublisher(pub)).RunIngestion(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.BarsSaved)
	assert.Len(t, f.runs.All(), 1)
	assert.Contains(t, f.metrics.errors, "publish_bars")
	assert.Contains(t, f.metrics.errors, "publish_run")
}

func TestRunIngestionRejectsOutliers(t *testing.T) {
	f := newFixture()
	_, err := f.bars.InsertIgnoringConflicts(context.Background(), []models.Bar{bar(0, 100, 1)})
	require.NoError(t, err)
	f.primary.bars = []models.Bar{bar(1, 150, 1), bar(2, 101, 1)}

	run, err := f.ingestion(WithQualityEngine(NewQualityEngine(0.10))).RunIngestion(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.OutliersRejected)
	assert.Equal(t, 1, run.GapsFilled)
	assert.Equal(t, 2, run.BarsSaved)
}

func TestRunIngestionConcurrentCallsDoNotOverlap(t *testing.T) {
	f := newFixture()
	f.primary.bars = []models.Bar{bar(0, 100, 1), bar(1, 100, 1), bar(2, 100, 1)}
	in := f.ingestion()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := in.RunIngestion(context.Background())
			if err != nil {
				assert.ErrorIs(t, err, domrepo.ErrRunInProgress)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, f.bars.Len())
}
