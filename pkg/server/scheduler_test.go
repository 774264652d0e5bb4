package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
)

type countingJob struct {
	calls atomic.Int32
	err   error
}

func (j *countingJob) RunIngestion(context.Context) (*models.RunAudit, error) {
	j.calls.Add(1)
	return &models.RunAudit{}, j.err
}

type fixedClock models.MarketState

func (c fixedClock) MarketState(time.Time) models.MarketState { return models.MarketState(c) }

type countingRefresher struct{ calls atomic.Int32 }

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return nil
}

func TestTickRunsWhenOpen(t *testing.T) {
	job := &countingJob{}
	ref := &countingRefresher{}
	s := NewScheduler(job, fixedClock(models.MarketOpen), time.Minute,
		WithMarketHoursOnly(true), WithStatusRefresher(ref))

	assert.True(t, s.Tick(context.Background()))
	assert.EqualValues(t, 1, job.calls.Load())
	assert.EqualValues(t, 1, ref.calls.Load())
}

func TestTickSkipsWhenClosed(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, fixedClock(models.MarketClosed), time.Minute, WithMarketHoursOnly(true))

	assert.False(t, s.Tick(context.Background()))
	assert.EqualValues(t, 0, job.calls.Load())
}

func TestTickIgnoresSessionWhenAlwaysOn(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, fixedClock(models.MarketClosed), time.Minute, WithMarketHoursOnly(false))

	assert.True(t, s.Tick(context.Background()))
	assert.EqualValues(t, 1, job.calls.Load())
}

func TestTickToleratesErrors(t *testing.T) {
	for _, err := range []error{domrepo.ErrRunInProgress, errors.New("storage: boom")} {
		job := &countingJob{err: err}
		s := NewScheduler(job, nil, time.Minute)
		assert.True(t, s.Tick(context.Background()))
	}
}

func TestRunTicksUntilCanceled(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, fixedClock(models.MarketOpen), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return job.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

type blockingRunner struct{ stopped atomic.Bool }

func (r *blockingRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	r.stopped.Store(true)
	return nil
}

func TestAppRunContextStopsRunners(t *testing.T) {
	job := &countingJob{}
	runner := &blockingRunner{}
	app := New(nil, NewScheduler(job, nil, time.Hour), nil, []Runner{runner}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	assert.Eventually(t, func() bool { return job.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.True(t, runner.stopped.Load())
}
