package repository

import (
	"context"
	"time"

	"BarFeed/internal/domain/models"
)

// Provider supplies a batch of raw one-minute bars for the configured symbol.
// The batch may come in any order and may contain duplicates.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Bar, error)
}

// BarStore persists the cleaned series. Rows are keyed by timestamp and never updated.
type BarStore interface {
	// Latest returns the most recent bar, or ErrNotFound when the store is empty.
	Latest(ctx context.Context) (*models.Bar, error)

	// Since returns bars with timestamp >= from, ordered ascending.
	Since(ctx context.Context, from time.Time) ([]models.Bar, error)

	// Recent returns up to limit bars, newest first.
	Recent(ctx context.Context, limit int) ([]models.Bar, error)

	// CountSince counts bars with timestamp >= from.
	CountSince(ctx context.Context, from time.Time) (int, error)

	// InsertIgnoringConflicts inserts bars whose timestamp is not yet stored and
	// silently skips the rest. At most one row per timestamp is ever written.
	// Returns the number of rows actually inserted.
	InsertIgnoringConflicts(ctx context.Context, bars []models.Bar) (int, error)

	Health(ctx context.Context) error
}

// RunAuditStore keeps one row per ingestion run.
type RunAuditStore interface {
	Save(ctx context.Context, run *models.RunAudit) error

	// Last returns the most recently started run, or ErrNotFound.
	Last(ctx context.Context) (*models.RunAudit, error)
}

// Publisher fans saved bars and finished runs out to downstream consumers.
type Publisher interface {
	PublishBars(ctx context.Context, symbol string, bars []models.Bar) error
	PublishRun(ctx context.Context, run *models.RunAudit) error
	Close() error
}

// RunLock guards against overlapping ingestion runs for one symbol.
type RunLock interface {
	// TryLock returns false without blocking when another run holds the lock.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

type Metrics interface {
	RecordRun(outcome string, seconds float64)
	RecordProviderFailure(provider string)
	RecordBarsSaved(n int)
	RecordGapsFilled(n int)
	RecordOutliersRejected(n int)
	RecordLastBarAge(seconds float64)
	RecordHealth(status models.HealthStatus)
	RecordError(kind string)
}
