package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/domain/repository"
)

var t0 = time.Date(2024, 10, 10, 4, 0, 0, 0, time.UTC)

func minuteBar(i int, close float64) models.Bar {
	return models.Bar{
		Timestamp:  t0.Add(time.Duration(i) * time.Minute),
		Open:       close,
		High:       close,
		Low:        close,
		Close:      close,
		Volume:     10,
		Provenance: models.ProvenancePrimary,
	}
}

// testBarStore runs the behaviour every BarStore must share against an empty store.
func testBarStore(t *testing.T, store repository.BarStore) {
	ctx := context.Background()

	_, err := store.Latest(ctx)
	require.ErrorIs(t, err, repository.ErrNotFound)

	n, err := store.InsertIgnoringConflicts(ctx, []models.Bar{minuteBar(0, 100), minuteBar(1, 101), minuteBar(2, 102)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Overlapping batch: only minute 3 is new and minute 1 keeps its first value.
	n, err = store.InsertIgnoringConflicts(ctx, []models.Bar{minuteBar(1, 999), minuteBar(2, 102), minuteBar(3, 103)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.InsertIgnoringConflicts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Timestamp.Equal(t0.Add(3*time.Minute)))
	assert.Equal(t, 103.0, latest.Close)

	since, err := store.Since(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, since, 3)
	assert.Equal(t, 101.0, since[0].Close)
	for i := 1; i < len(since); i++ {
		assert.Equal(t, time.Minute, since[i].Timestamp.Sub(since[i-1].Timestamp))
	}

	count, err := store.CountSince(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 103.0, recent[0].Close)
	assert.Equal(t, 102.0, recent[1].Close)
	assert.Equal(t, models.ProvenancePrimary, recent[0].Provenance)

	require.NoError(t, store.Health(ctx))
}

func testRunStore(t *testing.T, store repository.RunAuditStore) {
	ctx := context.Background()

	_, err := store.Last(ctx)
	require.ErrorIs(t, err, repository.ErrNotFound)

	first := &models.RunAudit{ID: "6f1c0d3e-0000-4000-8000-000000000001", Symbol: "TEST", StartedAt: t0, ProviderPrimary: "yahoo", ProviderFallback: "stooq"}
	first.Finish(t0.Add(2 * time.Second))
	require.NoError(t, store.Save(ctx, first))

	second := &models.RunAudit{
		ID: "6f1c0d3e-0000-4000-8000-000000000002", Symbol: "TEST", StartedAt: t0.Add(time.Minute),
		ProviderPrimary: "yahoo", ProviderFallback: "stooq",
		PrimaryOK: true, PrimaryFetched: 5, BarsSaved: 4, GapsFilled: 1, Notes: "fallback_error: timeout",
	}
	second.Finish(t0.Add(time.Minute + time.Second))
	require.NoError(t, store.Save(ctx, second))

	// Saving again keeps the stored row.
	dup := *second
	dup.Notes = "changed"
	require.NoError(t, store.Save(ctx, &dup))

	last, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)
	assert.True(t, last.PrimaryOK)
	assert.False(t, last.FallbackOK)
	assert.Equal(t, 5, last.PrimaryFetched)
	assert.Equal(t, 4, last.BarsSaved)
	assert.Equal(t, 1, last.GapsFilled)
	assert.Equal(t, "fallback_error: timeout", last.Notes)
	require.NotNil(t, last.FinishedAt)
	assert.True(t, last.FinishedAt.Equal(t0.Add(time.Minute+time.Second)))
}
