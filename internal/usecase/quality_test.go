package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarFeed/internal/domain/models"
)

func TestCleanEmptyBatch(t *testing.T) {
	last := bar(0, 100, 1)
	out, stats := NewQualityEngine(0).Clean(&last, nil)
	assert.Empty(t, out)
	assert.NotNil(t, out)
	assert.Equal(t, CleanStats{}, stats)
}

func TestCleanRejectsOutlier(t *testing.T) {
	last := bar(0, 100, 1)
	out, stats := NewQualityEngine(0.10).Clean(&last, []models.Bar{bar(1, 120, 1)})
	assert.Empty(t, out)
	assert.Equal(t, 1, stats.OutliersRejected)
	assert.Equal(t, 0, stats.GapsFilled)
}

func TestCleanAcceptsMoveAtTolerance(t *testing.T) {
	last := bar(0, 100, 1)
	out, stats := NewQualityEngine(0.10).Clean(&last, []models.Bar{bar(1, 110, 1)})
	require.Len(t, out, 1)
	assert.Equal(t, 0, stats.OutliersRejected)
}

func TestCleanFillsGapFromLastPersisted(t *testing.T) {
	last := bar(0, 100, 1)
	out, stats := NewQualityEngine(0).Clean(&last, []models.Bar{bar(3, 101, 5)})

	require.Len(t, out, 3)
	assert.Equal(t, 2, stats.GapsFilled)
	for i, b := range out[:2] {
		assert.Equal(t, t0.Add(time.Duration(i+1)*time.Minute), b.Timestamp)
		assert.Equal(t, models.ProvenanceFill, b.Provenance)
		assert.Equal(t, 100.0, b.Open)
		assert.Equal(t, 100.0, b.Close)
		assert.Equal(t, 0.0, b.Volume)
	}
	assert.Equal(t, 101.0, out[2].Close)
}

func TestCleanFillsGapsInsideBatch(t *testing.T) {
	out, stats := NewQualityEngine(0).Clean(nil, []models.Bar{bar(5, 100, 1), bar(2, 100, 1)})

	require.Len(t, out, 4)
	assert.Equal(t, 2, stats.GapsFilled)
	assert.Equal(t, t0.Add(2*time.Minute), out[0].Timestamp)
	assert.Equal(t, t0.Add(5*time.Minute), out[3].Timestamp)
}

func TestCleanNoLastBarNoLeadingFill(t *testing.T) {
	out, stats := NewQualityEngine(0).Clean(nil, []models.Bar{bar(3, 100, 1)})
	require.Len(t, out, 1)
	assert.Equal(t, 0, stats.GapsFilled)
}

func TestCleanDropsStaleAndDuplicateMinutes(t *testing.T) {
	last := bar(5, 100, 1)
	out, stats := NewQualityEngine(0).Clean(&last, []models.Bar{
		bar(4, 100, 1),
		bar(5, 100, 1),
		bar(6, 100, 1),
		bar(6, 101, 1),
	})

	require.Len(t, out, 1)
	assert.Equal(t, t0.Add(6*time.Minute), out[0].Timestamp)
	assert.Equal(t, 100.0, out[0].Close)
	assert.Equal(t, CleanStats{}, stats)
}

func TestCleanClampsNegativeVolume(t *testing.T) {
	out, _ := NewQualityEngine(0).Clean(nil, []models.Bar{bar(0, 100, -5)})
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].Volume)
}

func TestCleanOutlierCascades(t *testing.T) {
	// After 100 -> 130 is rejected, 128 and 131 are still judged against 100.
	last := bar(0, 100, 1)
	out, stats := NewQualityEngine(0.15).Clean(&last, []models.Bar{
		bar(1, 130, 1),
		bar(2, 128, 1),
		bar(3, 131, 1),
		bar(4, 105, 1),
	})

	assert.Equal(t, 3, stats.OutliersRejected)
	require.Len(t, out, 4)
	assert.Equal(t, 3, stats.GapsFilled)
	assert.Equal(t, 105.0, out[3].Close)
	assert.Equal(t, models.ProvenanceFill, out[0].Provenance)
}

func TestCleanZeroReferenceCloseAcceptsAll(t *testing.T) {
	last := bar(0, 0, 1)
	out, stats := NewQualityEngine(0.01).Clean(&last, []models.Bar{bar(1, 500, 1)})
	require.Len(t, out, 1)
	assert.Equal(t, 0, stats.OutliersRejected)
}

func TestCleanMaxFillGap(t *testing.T) {
	last := bar(0, 100, 1)
	e := NewQualityEngine(0, WithMaxFillGap(5*time.Minute))

	out, stats := e.Clean(&last, []models.Bar{bar(60, 100, 1), bar(62, 100, 1)})
	require.Len(t, out, 3)
	assert.Equal(t, 1, stats.GapsFilled)
	assert.Equal(t, t0.Add(60*time.Minute), out[0].Timestamp)
	assert.Equal(t, t0.Add(61*time.Minute), out[1].Timestamp)
}

func TestCleanOutputIsContiguous(t *testing.T) {
	last := bar(0, 100, 1)
	out, _ := NewQualityEngine(0).Clean(&last, []models.Bar{bar(7, 101, 1), bar(2, 100, 1), bar(4, 102, 1)})
	prev := last.Timestamp
	for _, b := range out {
		assert.Equal(t, time.Minute, b.Timestamp.Sub(prev))
		prev = b.Timestamp
	}
}

func TestCleanDoesNotMutateInput(t *testing.T) {
	in := []models.Bar{bar(2, 100, -1), bar(1, 100, 1)}
	_, _ = NewQualityEngine(0).Clean(nil, in)
	assert.Equal(t, -1.0, in[0].Volume)
	assert.Equal(t, t0.Add(2*time.Minute), in[0].Timestamp)
}

func TestNewQualityEngineDefault(t *testing.T) {
	assert.Equal(t, DefaultMaxJumpPct, NewQualityEngine(-1).MaxJumpPct())
}
