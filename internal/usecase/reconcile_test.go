package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarFeed/internal/domain/models"
)

var t0 = time.Date(2024, 10, 10, 4, 0, 0, 0, time.UTC)

func bar(min int, closePx, volume float64) models.Bar {
	return models.Bar{
		Timestamp: t0.Add(time.Duration(min) * time.Minute),
		Open:      closePx,
		High:      closePx,
		Low:       closePx,
		Close:     closePx,
		Volume:    volume,
	}
}

func TestReconcileUnion(t *testing.T) {
	primary := []models.Bar{bar(10, 100, 1), bar(11, 101, 1), bar(13, 103, 1)}
	fallback := []models.Bar{bar(10, 100, 1), bar(11, 101, 1), bar(12, 102, 1), bar(13, 103, 1)}

	merged := Reconcile(primary, fallback)
	require.Len(t, merged, 4)
	for i, b := range merged {
		assert.Equal(t, t0.Add(time.Duration(10+i)*time.Minute), b.Timestamp)
	}
	assert.Equal(t, models.ProvenancePrimary, merged[0].Provenance)
	assert.Equal(t, models.ProvenancePrimary, merged[1].Provenance)
	assert.Equal(t, models.ProvenanceFallback, merged[2].Provenance)
	assert.Equal(t, models.ProvenancePrimary, merged[3].Provenance)
}

func TestReconcileAgreementKeepsPrimary(t *testing.T) {
	// 1.5% apart, below the threshold, fallback volume ignored.
	merged := Reconcile([]models.Bar{bar(0, 100, 10)}, []models.Bar{bar(0, 101.5, 1000)})
	require.Len(t, merged, 1)
	assert.Equal(t, 100.0, merged[0].Close)
	assert.Equal(t, models.ProvenancePrimary, merged[0].Provenance)
}

func TestReconcileExactlyAtThresholdKeepsPrimary(t *testing.T) {
	merged := Reconcile([]models.Bar{bar(0, 100, 10)}, []models.Bar{bar(0, 102, 1000)})
	assert.Equal(t, models.ProvenancePrimary, merged[0].Provenance)
}

func TestReconcileDisagreementPrefersVolume(t *testing.T) {
	tests := []struct {
		name       string
		primaryVol float64
		fallbackV  float64
		want       models.Provenance
		wantClose  float64
	}{
		{"fallback heavier", 10, 20, models.ProvenanceFallback, 105},
		{"primary heavier", 30, 20, models.ProvenancePrimary, 100},
		{"tie stays primary", 20, 20, models.ProvenancePrimary, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := Reconcile(
				[]models.Bar{bar(0, 100, tt.primaryVol)},
				[]models.Bar{bar(0, 105, tt.fallbackV)},
			)
			require.Len(t, merged, 1)
			assert.Equal(t, tt.want, merged[0].Provenance)
			assert.Equal(t, tt.wantClose, merged[0].Close)
		})
	}
}

func TestReconcileZeroPrimaryClose(t *testing.T) {
	merged := Reconcile([]models.Bar{bar(0, 0, 1)}, []models.Bar{bar(0, 50, 100)})
	assert.Equal(t, models.ProvenancePrimary, merged[0].Provenance)
}

func TestReconcileEmptyInputs(t *testing.T) {
	assert.Empty(t, Reconcile(nil, nil))

	only := Reconcile(nil, []models.Bar{bar(1, 10, 1), bar(0, 9, 1)})
	require.Len(t, only, 2)
	assert.Equal(t, t0, only[0].Timestamp)
	assert.Equal(t, models.ProvenanceFallback, only[0].Provenance)
}

func TestReconcileNormalizesTimestamps(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	p := bar(0, 100, 1)
	p.Timestamp = p.Timestamp.Add(42 * time.Second).In(ist)
	f := bar(0, 100, 1)

	merged := Reconcile([]models.Bar{p}, []models.Bar{f})
	require.Len(t, merged, 1)
	assert.Equal(t, t0, merged[0].Timestamp)
	assert.Equal(t, time.UTC, merged[0].Timestamp.Location())
}

func TestReconcileDuplicateWithinSourceLastWins(t *testing.T) {
	merged := Reconcile([]models.Bar{bar(0, 100, 1), bar(0, 100.5, 1)}, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, 100.5, merged[0].Close)
}
