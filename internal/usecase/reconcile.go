package usecase

import (
	"math"
	"sort"

	"BarFeed/internal/domain/models"
)

// DisagreementThreshold is the relative close-price gap above which volume decides
// between primary and fallback for the same minute.
const DisagreementThreshold = 0.02

// Reconcile merges a primary and a fallback batch into one series ordered by minute.
// A minute present in one source only is taken from it. A minute present in both
// keeps the primary bar unless closes differ by more than DisagreementThreshold,
// in which case the side with the larger volume wins and ties stay with primary.
// Within one source the last bar seen for a minute wins.
func Reconcile(primary, fallback []models.Bar) []models.Bar {
	primaryByMinute := indexByMinute(primary)
	fallbackByMinute := indexByMinute(fallback)

	minutes := make([]int64, 0, len(primaryByMinute)+len(fallbackByMinute))
	for k := range primaryByMinute {
		minutes = append(minutes, k)
	}
	for k := range fallbackByMinute {
		if _, ok := primaryByMinute[k]; !ok {
			minutes = append(minutes, k)
		}
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i] < minutes[j] })

	merged := make([]models.Bar, 0, len(minutes))
	for _, m := range minutes {
		p, hasPrimary := primaryByMinute[m]
		f, hasFallback := fallbackByMinute[m]

		switch {
		case hasPrimary && !hasFallback:
			merged = append(merged, tagged(p, models.ProvenancePrimary))
		case hasFallback && !hasPrimary:
			merged = append(merged, tagged(f, models.ProvenanceFallback))
		default:
			merged = append(merged, pick(p, f))
		}
	}
	return merged
}

func pick(p, f models.Bar) models.Bar {
	if closeDiffPct(p.Close, f.Close) <= DisagreementThreshold {
		return tagged(p, models.ProvenancePrimary)
	}
	if f.Volume > p.Volume {
		return tagged(f, models.ProvenanceFallback)
	}
	return tagged(p, models.ProvenancePrimary)
}

func closeDiffPct(primaryClose, fallbackClose float64) float64 {
	if primaryClose == 0 {
		return 0
	}
	return math.Abs(primaryClose-fallbackClose) / primaryClose
}

func tagged(b models.Bar, p models.Provenance) models.Bar {
	b.Timestamp = b.Minute()
	b.Provenance = p
	return b
}

func indexByMinute(bars []models.Bar) map[int64]models.Bar {
	out := make(map[int64]models.Bar, len(bars))
	for _, b := range bars {
		out[b.Minute().Unix()] = b
	}
	return out
}
