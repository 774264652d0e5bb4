package usecase

import (
	"math"
	"time"

	"BarFeed/internal/domain/models"
)

// DefaultMaxJumpPct is the largest close-to-close move accepted between consecutive bars.
const DefaultMaxJumpPct = 0.15

// CleanStats counts what the quality engine changed in a batch.
type CleanStats struct {
	GapsFilled       int
	OutliersRejected int
}

// QualityEngine filters a candidate batch against the last persisted bar.
type QualityEngine struct {
	maxJumpPct float64
	maxFillGap time.Duration
}

// QualityOption configures QualityEngine.
type QualityOption func(*QualityEngine)

// WithMaxFillGap stops forward-filling gaps longer than d (e.g. overnight session breaks).
// Zero, the default, fills every gap.
func WithMaxFillGap(d time.Duration) QualityOption {
	return func(e *QualityEngine) {
		if d > 0 {
			e.maxFillGap = d
		}
	}
}

// NewQualityEngine creates an engine. A non-positive maxJumpPct selects DefaultMaxJumpPct.
func NewQualityEngine(maxJumpPct float64, opts ...QualityOption) *QualityEngine {
	if maxJumpPct <= 0 {
		maxJumpPct = DefaultMaxJumpPct
	}
	e := &QualityEngine{maxJumpPct: maxJumpPct}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxJumpPct returns the configured jump tolerance.
func (e *QualityEngine) MaxJumpPct() float64 { return e.maxJumpPct }

// Clean sorts the batch, drops bars at or before the running previous bar, drops
// price-jump outliers, clamps negative volume and forward-fills missing minutes.
//
// Outliers are judged against the last accepted bar only, so a single bad tick can
// cause later legitimate bars to be rejected until prices come back within range of
// the stale reference. This is kept as is.
func (e *QualityEngine) Clean(last *models.Bar, batch []models.Bar) ([]models.Bar, CleanStats) {
	var stats CleanStats
	if len(batch) == 0 {
		return []models.Bar{}, stats
	}

	sorted := make([]models.Bar, len(batch))
	copy(sorted, batch)
	for i := range sorted {
		sorted[i].Timestamp = sorted[i].Minute()
	}
	models.SortBars(sorted)

	var prev *models.Bar
	if last != nil {
		p := *last
		p.Timestamp = p.Minute()
		prev = &p
	}

	accepted := make([]models.Bar, 0, len(sorted))
	for _, c := range sorted {
		if prev != nil && !c.Timestamp.After(prev.Timestamp) {
			continue
		}
		if e.isOutlier(c, prev) {
			stats.OutliersRejected++
			continue
		}
		if c.Volume < 0 {
			c.Volume = 0
		}
		accepted = append(accepted, c)
		cur := c
		prev = &cur
	}

	filled, gaps := fillGaps(last, accepted, e.maxFillGap)
	stats.GapsFilled = gaps
	return filled, stats
}

func (e *QualityEngine) isOutlier(c models.Bar, prev *models.Bar) bool {
	if prev == nil || prev.Close == 0 {
		return false
	}
	return math.Abs(c.Close-prev.Close)/prev.Close > e.maxJumpPct
}

// fillGaps interleaves flat bars for every missing minute between last and the first
// accepted bar and between consecutive accepted bars. Gaps wider than maxGap are left
// open when maxGap is set.
func fillGaps(last *models.Bar, accepted []models.Bar, maxGap time.Duration) ([]models.Bar, int) {
	if len(accepted) == 0 {
		return []models.Bar{}, 0
	}

	out := make([]models.Bar, 0, len(accepted))
	gaps := 0

	var prevTs time.Time
	var prevClose float64
	havePrev := false
	if last != nil {
		prevTs = last.Minute()
		prevClose = last.Close
		havePrev = true
	}

	for _, b := range accepted {
		if havePrev && (maxGap == 0 || b.Timestamp.Sub(prevTs) <= maxGap) {
			for ts := prevTs.Add(time.Minute); ts.Before(b.Timestamp); ts = ts.Add(time.Minute) {
				out = append(out, models.FlatBar(ts, prevClose))
				gaps++
			}
		}
		out = append(out, b)
		prevTs = b.Timestamp
		prevClose = b.Close
		havePrev = true
	}
	return out, gaps
}
