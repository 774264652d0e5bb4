package service

import (
	"time"

	"BarFeed/internal/domain/models"
	"BarFeed/pkg/util"
)

const (
	DefaultFreshnessSeconds          = 180
	DefaultNearCloseFreshnessSeconds = 300
	DefaultMinBarsIn60Minutes        = 45
	DefaultNearCloseWindow           = 10 * time.Minute
)

// Session classifies instants against a daily trading window in the instrument's
// home timezone and judges whether the stored series is fresh and complete.
// All methods are pure.
type Session struct {
	loc             *time.Location
	open            time.Duration
	close           time.Duration
	weekend         map[time.Weekday]bool
	nearCloseWindow time.Duration

	freshnessSeconds          int
	nearCloseFreshnessSeconds int
	minBars                   int
}

type SessionOption func(*Session)

// WithHours sets the session bounds as offsets from local midnight. Both bounds are inclusive.
func WithHours(open, close time.Duration) SessionOption {
	return func(s *Session) {
		s.open = open
		s.close = close
	}
}

// WithWeekend replaces the set of non-trading days.
func WithWeekend(days ...time.Weekday) SessionOption {
	return func(s *Session) {
		s.weekend = make(map[time.Weekday]bool, len(days))
		for _, d := range days {
			s.weekend[d] = true
		}
	}
}

func WithNearCloseWindow(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.nearCloseWindow = d
		}
	}
}

// WithThresholds overrides the freshness and completeness thresholds. Non-positive
// values keep the defaults.
func WithThresholds(freshnessSeconds, nearCloseFreshnessSeconds, minBars int) SessionOption {
	return func(s *Session) {
		if freshnessSeconds > 0 {
			s.freshnessSeconds = freshnessSeconds
		}
		if nearCloseFreshnessSeconds > 0 {
			s.nearCloseFreshnessSeconds = nearCloseFreshnessSeconds
		}
		if minBars > 0 {
			s.minBars = minBars
		}
	}
}

// NewSession builds a 09:15-15:30 Monday-Friday session in loc (UTC when nil).
func NewSession(loc *time.Location, opts ...SessionOption) *Session {
	if loc == nil {
		loc = time.UTC
	}
	s := &Session{
		loc:                       loc,
		open:                      9*time.Hour + 15*time.Minute,
		close:                     15*time.Hour + 30*time.Minute,
		weekend:                   map[time.Weekday]bool{time.Saturday: true, time.Sunday: true},
		nearCloseWindow:           DefaultNearCloseWindow,
		freshnessSeconds:          DefaultFreshnessSeconds,
		nearCloseFreshnessSeconds: DefaultNearCloseFreshnessSeconds,
		minBars:                   DefaultMinBarsIn60Minutes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Location() *time.Location { return s.loc }

// MarketState returns OPEN on a trading day between open and close inclusive.
func (s *Session) MarketState(now time.Time) models.MarketState {
	local := now.In(s.loc)
	if s.weekend[local.Weekday()] {
		return models.MarketClosed
	}
	t := util.SinceMidnight(local)
	if t < s.open || t > s.close {
		return models.MarketClosed
	}
	return models.MarketOpen
}

// IsNearClose reports whether now falls in the last minutes of the session window.
func (s *Session) IsNearClose(now time.Time) bool {
	t := util.SinceMidnight(now.In(s.loc))
	return t >= s.close-s.nearCloseWindow && t <= s.close
}

// ComputeThresholds returns the freshness limit in seconds and the minimum bar count
// expected in the trailing hour. The freshness limit widens near the close while open.
func (s *Session) ComputeThresholds(now time.Time) (freshnessSeconds, minBarsIn60Min int) {
	freshnessSeconds = s.freshnessSeconds
	if s.MarketState(now) == models.MarketOpen && s.IsNearClose(now) {
		freshnessSeconds = s.nearCloseFreshnessSeconds
	}
	return freshnessSeconds, s.minBars
}

// IsWithinTodaySessionEnd reports whether lastBar is from today's local date and at or
// before the session close. A closed market with such a bar is an expected stall.
func (s *Session) IsWithinTodaySessionEnd(lastBar, now time.Time) bool {
	if !util.SameDate(lastBar, now, s.loc) {
		return false
	}
	return util.SinceMidnight(lastBar.In(s.loc)) <= s.close
}

// EvaluateHealth renders the pipeline verdict. lastBar is nil when nothing is stored.
func (s *Session) EvaluateHealth(lastBar *models.Bar, barsInLast60 int, now time.Time) models.PipelineHealth {
	freshness, minBars := s.ComputeThresholds(now)
	h := models.PipelineHealth{
		MarketState:         s.MarketState(now),
		BarsInLast60Minutes: barsInLast60,
		FreshnessSeconds:    freshness,
		MinBarsIn60Minutes:  minBars,
	}
	if lastBar != nil {
		secs := int64(now.Sub(lastBar.Timestamp) / time.Second)
		h.SecondsSinceLastBar = &secs
	}

	if h.MarketState == models.MarketClosed {
		h.CompletenessOK = true
		h.FreshnessOK = lastBar != nil && s.IsWithinTodaySessionEnd(lastBar.Timestamp, now)
		if h.FreshnessOK {
			h.Status = models.StatusClosed
		} else {
			h.Status = models.StatusDegraded
		}
		return h
	}

	h.FreshnessOK = h.SecondsSinceLastBar != nil && *h.SecondsSinceLastBar <= int64(freshness)
	h.CompletenessOK = barsInLast60 >= minBars
	if h.FreshnessOK && h.CompletenessOK {
		h.Status = models.StatusOK
	} else {
		h.Status = models.StatusDegraded
	}
	return h
}
