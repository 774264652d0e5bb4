package models

import (
	"sort"
	"time"
)

// Provenance tags which upstream source (or synthetic fill) produced a bar.
type Provenance string

const (
	ProvenancePrimary  Provenance = "primary"
	ProvenanceFallback Provenance = "fallback"
	ProvenanceFill     Provenance = "fill"
)

// Bar is a one-minute OHLCV record. Timestamps are minute aligned.
type Bar struct {
	Timestamp  time.Time  `json:"ts"`
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
	Volume     float64    `json:"volume"`
	Provenance Provenance `json:"source"`
}

// Minute returns the bar timestamp truncated to the minute in UTC.
func (b Bar) Minute() time.Time {
	return b.Timestamp.UTC().Truncate(time.Minute)
}

// FlatBar builds a synthetic fill bar holding price flat.
func FlatBar(ts time.Time, price float64) Bar {
	return Bar{
		Timestamp:  ts,
		Open:       price,
		High:       price,
		Low:        price,
		Close:      price,
		Volume:     0,
		Provenance: ProvenanceFill,
	}
}

// SortBars sorts bars ascending by timestamp, keeping input order for equal timestamps.
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
}
