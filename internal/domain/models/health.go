package models

// MarketState is the trading-session classification of a point in time.
type MarketState string

const (
	MarketOpen   MarketState = "OPEN"
	MarketClosed MarketState = "CLOSED"
)

// HealthStatus is the user-visible verdict on the series.
type HealthStatus string

const (
	StatusOK       HealthStatus = "ok"
	StatusDegraded HealthStatus = "degraded"
	StatusClosed   HealthStatus = "closed"
)

// PipelineHealth is derived on demand from the latest bar and is never persisted.
// SecondsSinceLastBar is nil when no bar has been stored yet.
type PipelineHealth struct {
	MarketState         MarketState  `json:"market_state"`
	FreshnessOK         bool         `json:"freshness_ok"`
	CompletenessOK      bool         `json:"completeness_ok"`
	Status              HealthStatus `json:"status"`
	SecondsSinceLastBar *int64       `json:"seconds_since_last_bar"`
	BarsInLast60Minutes int          `json:"bars_in_last_60m"`
	FreshnessSeconds    int          `json:"freshness_threshold_sec"`
	MinBarsIn60Minutes  int          `json:"min_bars_60m"`
}
