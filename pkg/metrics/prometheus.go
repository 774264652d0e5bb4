package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"BarFeed/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	providerFailures *prometheus.CounterVec
	barsSaved        prometheus.Counter
	gapsFilled       prometheus.Counter
	outliersRejected prometheus.Counter
	lastBarAge       prometheus.Gauge
	pipelineStatus   *prometheus.GaugeVec
	errorsTotal      *prometheus.CounterVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barfeed_ingestion_runs_total",
				Help: "Ingestion runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "barfeed_ingestion_run_duration_seconds",
				Help:    "Duration of ingestion runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		providerFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barfeed_provider_failures_total",
				Help: "Failed provider fetches",
			},
			[]string{"provider"},
		),
		barsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "barfeed_bars_saved_total",
			Help: "Bars inserted into the store",
		}),
		gapsFilled: f.NewCounter(prometheus.CounterOpts{
			Name: "barfeed_gaps_filled_total",
			Help: "Synthetic fill bars produced",
		}),
		outliersRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "barfeed_outliers_rejected_total",
			Help: "Bars dropped by the price-jump filter",
		}),
		lastBarAge: f.NewGauge(prometheus.GaugeOpts{
			Name: "barfeed_last_bar_age_seconds",
			Help: "Age of the most recent stored bar",
		}),
		pipelineStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "barfeed_pipeline_status",
				Help: "1 for the current pipeline status, 0 otherwise",
			},
			[]string{"status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barfeed_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordRun records one finished ingestion run.
func (r *Recorder) RecordRun(outcome string, seconds float64) {
	r.runsTotal.WithLabelValues(outcome).Inc()
	r.runDuration.Observe(seconds)
}

func (r *Recorder) RecordProviderFailure(provider string) {
	r.providerFailures.WithLabelValues(provider).Inc()
}

func (r *Recorder) RecordBarsSaved(n int) {
	r.barsSaved.Add(float64(n))
}

func (r *Recorder) RecordGapsFilled(n int) {
	r.gapsFilled.Add(float64(n))
}

func (r *Recorder) RecordOutliersRejected(n int) {
	r.outliersRejected.Add(float64(n))
}

func (r *Recorder) RecordLastBarAge(seconds float64) {
	r.lastBarAge.Set(seconds)
}

// RecordHealth sets the gauge of the given status to 1 and the others to 0.
func (r *Recorder) RecordHealth(status models.HealthStatus) {
	for _, s := range []models.HealthStatus{models.StatusOK, models.StatusDegraded, models.StatusClosed} {
		v := 0.0
		if s == status {
			v = 1
		}
		r.pipelineStatus.WithLabelValues(string(s)).Set(v)
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordRun(string, float64) {}
func (Nop) RecordProviderFailure(string) {}
func (Nop) RecordBarsSaved(int) {}
func (Nop) RecordGapsFilled(int) {}
func (Nop) RecordOutliersRejected(int) {}
func (Nop) RecordLastBarAge(float64) {}
func (Nop) RecordHealth(models.HealthStatus) {}
func (Nop) RecordError(string) {}
