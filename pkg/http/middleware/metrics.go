package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	applogger "BarFeed/pkg/logger"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barfeed_http_requests_total",
			Help: "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "barfeed_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "method"},
	)

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "barfeed_http_in_flight_requests",
		Help: "Requests currently being served",
	})

	regOnce sync.Once
)

// Metrics is a net/http middleware that records request metrics labelled by route
// template. Server errors are logged at error level, requests slower than slow at warn.
func Metrics(l *applogger.Logger, slow time.Duration) func(http.Handler) http.Handler {
	regOnce.Do(func() {
		prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInFlight)
	})
	if l == nil {
		l = applogger.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			elapsed := time.Since(start)

			route := routeLabel(r)
			httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
			httpRequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

			switch {
			case rw.status >= http.StatusInternalServerError:
				l.Error("http request failed", requestFields(route, r.Method, rw.status, elapsed)...)
			case slow > 0 && elapsed >= slow:
				l.Warn("http request slow", requestFields(route, r.Method, rw.status, elapsed)...)
			}
		})
	}
}

func requestFields(route, method string, status int, elapsed time.Duration) []applogger.Field {
	return []applogger.Field{
		applogger.String("route", route),
		applogger.String("method", method),
		applogger.Int("status", status),
		applogger.Duration("duration_ms", elapsed),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type routeKey struct{}

// RouteLabel stores the matched Echo route template on the request context. It must
// run before the wrapped Metrics middleware.
func RouteLabel() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p := c.Path(); p != "" {
				r := c.Request()
				c.SetRequest(r.WithContext(context.WithValue(r.Context(), routeKey{}, p)))
			}
			return next(c)
		}
	}
}

// routeLabel falls back to "unmatched" so unknown paths cannot grow the label set.
func routeLabel(r *http.Request) string {
	if s, ok := r.Context().Value(routeKey{}).(string); ok && s != "" {
		return s
	}
	return "unmatched"
}
