// Package metrics exposes Prometheus collectors for HTTP traffic and the
// reservation engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
)

var (
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	ReservationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_operations_total",
			Help: "Reservation engine operations by outcome",
		},
		[]string{"operation", "outcome"},
	)
	LockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reservation_lock_wait_seconds",
			Help:    "Time spent waiting for the per-flight inventory lock",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
)

// Middleware records request counts and latency.  Paths are labelled by
// their route template so /v1/flights/42 and /v1/flights/43 share a series.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().URL.Path == "/metrics" {
			return next(c)
		}
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Response().Status)
		RequestTotal.WithLabelValues(c.Request().Method, path, status).Inc()
		RequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
		return nil
	}
}

// Recorder feeds engine outcomes into ReservationOps and LockWait.
type Recorder struct{}

func (Recorder) Outcome(op string, code reservation.Code) {
	outcome := string(code)
	if outcome == "" {
		outcome = "ok"
	}
	ReservationOps.WithLabelValues(op, outcome).Inc()
}

func (Recorder) LockWait(op string, d time.Duration) {
	LockWait.WithLabelValues(op).Observe(d.Seconds())
}
