// Package metrics exposes the Prometheus instruments of the storage server.
package metrics

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/lmsstorage/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lmsstorage"

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	UploadedBytes     prometheus.Counter

	// Consistency metrics
	CompensationsTotal  *prometheus.CounterVec
	IntegrityWarnings   prometheus.Counter
	AccessLogsPurged    prometheus.Counter
	AccessLogWriteFails prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Storage operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Storage operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		UploadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploaded_bytes_total",
				Help:      "Bytes accepted by successful uploads",
			},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_compensations_total",
				Help:      "Orphan blob removals after a failed upload",
			},
			[]string{"result"},
		),
		IntegrityWarnings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "integrity_warnings_total",
				Help:      "Permission rows found pointing at a missing file or blob",
			},
		),
		AccessLogsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_logs_purged_total",
				Help:      "Access log rows removed by the retention job",
			},
		),
		AccessLogWriteFails: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_log_write_failures_total",
				Help:      "Access log entries that could not be recorded",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OperationsTotal,
		m.OperationDuration,
		m.UploadedBytes,
		m.CompensationsTotal,
		m.IntegrityWarnings,
		m.AccessLogsPurged,
		m.AccessLogWriteFails,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation records one storage operation that started at start.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveUpload(size int64) {
	if m == nil {
		return
	}
	m.UploadedBytes.Add(float64(size))
}

func (m *Metrics) ObserveCompensation(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.CompensationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveIntegrityWarning() {
	if m == nil {
		return
	}
	m.IntegrityWarnings.Inc()
}

func (m *Metrics) ObserveAccessLogFailure() {
	if m == nil {
		return
	}
	m.AccessLogWriteFails.Inc()
}

func (m *Metrics) ObservePurged(n int64) {
	if m == nil {
		return
	}
	m.AccessLogsPurged.Add(float64(n))
}

// Outcome is the label for err: "ok", or the snake_cased error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, common.ErrInvalidToken) {
		return "invalid_token"
	}
	return strings.ReplaceAll(common.KindOf(err).Error(), " ", "_")
}
