// Package metrics exports the pipeline's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Inference results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Window drop reasons.
const (
	DropBusy      = "busy"
	DropNotLoaded = "not_loaded"
	DropPaused    = "paused"
)

var (
	SamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fallguard_samples_total",
		Help: "Total number of accelerometer samples received",
	})

	WindowsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_windows_dropped_total",
		Help: "Ready windows that were not classified",
	}, []string{"reason"})

	InferencesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_inferences_total",
		Help: "Total number of classifier runs",
	}, []string{"result"})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fallguard_inference_duration_seconds",
		Help:    "Duration of classifier runs",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	FallProbability = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fallguard_fall_probability",
		Help: "Most recent fall probability",
	})

	AlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fallguard_alerts_total",
		Help: "Total number of accepted fall alerts",
	})

	AlertSinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_alert_sink_errors_total",
		Help: "Alert sink failures",
	}, []string{"sink"})

	TelemetryState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fallguard_telemetry_state",
		Help: "Telemetry connection state (0 disconnected, 1 connecting, 2 connected)",
	})

	TelemetryConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fallguard_telemetry_connect_attempts_total",
		Help: "Telemetry connection attempts",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fallguard_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fallguard_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
