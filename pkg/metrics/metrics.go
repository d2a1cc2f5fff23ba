package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)

	// Business metrics
	EmergenciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergencies_total",
			Help: "Total number of emergencies by terminal or entry status",
		},
		[]string{"status"},
	)

	ActiveEmergenciesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_emergencies_total",
			Help: "Current number of non-terminal emergencies",
		},
	)

	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatches_total",
			Help: "Total number of dispatch attempts",
		},
		[]string{"outcome"},
	)

	DriversOnlineGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivers_online_total",
			Help: "Current number of online driver sessions",
		},
	)

	StaleSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stale_sessions_total",
			Help: "Total number of driver sessions closed by staleness detection",
		},
		[]string{"was_on_trip"},
	)

	// Scheduler metrics
	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Total number of reconciliation sweep runs",
		},
		[]string{"sweep", "status"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Reconciliation sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sweep"},
	)

	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_published_total",
			Help: "Total number of messages published to RabbitMQ",
		},
		[]string{"exchange", "status"},
	)
)

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordDispatch records a dispatch attempt outcome
func RecordDispatch(outcome string) {
	DispatchesTotal.WithLabelValues(outcome).Inc()
}

// RecordSweep records one sweep run
func RecordSweep(sweep string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SweepRunsTotal.WithLabelValues(sweep, status).Inc()
	SweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

// RecordStaleSession records one session closed by staleness detection
func RecordStaleSession(wasOnTrip bool) {
	StaleSessionsTotal.WithLabelValues(strconv.FormatBool(wasOnTrip)).Inc()
}

// RecordRabbitMQPublish records RabbitMQ publish metrics
func RecordRabbitMQPublish(exchange string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RabbitMQMessagesPublished.WithLabelValues(exchange, status).Inc()
}
