package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (devices offline) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Ingestion includes notification time.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Ingestion outcomes by result (ok, unauthorized, invalid_json, bad_values, store_error).
	ReadingsIngestedTotal *prometheus.CounterVec

	// Alerts created by the soil threshold.
	AlertsCreatedTotal prometheus.Counter

	// Notification attempts per channel and result. Watch for: failure ratio per channel.
	NotificationsTotal *prometheus.CounterVec

	// Notification latency per channel. A hanging channel blocks /sensor.
	NotificationDuration *prometheus.HistogramVec

	// Entries currently held in the rolling cache.
	CacheEntries prometheus.Gauge

	// Cache reads answered from the store because the window was empty.
	HistoryFallbackTotal prometheus.Counter

	// Rate limit denials on ingestion.
	RateLimitDeniedTotal prometheus.Counter

	// Admin login attempts by result.
	AdminLoginsTotal *prometheus.CounterVec

	// Per-channel breaker state. Watch for: a channel stuck at 1.
	NotifierCircuitState *prometheus.GaugeVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ReadingsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readingsIngestedTotal",
			Help: "Sensor submissions by result",
		},
		[]string{"result"},
	)
	AlertsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "alertsCreatedTotal",
			Help: "Total number of low soil moisture alerts recorded",
		},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notificationsTotal",
			Help: "Notification attempts by channel and result",
		},
		[]string{"channel", "result"},
	)
	NotificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notificationDurationSeconds",
			Help:    "Notification latency in seconds per channel",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)
	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cacheEntries",
			Help: "Snapshots currently held in the rolling history cache",
		},
	)
	HistoryFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "historyFallbackTotal",
			Help: "History requests served from the store because the cache was empty",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	NotifierCircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifierCircuitState",
			Help: "Notification channel circuit state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"channel"},
	)
	AdminLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adminLoginsTotal",
			Help: "Admin login attempts by result",
		},
		[]string{"result"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ReadingsIngestedTotal, AlertsCreatedTotal,
		NotificationsTotal, NotificationDuration,
		CacheEntries, HistoryFallbackTotal,
		RateLimitDeniedTotal, AdminLoginsTotal,
		NotifierCircuitState,
	)
}

// RecordNotification records one notification attempt.
func RecordNotification(channel string, err error, seconds float64) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	NotificationsTotal.WithLabelValues(channel, result).Inc()
	NotificationDuration.WithLabelValues(channel).Observe(seconds)
}

// SetNotifierCircuitState records the breaker state for channel.
func SetNotifierCircuitState(channel string, state int) {
	NotifierCircuitState.WithLabelValues(channel).Set(float64(state))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
