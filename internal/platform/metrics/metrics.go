// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edhub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edhub_websocket_clients",
			Help: "Number of connected realtime clients on this instance",
		},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edhub_notifications_created_total",
			Help: "Notifications persisted, by type",
		},
		[]string{"type"},
	)

	RealtimeEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edhub_realtime_events_published_total",
			Help: "Realtime events handed to a transport",
		},
		[]string{"transport", "result"}, // transport: local, redis
	)

	EmergencyCasesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edhub_emergency_cases_created_total",
			Help: "Emergency cases registered, by emergency level and whether a doctor was assigned",
		},
		[]string{"level", "assigned"},
	)

	AmbulanceDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edhub_ambulance_dispatches_total",
			Help: "Ambulance requests received, by whether an ambulance was free",
		},
		[]string{"assigned"},
	)

	NotificationsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edhub_notifications_purged_total",
			Help: "Notifications removed by the retention sweeper",
		},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edhub_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"}, // scope: user, ip
	)

	DocumentUploadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edhub_document_upload_bytes",
			Help:    "Size of uploaded medical documents",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 9), // 1KB to 64MB
		},
		[]string{"type"},
	)
)

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncNotificationCreated(notificationType string) {
	NotificationsCreated.WithLabelValues(notificationType).Inc()
}

func IncRealtimePublished(transport string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RealtimeEventsPublished.WithLabelValues(transport, result).Inc()
}

func IncEmergencyCase(level string, assigned bool) {
	EmergencyCasesCreated.WithLabelValues(level, strconv.FormatBool(assigned)).Inc()
}

func IncAmbulanceDispatch(assigned bool) {
	AmbulanceDispatches.WithLabelValues(strconv.FormatBool(assigned)).Inc()
}

func ObserveDocumentUpload(docType string, size int64) {
	DocumentUploadBytes.WithLabelValues(docType).Observe(float64(size))
}

func IncRateLimited(scope string) {
	RateLimited.WithLabelValues(scope).Inc()
}

// Handler serves the default Prometheus registry.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
