// Package monitoring exposes the Prometheus instrumentation surface.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReadingsIngested counts readings accepted through the ingestion path.
	ReadingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitewatch_readings_ingested_total",
		Help: "Vitals readings accepted and persisted.",
	})

	// ReadingsRejected counts readings refused before persistence.
	ReadingsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitewatch_readings_rejected_total",
		Help: "Vitals readings rejected, by reason.",
	}, []string{"reason"})

	// AlertsCreated counts derived alerts by severity.
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitewatch_alerts_created_total",
		Help: "Threshold alerts derived from readings, by severity.",
	}, []string{"severity"})

	// SocketConnections tracks the live WebSocket connection count.
	SocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sitewatch_socket_connections",
		Help: "Open WebSocket connections.",
	})

	// SocketDrops counts frames evicted from full per-connection queues.
	SocketDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitewatch_socket_dropped_frames_total",
		Help: "Outbound frames dropped because a client queue was full.",
	})

	// HTTPDuration observes request latency per route and status class.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitewatch_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler serves the metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
