package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldlens_http_requests_total",
			Help: "HTTP requests served, by method, endpoint and status",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldlens_http_request_duration_seconds",
			Help:    "Latency of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Document processing metrics
	processRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldlens_process_requests_total",
			Help: "Document processing runs, by trigger and outcome",
		},
		[]string{"trigger", "status"}, // trigger: http, websocket
	)

	processDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldlens_process_duration_seconds",
			Help:    "End-to-end document processing time in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"trigger"},
	)

	fieldsDetected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldlens_fields_detected",
			Help:    "Field regions detected per document",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 250},
		},
		[]string{"trigger"},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldlens_websocket_active_connections",
			Help: "Currently open WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldlens_websocket_messages_total",
			Help: "WebSocket messages exchanged, by direction",
		},
		[]string{"direction"}, // "sent" or "received"
	)
)
