package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "frames_processed_total",
		Help:      "Total number of camera frames processed",
	})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	})

	FacesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "faces_matched_total",
		Help:      "Total number of faces matched against the gallery",
	})

	// AttendanceOutcomes counts matches by what happened to them:
	// recorded, suppressed (cooling down) or failed (write error).
	AttendanceOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "events_total",
		Help:      "Attendance decisions by outcome",
	}, []string{"outcome"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "stage_duration_seconds",
		Help:      "Duration of frame pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"stage"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "gallery_size",
		Help:      "Number of approved identities in the current gallery snapshot",
	})

	GalleryRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "gallery_refresh_failures_total",
		Help:      "Number of failed gallery refreshes",
	})

	StreamViewers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "stream_viewers",
		Help:      "Number of connected live view clients",
	})

	CaptureRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "capture_restarts_total",
		Help:      "Number of times the capture pipeline was restarted after a failure",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

const (
	OutcomeRecorded   = "recorded"
	OutcomeSuppressed = "suppressed"
	OutcomeFailed     = "failed"
)
