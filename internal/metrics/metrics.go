// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus instrumentation for the session
// core. All metrics are registered at package init via promauto.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive tracks the number of live user sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cloudcore_sessions_active",
		Help: "Number of live user sessions",
	})

	// SessionEvents counts session lifecycle transitions.
	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcore_session_events_total",
		Help: "Session lifecycle events by kind",
	}, []string{"event"})

	// TpaLinksActive tracks connected TPA links across all sessions.
	TpaLinksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cloudcore_tpa_links_active",
		Help: "Number of connected TPA links",
	})

	// DisplayRequests counts display requests by outcome.
	DisplayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcore_display_requests_total",
		Help: "Display requests by outcome (displayed, throttled, queued_boot, rejected)",
	}, []string{"outcome"})

	// BootQueueDrops counts boot-queue overflow drops (drop-oldest).
	BootQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudcore_boot_queue_drops_total",
		Help: "Display requests dropped from full boot queues",
	})

	// AudioFrames counts inbound audio frames by disposition.
	AudioFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcore_audio_frames_total",
		Help: "Inbound audio frames by disposition (live, dropped)",
	}, []string{"disposition"})

	// AudioSeqGaps counts observed audio sequence gaps.
	AudioSeqGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudcore_audio_seq_gaps_total",
		Help: "Observed gaps in the inbound audio sequence",
	})

	// BackpressureDrops counts outbound frames dropped under backpressure.
	BackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcore_backpressure_drops_total",
		Help: "Outbound frames dropped under backpressure by endpoint",
	}, []string{"endpoint"})

	// PhotoRequests counts photo requests by terminal state.
	PhotoRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcore_photo_requests_total",
		Help: "Photo requests by terminal state (completed, expired, rejected)",
	}, []string{"state"})

	// UploadDuration observes end-to-end media upload handling time.
	UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudcore_upload_duration_seconds",
		Help:    "Media upload handling duration",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// SubscriptionChanges counts subscription set replacements.
	SubscriptionChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cloudcore_subscription_changes_total",
		Help: "Subscription set replacements processed",
	})

	// ProtocolViolations counts rejected inbound envelopes.
	ProtocolViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudcore_protocol_violations_total",
		Help: "Rejected inbound envelopes by endpoint",
	}, []string{"endpoint"})
)

// IncSessionEvent records one session lifecycle event.
func IncSessionEvent(event string) {
	SessionEvents.WithLabelValues(event).Inc()
}

// IncDisplayOutcome records one display request outcome.
func IncDisplayOutcome(outcome string) {
	DisplayRequests.WithLabelValues(outcome).Inc()
}

// ObserveUpload records one upload handling duration.
func ObserveUpload(d time.Duration) {
	UploadDuration.Observe(d.Seconds())
}
