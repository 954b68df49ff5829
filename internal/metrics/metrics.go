// Package metrics provides Prometheus instrumentation for the portal
// messaging subsystem. It exposes counters for send outcomes and
// notification activity, gauges for unread state, and a histogram for
// send-boundary latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesSent counts successful sends, labeled by message type:
	// "text", "file", or "audio".
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_messages_sent_total",
		Help: "Total number of messages successfully sent",
	}, []string{"type"})

	// SendFailures counts sends rejected locally or by the backend,
	// labeled by stage: "validation" or "transport".
	SendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_send_failures_total",
		Help: "Total number of failed message sends",
	}, []string{"stage"})

	// SendLatency records send-boundary round-trip latency in seconds.
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "portal_send_latency_seconds",
		Help:    "Send boundary round-trip latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// MessagesStored counts messages persisted by the backend, labeled by
	// message type.
	MessagesStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_messages_stored_total",
		Help: "Total number of messages persisted by the message backend",
	}, []string{"type"})

	// NotificationsRaised counts notifications added to the center,
	// labeled by notification type.
	NotificationsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_notifications_total",
		Help: "Total number of notifications raised",
	}, []string{"type"})

	// ToastsShown counts toasts that entered the visible set.
	ToastsShown = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "portal_toasts_shown_total",
		Help: "Total number of toasts shown",
	})

	// UnreadMessages tracks the total unread message count across all
	// conversations for the local user.
	UnreadMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_unread_messages",
		Help: "Current unread message count across all conversations",
	})

	// UnreadNotifications tracks the unread notification-center count.
	UnreadNotifications = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "portal_unread_notifications",
		Help: "Current unread notification count",
	})

	// RecordingsCaptured counts finished voice recordings, labeled by
	// outcome: "sent" or "discarded".
	RecordingsCaptured = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_recordings_total",
		Help: "Total number of voice recordings, by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		MessagesSent,
		SendFailures,
		SendLatency,
		MessagesStored,
		NotificationsRaised,
		ToastsShown,
		UnreadMessages,
		UnreadNotifications,
		RecordingsCaptured,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
