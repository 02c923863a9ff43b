// Package metrics exposes the simulator's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StationsConfigured = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "stations_configured",
		Help:      "Number of stations loaded from templates.",
	})

	StationsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "stations_connected",
		Help:      "Number of stations currently holding an open WebSocket connection.",
	})

	StationsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "stations_registered",
		Help:      "Number of stations whose registration state is Accepted.",
	})

	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "messages_sent_total",
		Help:      "Outbound OCPP messages sent, by action.",
	}, []string{"action"})

	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "messages_received_total",
		Help:      "Inbound OCPP messages received, by action.",
	}, []string{"action"})

	CallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "call_errors_total",
		Help:      "CallError frames sent or received, by errorCode.",
	}, []string{"direction", "code"})

	RequestLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "request_latency_seconds",
		Help:      "Time from sending a Call to receiving its CallResult/CallError.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	ReconnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "reconnect_attempts_total",
		Help:      "WebSocket reconnect attempts, by outcome.",
	}, []string{"outcome"})

	BootNotificationRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "boot_notification_retries_total",
		Help:      "BootNotification retries across all stations.",
	})

	TransactionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "transactions_active",
		Help:      "Transactions currently open across all stations.",
	})

	TransactionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "transactions_started_total",
		Help:      "Transactions started across all stations.",
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "events_published_total",
		Help:      "Station lifecycle events published, by event type.",
	}, []string{"event_type"})

	RegistryLeaseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evfleet",
		Subsystem: "simulator",
		Name:      "registry_lease_failures_total",
		Help:      "Failed attempts to acquire a station-id ownership lease.",
	})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
