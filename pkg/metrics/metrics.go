// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConnectionsActive tracks live gateway connections by transport.
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_connections_active",
			Help: "Number of live gateway connections",
		},
		[]string{"transport"},
	)

	// UsersOnline tracks users with at least one live connection.
	UsersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_users_online",
			Help: "Number of users with at least one live connection",
		},
	)

	// RoomsActive tracks rooms with at least one member.
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_rooms_active",
			Help: "Number of rooms with at least one member",
		},
	)

	// EventsPublished tracks fan-out deliveries by event name.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_events_delivered_total",
			Help: "Events enqueued to connections",
		},
		[]string{"event"},
	)

	// SlowConsumersDropped tracks connections dropped because their queue was full.
	SlowConsumersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_slow_consumers_dropped_total",
			Help: "Connections dropped because their outbound queue was full",
		},
	)

	// AuthFailures tracks rejected connection handshakes.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_auth_failures_total",
			Help: "Rejected connection handshakes",
		},
		[]string{"reason"},
	)

	// ProtocolErrors tracks malformed client events.
	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_protocol_errors_total",
			Help: "Malformed or rejected client events",
		},
		[]string{"event"},
	)

	// TypingEntries tracks live typing indicators.
	TypingEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "typing_entries_active",
			Help: "Number of live typing entries",
		},
	)

	// TypingExpired tracks typing entries removed by the sweeper.
	TypingExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "typing_entries_expired_total",
			Help: "Typing entries removed after their TTL",
		},
	)

	// ConversationsCreated tracks conversations created by the upsert.
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_created_total",
			Help: "Total two-party conversations created",
		},
	)

	// ConversationUpsertRetries tracks transient upsert conflicts.
	ConversationUpsertRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversation_upsert_retries_total",
			Help: "Conversation upserts retried after a transient conflict",
		},
	)

	// DirectMessagesTotal tracks direct messages sent.
	DirectMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "direct_messages_total",
			Help: "Total direct messages sent",
		},
	)

	// NotificationsCreated tracks persisted notifications by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total notifications persisted",
		},
		[]string{"type"},
	)

	// DeliveryMisses tracks live pushes that reached no connection.
	DeliveryMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_delivery_misses_total",
			Help: "Live pushes that reached no connection",
		},
		[]string{"event", "reason"},
	)

	// JournalFailures tracks event journal append failures.
	JournalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_append_failures_total",
			Help: "Failed appends to the event journal",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordDelivery records a fan-out of one event to n connections.
func RecordDelivery(event string, n int) {
	if n > 0 {
		EventsPublished.WithLabelValues(event).Add(float64(n))
	}
}

// RecordDeliveryMiss records a live push that reached nobody.
func RecordDeliveryMiss(event, reason string) {
	DeliveryMisses.WithLabelValues(event, reason).Inc()
}

// IncrementConnections increments the live connection count.
func IncrementConnections(transport string) {
	ConnectionsActive.WithLabelValues(transport).Inc()
}

// DecrementConnections decrements the live connection count.
func DecrementConnections(transport string) {
	ConnectionsActive.WithLabelValues(transport).Dec()
}
