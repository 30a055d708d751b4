package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Room Metrics
	websocketConnections *prometheus.GaugeVec
	roomActors           *prometheus.GaugeVec
	messagesRelayed      *prometheus.CounterVec
	messagesDropped      *prometheus.CounterVec
	sessionsReaped       *prometheus.CounterVec

	// Call Metrics
	callRoomTransitions *prometheus.CounterVec
	callLifecycleEvents *prometheus.CounterVec
	callDuration        prometheus.Histogram

	// Webhook Metrics
	webhookEventsTotal *prometheus.CounterVec

	// Media Service Metrics
	mediaRequestsTotal  *prometheus.CounterVec
	mediaCircuitBreaker prometheus.Gauge

	// Redis Metrics
	redisDegraded prometheus.Gauge

	// Rate Limiting Metrics
	rateLimitBlockedTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics on a dedicated registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,

		// HTTP Request Metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		// Room Metrics
		websocketConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of admitted WebSocket sessions",
				ConstLabels: labels,
			},
			[]string{"room_kind"},
		),
		roomActors: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "room_actors",
				Help:        "Number of resident room actors",
				ConstLabels: labels,
			},
			[]string{"room_kind"},
		),
		messagesRelayed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "room_messages_relayed_total",
				Help:        "Total number of frames relayed to peers",
				ConstLabels: labels,
			},
			[]string{"room_kind", "type"},
		),
		messagesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "room_messages_dropped_total",
				Help:        "Total number of inbound frames dropped",
				ConstLabels: labels,
			},
			[]string{"room_kind", "reason"},
		),
		sessionsReaped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "room_sessions_reaped_total",
				Help:        "Total number of sessions removed after a failed send",
				ConstLabels: labels,
			},
			[]string{"room_kind"},
		),

		// Call Metrics
		callRoomTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_room_status_transitions_total",
				Help:        "Total number of in-memory call room status transitions",
				ConstLabels: labels,
			},
			[]string{"to"},
		),
		callLifecycleEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_lifecycle_events_total",
				Help:        "Total number of applied call lifecycle events",
				ConstLabels: labels,
			},
			[]string{"source", "event"},
		),
		callDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "call_duration_seconds",
				Help:        "Duration of ended calls in seconds",
				ConstLabels: labels,
				Buckets:     []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
			},
		),

		// Webhook Metrics
		webhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "webhook_events_total",
				Help:        "Total number of received media-service webhooks",
				ConstLabels: labels,
			},
			[]string{"event", "outcome"},
		),

		// Media Service Metrics
		mediaRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "media_requests_total",
				Help:        "Total number of media service requests",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		mediaCircuitBreaker: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "media_circuit_breaker_state",
				Help:        "State of the media service circuit breaker (0=closed, 1=half_open, 2=open)",
				ConstLabels: labels,
			},
		),

		// Redis Metrics
		redisDegraded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "redis_degraded_mode",
				Help:        "Whether Redis is in degraded mode (1) or healthy (0)",
				ConstLabels: labels,
			},
		),

		// Rate Limiting Metrics
		rateLimitBlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rate_limit_blocked_total",
				Help:        "Total number of requests blocked by rate limiting",
				ConstLabels: labels,
			},
			[]string{"endpoint"},
		),
	}

	return m
}

// GetRegistry returns the registry the metrics are registered on
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// Room Metrics Methods

// AddWebSocketConnections adjusts the session gauge of a room kind
func (m *Metrics) AddWebSocketConnections(kind string, delta float64) {
	m.websocketConnections.WithLabelValues(kind).Add(delta)
}

// IncrementRoomActors counts a newly created room actor
func (m *Metrics) IncrementRoomActors(kind string) {
	m.roomActors.WithLabelValues(kind).Inc()
}

// RecordMessageRelayed records a frame fanned out to peers
func (m *Metrics) RecordMessageRelayed(kind, msgType string) {
	m.messagesRelayed.WithLabelValues(kind, msgType).Inc()
}

// RecordMessageDropped records an inbound frame that was not relayed
func (m *Metrics) RecordMessageDropped(kind, reason string) {
	m.messagesDropped.WithLabelValues(kind, reason).Inc()
}

// RecordSessionReaped records a session removed after a failed send
func (m *Metrics) RecordSessionReaped(kind string) {
	m.sessionsReaped.WithLabelValues(kind).Inc()
}

// Call Metrics Methods

// RecordCallRoomTransition records an in-memory call status transition
func (m *Metrics) RecordCallRoomTransition(to string) {
	m.callRoomTransitions.WithLabelValues(to).Inc()
}

// RecordCallLifecycleEvent records a lifecycle write from REST or webhook
func (m *Metrics) RecordCallLifecycleEvent(source, event string) {
	m.callLifecycleEvents.WithLabelValues(source, event).Inc()
}

// RecordCallDuration records the duration of an ended call
func (m *Metrics) RecordCallDuration(duration time.Duration) {
	m.callDuration.Observe(duration.Seconds())
}

// Webhook Metrics Methods

// RecordWebhookEvent records a webhook and how it was handled
func (m *Metrics) RecordWebhookEvent(event, outcome string) {
	m.webhookEventsTotal.WithLabelValues(event, outcome).Inc()
}

// Media Service Metrics Methods

// RecordMediaRequest records a media service request
func (m *Metrics) RecordMediaRequest(operation, status string) {
	m.mediaRequestsTotal.WithLabelValues(operation, status).Inc()
}

// SetMediaCircuitBreakerState sets the circuit breaker gauge
func (m *Metrics) SetMediaCircuitBreakerState(state float64) {
	m.mediaCircuitBreaker.Set(state)
}

// Redis Metrics Methods

// SetRedisDegraded sets the Redis degraded mode gauge
func (m *Metrics) SetRedisDegraded(degraded bool) {
	if degraded {
		m.redisDegraded.Set(1)
		return
	}
	m.redisDegraded.Set(0)
}

// Rate Limiting Metrics Methods

// RecordRateLimitBlocked records a request blocked by rate limiting
func (m *Metrics) RecordRateLimitBlocked(endpoint string) {
	m.rateLimitBlockedTotal.WithLabelValues(endpoint).Inc()
}
