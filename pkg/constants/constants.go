// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for store and media-service calls
	DefaultTimeout = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// WebSocket constants
const (
	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 54 * time.Second

	// WebSocketPongWait is how long a connection may stay silent before it is dropped
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteTimeout bounds a single frame write
	WebSocketWriteTimeout = 10 * time.Second

	// WebSocketSendBuffer is the per-connection outbound queue length
	WebSocketSendBuffer = 256

	// WebSocketMaxMessageSize caps inbound frames (signaling SDP fits comfortably)
	WebSocketMaxMessageSize = 64 * 1024

	// WebSocketMaxConnections is the default process-wide connection cap
	WebSocketMaxConnections = 1000
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute

	// RedisHealthCheckInterval is how often degraded mode is re-evaluated
	RedisHealthCheckInterval = 10 * time.Second
)

// Media service constants
const (
	// MediaTokenTTL is the lifetime of a media access token
	MediaTokenTTL = 2 * time.Hour

	// MediaRoomEmptyTimeout lets the media service close rooms nobody joined
	MediaRoomEmptyTimeout = 5 * time.Minute

	// MediaRoomNamePrefix prefixes generated external room names
	MediaRoomNamePrefix = "call-"
)

// Webhook constants
const (
	// WebhookLedgerTTL is how long processed webhook ids are remembered
	WebhookLedgerTTL = 24 * time.Hour

	// RoomNameCacheSize bounds the external room name -> call id cache
	RoomNameCacheSize = 4096
)

// Presence constants
const (
	// PresenceTTL expires mirrored presence if the process dies without cleanup
	PresenceTTL = 5 * time.Minute

	// PresenceWorkers is the number of single-worker pools writing the presence mirror
	PresenceWorkers = 4
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)
