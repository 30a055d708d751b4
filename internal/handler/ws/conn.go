package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"learnhub-backend/internal/room"
	"learnhub-backend/pkg/config"
	"learnhub-backend/pkg/constants"
)

var (
	// ErrConnClosed is returned by Send after the connection started closing
	ErrConnClosed = errors.New("websocket connection closed")
	// ErrSendBufferFull is returned by Send when the peer is not keeping up
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

// Settings holds per-connection timing and buffering
type Settings struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
}

// SettingsFromConfig converts the websocket config section
func SettingsFromConfig(cfg config.WebSocketConfig) Settings {
	s := Settings{
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteTimeout:   cfg.WriteTimeout,
		SendBuffer:     cfg.SendBuffer,
		MaxMessageSize: constants.WebSocketMaxMessageSize,
	}
	return s.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.PingInterval <= 0 {
		s.PingInterval = constants.WebSocketPingInterval
	}
	if s.PongWait <= 0 {
		s.PongWait = constants.WebSocketPongWait
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = constants.WebSocketWriteTimeout
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = constants.WebSocketSendBuffer
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = constants.WebSocketMaxMessageSize
	}
	return s
}

// NewUpgrader builds an upgrader that accepts the configured origins.
// Requests without an Origin header come from non-browser clients and are
// accepted.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowed["*"] {
				return true
			}
			return allowed[origin]
		},
	}
}

// Conn adapts a gorilla websocket connection to room.Conn. Outbound frames
// go through a bounded buffer drained by writePump, so Send and Close never
// block the room.
type Conn struct {
	conn     *websocket.Conn
	settings Settings
	log      *zap.Logger

	send   chan []byte
	closed core.Fuse

	closeOnce  sync.Once
	closeFrame []byte
}

var _ room.Conn = (*Conn)(nil)

func newConn(conn *websocket.Conn, settings Settings, log *zap.Logger) *Conn {
	return &Conn{
		conn:     conn,
		settings: settings,
		log:      log,
		send:     make(chan []byte, settings.SendBuffer),
	}
}

// Send queues data for the peer
func (c *Conn) Send(data []byte) error {
	if c.closed.IsBroken() {
		return ErrConnClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close flushes queued frames, then sends a close frame with code and
// reason and tears the connection down.
func (c *Conn) Close(code int, reason string) error {
	err := ErrConnClosed
	c.closeOnce.Do(func() {
		c.closeFrame = websocket.FormatCloseMessage(code, reason)
		err = nil
	})
	c.closed.Break()
	return err
}

// shutdown stops the write side without a close frame
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {})
	c.closed.Break()
}

// readPump feeds inbound frames to onFrame until the peer goes away
func (c *Conn) readPump(onFrame func([]byte)) {
	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("WebSocket read failed", zap.Error(err))
			}
			return
		}
		onFrame(message)
	}
}

// writePump writes queued frames and keepalive pings
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				c.log.Debug("WebSocket write failed", zap.Error(err))
				c.shutdown()
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.closed.Watch():
			c.flush()
			if c.closeFrame != nil {
				_ = c.write(websocket.CloseMessage, c.closeFrame)
			}
			return
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
