package ws

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"learnhub-backend/internal/room"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/response"
	"learnhub-backend/pkg/sanitize"
)

// sessionRoom is the part of a room actor a socket endpoint drives
type sessionRoom interface {
	Admit(conn room.Conn, id room.Identity) (*room.Session, error)
	Deliver(s *room.Session, raw []byte)
	Disconnect(s *room.Session)
}

// Gate caps the number of concurrently open sockets across all endpoints
type Gate struct {
	max       int
	semaphore chan struct{}
}

// NewGate creates a gate admitting at most max sockets
func NewGate(max int) *Gate {
	if max <= 0 {
		max = 1
	}
	return &Gate{max: max, semaphore: make(chan struct{}, max)}
}

func (g *Gate) tryAcquire() bool {
	select {
	case g.semaphore <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *Gate) release() {
	<-g.semaphore
}

// endpoint holds what both socket handlers share
type endpoint struct {
	upgrader websocket.Upgrader
	settings Settings
	gate     *Gate
	log      *zap.Logger
}

// identityFromQuery reads userId and userName. userId must be an integer.
func identityFromQuery(c *gin.Context) (room.Identity, error) {
	rawID := c.Query("userId")
	if rawID == "" {
		return room.Identity{}, apperrors.MissingFieldError("userId")
	}
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID == 0 {
		return room.Identity{}, apperrors.InvalidInputError("userId must be a non-zero integer")
	}

	userName := sanitize.DisplayName(c.Query("userName"))
	if userName == "" {
		return room.Identity{}, apperrors.MissingFieldError("userName")
	}

	return room.Identity{ParticipantID: userID, DisplayName: userName}, nil
}

// acquire takes a connection slot or answers 503
func (e *endpoint) acquire(c *gin.Context) bool {
	if e.gate.tryAcquire() {
		return true
	}
	e.log.Warn("WebSocket connection rejected: max connections reached",
		zap.Int("max_connections", e.gate.max))
	response.FromError(c, apperrors.RoomFullError())
	return false
}

// serve upgrades the request and runs the session until the peer leaves.
// The calling handler goroutine doubles as the read loop.
func (e *endpoint) serve(c *gin.Context, r sessionRoom, id room.Identity, fields ...zap.Field) {
	log := logger.FromContext(c.Request.Context()).With(fields...).With(zap.Int64("user_id", id.ParticipantID))

	wsConn, err := e.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(wsConn, e.settings, log)
	go conn.writePump()

	session, err := r.Admit(conn, id)
	if err != nil {
		log.Info("WebSocket session refused", zap.Error(err))
		_ = conn.Close(room.ClosePolicyViolation, err.Error())
		return
	}

	conn.readPump(func(frame []byte) {
		r.Deliver(session, frame)
	})

	r.Disconnect(session)
	conn.shutdown()
}
