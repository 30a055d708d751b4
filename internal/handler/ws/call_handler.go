package ws

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"learnhub-backend/internal/room"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/response"
)

// CallAdmission checks that a call exists and has not ended before a
// socket is opened for it.
type CallAdmission interface {
	ValidateAdmission(ctx context.Context, callID int64) error
}

// CallHandler serves call signaling sockets
type CallHandler struct {
	endpoint
	rooms     *room.CallRegistry
	admission CallAdmission
}

// NewCallHandler creates a call socket handler
func NewCallHandler(rooms *room.CallRegistry, admission CallAdmission, upgrader websocket.Upgrader, settings Settings, gate *Gate) *CallHandler {
	return &CallHandler{
		endpoint: endpoint{
			upgrader: upgrader,
			settings: settings.withDefaults(),
			gate:     gate,
			log:      logger.Named("ws.call"),
		},
		rooms:     rooms,
		admission: admission,
	}
}

// ServeWS handles GET /ws/call?callId=&userId=&userName=
func (h *CallHandler) ServeWS(c *gin.Context) {
	if !h.acquire(c) {
		return
	}
	defer h.gate.release()

	rawCallID := c.Query("callId")
	if rawCallID == "" {
		response.FromError(c, apperrors.MissingFieldError("callId"))
		return
	}
	callID, err := strconv.ParseInt(rawCallID, 10, 64)
	if err != nil || callID <= 0 {
		response.FromError(c, apperrors.InvalidInputError("callId must be a positive integer"))
		return
	}

	id, err := identityFromQuery(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if err := h.admission.ValidateAdmission(c.Request.Context(), callID); err != nil {
		h.log.Debug("Call socket refused before upgrade",
			zap.Int64("call_id", callID),
			zap.Int64("user_id", id.ParticipantID),
			zap.Error(err))
		response.FromError(c, err)
		return
	}

	h.serve(c, h.rooms.Resolve(callID), id, zap.Int64("call_id", callID))
}
