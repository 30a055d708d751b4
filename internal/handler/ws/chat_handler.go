package ws

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"learnhub-backend/internal/room"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/response"
)

// ChatHandler serves chat room sockets
type ChatHandler struct {
	endpoint
	rooms *room.ChatRegistry
}

// NewChatHandler creates a chat socket handler
func NewChatHandler(rooms *room.ChatRegistry, upgrader websocket.Upgrader, settings Settings, gate *Gate) *ChatHandler {
	return &ChatHandler{
		endpoint: endpoint{
			upgrader: upgrader,
			settings: settings.withDefaults(),
			gate:     gate,
			log:      logger.Named("ws.chat"),
		},
		rooms: rooms,
	}
}

// ServeWS handles GET /ws/chat/:roomId?userId=&userName=
func (h *ChatHandler) ServeWS(c *gin.Context) {
	if !h.acquire(c) {
		return
	}
	defer h.gate.release()

	roomID := c.Param("roomId")
	if roomID == "" {
		response.FromError(c, apperrors.MissingFieldError("roomId"))
		return
	}

	id, err := identityFromQuery(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	h.serve(c, h.rooms.Resolve(roomID), id, zap.String("room_id", roomID))
}
