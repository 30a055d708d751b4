package chat

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"learnhub-backend/internal/room"
	"learnhub-backend/pkg/database"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/response"
)

// PresenceReader reads the cross-process presence mirror
type PresenceReader interface {
	Members(ctx context.Context, kind, roomID string) ([]int64, error)
}

// Handler serves chat room presence snapshots
type Handler struct {
	rooms    *room.ChatRegistry
	presence PresenceReader
}

// NewHandler creates a new chat handler. presence may be nil when Redis is
// disabled.
func NewHandler(rooms *room.ChatRegistry, presence PresenceReader) *Handler {
	return &Handler{
		rooms:    rooms,
		presence: presence,
	}
}

// RegisterRoutes mounts the chat routes on group (usually /v1/chat)
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/rooms/:roomId/participants", h.GetParticipants)
	group.GET("/rooms/:roomId/members", h.GetMembers)
}

// GetParticipants lists the sessions connected to this process's room actor
// GET /v1/chat/rooms/:roomId/participants
func (h *Handler) GetParticipants(c *gin.Context) {
	roomID := c.Param("roomId")

	participants := []room.Identity{}
	if r, ok := h.rooms.Lookup(roomID); ok {
		if live := r.Participants(); live != nil {
			participants = live
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"roomId":       roomID,
		"participants": participants,
	})
}

// GetMembers lists the users with an open session according to the presence
// mirror
// GET /v1/chat/rooms/:roomId/members
func (h *Handler) GetMembers(c *gin.Context) {
	roomID := c.Param("roomId")

	if h.presence == nil {
		response.FromError(c, apperrors.ServiceUnavailableError("Presence mirror disabled"))
		return
	}

	members, err := h.presence.Members(c.Request.Context(), string(room.KindChat), roomID)
	if err != nil {
		if errors.Is(err, database.ErrRedisDegraded) {
			response.FromError(c, apperrors.ServiceUnavailableError("Presence mirror unavailable"))
			return
		}
		logger.FromContext(c.Request.Context()).Error("Failed to read presence mirror",
			zap.String("room_id", roomID), zap.Error(err))
		response.InternalError(c, "Failed to read presence")
		return
	}

	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	response.Success(c, http.StatusOK, gin.H{
		"roomId":  roomID,
		"members": members,
	})
}
