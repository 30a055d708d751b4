package call

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/livekit/protocol/livekit"

	"learnhub-backend/internal/domain"
	callsvc "learnhub-backend/internal/service/call"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/pagination"
	"learnhub-backend/pkg/response"
)

// Service is the call lifecycle used by the handler
type Service interface {
	Initiate(ctx context.Context, in *callsvc.InitiateInput) (*callsvc.Session, error)
	Join(ctx context.Context, callID, userID int64, userName string) (*callsvc.Session, error)
	Leave(ctx context.Context, callID, userID int64) error
	Reject(ctx context.Context, callID, userID int64) (*domain.Call, error)
	End(ctx context.Context, callID int64) (*domain.Call, error)
	Get(ctx context.Context, callID int64) (*domain.Call, error)
	History(ctx context.Context, userID int64, limit, offset int) ([]*domain.Call, error)
	Live(callID int64) (*callsvc.LiveState, error)
	ReceiveWebhook(r *http.Request) (*livekit.WebhookEvent, error)
	ApplyWebhook(ctx context.Context, event *livekit.WebhookEvent) error
}

// Handler handles call HTTP requests
type Handler struct {
	callService Service
}

// NewHandler creates a new call handler
func NewHandler(callService Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// RegisterRoutes mounts the call routes on group (usually /v1/calls)
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/initiate", h.InitiateCall)
	group.POST("/webhook", h.Webhook)
	group.GET("/history", h.GetCallHistory)
	group.GET("/:id", h.GetCall)
	group.GET("/:id/live", h.GetLiveCall)
	group.POST("/:id/join", h.JoinCall)
	group.POST("/:id/leave", h.LeaveCall)
	group.POST("/:id/reject", h.RejectCall)
	group.POST("/:id/end", h.EndCall)
}

// ParticipantRequest identifies the user acting on a call
type ParticipantRequest struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// InitiateCall starts a new call
// POST /v1/calls/initiate
func (h *Handler) InitiateCall(c *gin.Context) {
	var req callsvc.InitiateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request body")
		return
	}

	session, err := h.callService.Initiate(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// JoinCall joins a call that has not ended
// POST /v1/calls/:id/join
func (h *Handler) JoinCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	// The call is resolved before the user is checked, so an unknown call
	// answers 404 whatever the body holds.
	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ValidationError(c, "Invalid request body")
		return
	}

	session, err := h.callService.Join(c.Request.Context(), callID, req.UserID, req.UserName)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// LeaveCall marks the user as having left
// POST /v1/calls/:id/leave
func (h *Handler) LeaveCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	var req ParticipantRequest
	if !bindParticipant(c, &req) {
		return
	}

	if err := h.callService.Leave(c.Request.Context(), callID, req.UserID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Left call",
		"callId":  callID,
	})
}

// RejectCall declines a call
// POST /v1/calls/:id/reject
func (h *Handler) RejectCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	var req ParticipantRequest
	if !bindParticipant(c, &req) {
		return
	}

	call, err := h.callService.Reject(c.Request.Context(), callID, req.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, call)
}

// EndCall terminates a call
// POST /v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	call, err := h.callService.End(c.Request.Context(), callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, call)
}

// GetCall retrieves a call with its participants
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	call, err := h.callService.Get(c.Request.Context(), callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, call)
}

// GetLiveCall returns the in-memory state of a call room
// GET /v1/calls/:id/live
func (h *Handler) GetLiveCall(c *gin.Context) {
	callID, ok := callIDParam(c)
	if !ok {
		return
	}

	state, err := h.callService.Live(callID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetCallHistory retrieves a user's call history
// GET /v1/calls/history?userId=&limit=&offset=
func (h *Handler) GetCallHistory(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
	if err != nil || userID == 0 {
		response.FromError(c, apperrors.MissingFieldError("userId"))
		return
	}

	page, err := pagination.Parse(c.Query("limit"), c.Query("offset"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	calls, err := h.callService.History(c.Request.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"calls":  calls,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// Webhook ingests media-service lifecycle events. Events this service does
// not track are acknowledged and ignored.
// POST /v1/calls/webhook
func (h *Handler) Webhook(c *gin.Context) {
	event, err := h.callService.ReceiveWebhook(c.Request)
	if err != nil {
		response.FromError(c, err)
		return
	}

	if err := h.callService.ApplyWebhook(c.Request.Context(), event); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

func callIDParam(c *gin.Context) (int64, bool) {
	callID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || callID <= 0 {
		response.ValidationError(c, "Invalid call ID")
		return 0, false
	}
	return callID, true
}

func bindParticipant(c *gin.Context, req *ParticipantRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ValidationError(c, "Invalid request body")
		return false
	}
	if req.UserID == 0 {
		response.FromError(c, apperrors.MissingFieldError("userId"))
		return false
	}
	return true
}
