// Package call reconciles the persisted call record with its three writers:
// REST requests, media-service webhooks and the in-memory call rooms.
package call

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/livekit/protocol/auth"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"learnhub-backend/internal/domain"
	"learnhub-backend/internal/media"
	"learnhub-backend/internal/room"
	"learnhub-backend/pkg/constants"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/pagination"
	"learnhub-backend/pkg/sanitize"
)

// CallRepository is the persisted call/participant store
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID int64) (*domain.Call, error)
	GetByRoomName(ctx context.Context, roomName string) (*domain.Call, error)
	MarkOngoing(ctx context.Context, callID int64, startedAt time.Time) (bool, error)
	Finalize(ctx context.Context, callID int64, endedAt time.Time, duration int) (bool, error)
	MarkRejected(ctx context.Context, callID int64, endedAt time.Time) (bool, error)
	UpsertParticipant(ctx context.Context, callID, userID int64, joinedAt time.Time) error
	MarkParticipantLeft(ctx context.Context, callID, userID int64, leftAt time.Time) error
	MarkParticipantRejected(ctx context.Context, callID, userID int64, at time.Time) error
	MarkAllParticipantsLeft(ctx context.Context, callID int64, leftAt time.Time) (int64, error)
	GetParticipants(ctx context.Context, callID int64) ([]*domain.CallParticipant, error)
	GetUserCalls(ctx context.Context, userID int64, limit, offset int) ([]*domain.Call, error)
}

// WebhookLedger records processed webhook ids
type WebhookLedger interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// CallRooms looks up resident call rooms without creating them
type CallRooms interface {
	Lookup(callID int64) (*room.CallRoom, bool)
}

// Recorder receives lifecycle metrics
type Recorder interface {
	RecordCallLifecycleEvent(source, event string)
	RecordCallDuration(duration time.Duration)
	RecordWebhookEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCallLifecycleEvent(string, string) {}
func (nopRecorder) RecordCallDuration(time.Duration) {}
func (nopRecorder) RecordWebhookEvent(string, string) {}

// Options holds the optional collaborators of a Service
type Options struct {
	// Ledger deduplicates webhook deliveries; nil processes every delivery
	Ledger WebhookLedger
	// WebhookKeys verifies webhook signatures
	WebhookKeys auth.KeyProvider
	// Metrics records lifecycle metrics; nil disables them
	Metrics Recorder
	// RoomNameCacheSize bounds the room name to call id cache
	RoomNameCacheSize int
}

const (
	sourceREST    = "rest"
	sourceWebhook = "webhook"
)

// Service handles call lifecycle business logic
type Service struct {
	repo      CallRepository
	media     media.Service
	rooms     CallRooms
	ledger    WebhookLedger
	keys      auth.KeyProvider
	metrics   Recorder
	roomNames *lru.Cache[string, int64]
	admission singleflight.Group
	now       func() time.Time
	log       *zap.Logger
}

// NewService creates a new call service
func NewService(repo CallRepository, mediaService media.Service, rooms CallRooms, opts Options) (*Service, error) {
	size := opts.RoomNameCacheSize
	if size <= 0 {
		size = constants.RoomNameCacheSize
	}
	roomNames, err := lru.New[string, int64](size)
	if err != nil {
		return nil, err
	}

	recorder := opts.Metrics
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Service{
		repo:      repo,
		media:     mediaService,
		rooms:     rooms,
		ledger:    opts.Ledger,
		keys:      opts.WebhookKeys,
		metrics:   recorder,
		roomNames: roomNames,
		now:       time.Now,
		log:       logger.Named("call"),
	}, nil
}

// InitiateInput contains call initiation data
type InitiateInput struct {
	Type          domain.MediaType `json:"type"`
	CallType      domain.CallType  `json:"callType"`
	InitiatorID   int64            `json:"initiatorId"`
	InitiatorName string           `json:"initiatorName"`
	RecipientID   *int64           `json:"recipientId"`
	GroupChatID   *int64           `json:"groupChatId"`
}

// Validate checks the initiation request
func (in *InitiateInput) Validate() error {
	switch {
	case in.Type == "":
		return apperrors.MissingFieldError("type")
	case !in.Type.Valid():
		return apperrors.InvalidInputError("type must be audio or video")
	case in.CallType == "":
		return apperrors.MissingFieldError("callType")
	case !in.CallType.Valid():
		return apperrors.InvalidInputError("callType must be direct or group")
	case in.InitiatorID == 0:
		return apperrors.MissingFieldError("initiatorId")
	}

	switch in.CallType {
	case domain.CallTypeDirect:
		if in.RecipientID == nil || *in.RecipientID == 0 {
			return apperrors.ValidationError("recipientId required for direct calls")
		}
		if in.GroupChatID != nil {
			return apperrors.ValidationError("groupChatId not allowed for direct calls")
		}
	case domain.CallTypeGroup:
		if in.GroupChatID == nil || *in.GroupChatID == 0 {
			return apperrors.ValidationError("groupChatId required for group calls")
		}
		if in.RecipientID != nil {
			return apperrors.ValidationError("recipientId not allowed for group calls")
		}
	}
	return nil
}

// Session is a call record plus what a client needs to join its media
type Session struct {
	Call  *domain.Call `json:"call"`
	Token string       `json:"token"`
	URL   string       `json:"url"`
}

// Initiate creates the external room and the call record
func (s *Service) Initiate(ctx context.Context, in *InitiateInput) (*Session, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	roomName := constants.MediaRoomNamePrefix + strings.ToLower(ulid.Make().String())

	token, err := s.media.IssueToken(roomName, in.InitiatorID, sanitize.DisplayName(in.InitiatorName))
	if err != nil {
		return nil, apperrors.MediaServiceError("token", err)
	}

	if err := s.media.CreateRoom(ctx, roomName); err != nil {
		return nil, apperrors.MediaServiceError("room creation", err)
	}

	call := &domain.Call{
		LivekitRoomName: roomName,
		Type:            in.Type,
		CallType:        in.CallType,
		InitiatorID:     in.InitiatorID,
		RecipientID:     in.RecipientID,
		GroupChatID:     in.GroupChatID,
		Status:          domain.CallStatusInitiated,
	}
	if err := s.repo.Create(ctx, call); err != nil {
		// Leave no orphan room behind
		if delErr := s.media.DeleteRoom(ctx, roomName); delErr != nil {
			s.log.Warn("Failed to delete media room after create failure",
				zap.String("room", roomName), zap.Error(delErr))
		}
		return nil, apperrors.DatabaseError(err)
	}
	s.roomNames.Add(roomName, call.ID)

	s.metrics.RecordCallLifecycleEvent(sourceREST, "initiate")
	logger.FromContext(ctx).Info("Call initiated",
		zap.Int64("call_id", call.ID),
		zap.String("room", roomName),
		zap.String("call_type", string(call.CallType)),
		zap.Int64("initiator_id", call.InitiatorID))

	return &Session{Call: call, Token: token, URL: s.media.URL()}, nil
}

// Join records userID as a participant and moves an initiated call to
// ongoing. Joining a call that has ended fails without side effects.
func (s *Service) Join(ctx context.Context, callID, userID int64, userName string) (*Session, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.Status.Terminal() {
		return nil, apperrors.CallEndedError()
	}
	if userID == 0 {
		return nil, apperrors.MissingFieldError("userId")
	}

	token, err := s.media.IssueToken(call.LivekitRoomName, userID, sanitize.DisplayName(userName))
	if err != nil {
		return nil, apperrors.MediaServiceError("token", err)
	}

	now := s.now()
	if err := s.repo.UpsertParticipant(ctx, callID, userID, now); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	started, err := s.repo.MarkOngoing(ctx, callID, now)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if started {
		call.Status = domain.CallStatusOngoing
		call.StartedAt = &now
		s.metrics.RecordCallLifecycleEvent(sourceREST, "start")
	}
	s.metrics.RecordCallLifecycleEvent(sourceREST, "join")

	logger.FromContext(ctx).Info("User joined call",
		zap.Int64("call_id", callID),
		zap.Int64("user_id", userID),
		zap.Bool("started", started))

	return &Session{Call: call, Token: token, URL: s.media.URL()}, nil
}

// Leave marks userID as having left. The call itself keeps its status.
func (s *Service) Leave(ctx context.Context, callID, userID int64) error {
	if userID == 0 {
		return apperrors.MissingFieldError("userId")
	}

	if _, err := s.getCall(ctx, callID); err != nil {
		return err
	}

	if err := s.repo.MarkParticipantLeft(ctx, callID, userID, s.now()); err != nil {
		return apperrors.DatabaseError(err)
	}

	s.metrics.RecordCallLifecycleEvent(sourceREST, "leave")
	return nil
}

// Reject records that userID declined the call. A direct call nobody joined
// becomes rejected and its room is torn down.
func (s *Service) Reject(ctx context.Context, callID, userID int64) (*domain.Call, error) {
	if userID == 0 {
		return nil, apperrors.MissingFieldError("userId")
	}

	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.Status.Terminal() {
		return nil, apperrors.CallEndedError()
	}

	now := s.now()
	if err := s.repo.MarkParticipantRejected(ctx, callID, userID, now); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	s.metrics.RecordCallLifecycleEvent(sourceREST, "reject")

	if call.CallType != domain.CallTypeDirect {
		return call, nil
	}

	rejected, err := s.repo.MarkRejected(ctx, callID, now)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !rejected {
		// Someone joined in the meantime
		return s.getCall(ctx, callID)
	}

	s.terminateRoom(callID)
	if err := s.media.DeleteRoom(ctx, call.LivekitRoomName); err != nil {
		return nil, apperrors.MediaServiceError("room teardown", err)
	}

	return s.getCall(ctx, callID)
}

// End finalizes the call, stamps every joined participant as left, closes
// the live call room and tears down the external room. Ending twice keeps
// the first end time and duration.
func (s *Service) End(ctx context.Context, callID int64) (*domain.Call, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.finalize(ctx, call, now, sourceREST); err != nil {
		return nil, err
	}

	s.terminateRoom(callID)
	if err := s.media.DeleteRoom(ctx, call.LivekitRoomName); err != nil {
		return nil, apperrors.MediaServiceError("room teardown", err)
	}

	logger.FromContext(ctx).Info("Call ended", zap.Int64("call_id", callID))
	return s.getCall(ctx, callID)
}

// Get returns a call with its participants
func (s *Service) Get(ctx context.Context, callID int64) (*domain.Call, error) {
	call, err := s.getCall(ctx, callID)
	if err != nil {
		return nil, err
	}

	participants, err := s.repo.GetParticipants(ctx, callID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	call.Participants = participants
	return call, nil
}

// History returns the calls a user took part in, newest first
func (s *Service) History(ctx context.Context, userID int64, limit, offset int) ([]*domain.Call, error) {
	if userID == 0 {
		return nil, apperrors.MissingFieldError("userId")
	}
	page := pagination.Params{Limit: limit, Offset: offset}.Normalize()

	calls, err := s.repo.GetUserCalls(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if calls == nil {
		calls = []*domain.Call{}
	}
	return calls, nil
}

// LiveState is the in-memory view of a resident call room
type LiveState struct {
	CallID       int64           `json:"callId"`
	Status       room.CallStatus `json:"status"`
	Participants []room.Identity `json:"participants"`
}

// Live returns the state of the call room if one is resident
func (s *Service) Live(callID int64) (*LiveState, error) {
	r, ok := s.rooms.Lookup(callID)
	if !ok {
		return nil, apperrors.NotFoundError("Call room")
	}

	participants := r.Participants()
	if participants == nil {
		participants = []room.Identity{}
	}
	return &LiveState{
		CallID:       callID,
		Status:       r.Status(),
		Participants: participants,
	}, nil
}

// ValidateAdmission checks a call socket may be opened: the call must
// exist and must not have ended. Concurrent checks for one call share a
// single store lookup, which runs detached from any one caller's
// cancellation.
func (s *Service) ValidateAdmission(ctx context.Context, callID int64) error {
	_, err, _ := s.admission.Do(strconv.FormatInt(callID, 10), func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultTimeout)
		defer cancel()

		call, err := s.getCall(lookupCtx, callID)
		if err != nil {
			return nil, err
		}
		if call.Status.Terminal() {
			return nil, apperrors.CallEndedError()
		}
		return nil, nil
	})
	return err
}

// finalize applies the idempotent end update shared by every end path
func (s *Service) finalize(ctx context.Context, call *domain.Call, endedAt time.Time, source string) error {
	duration := domain.ComputeDuration(call.StartedAt, endedAt)

	changed, err := s.repo.Finalize(ctx, call.ID, endedAt, duration)
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	left, err := s.repo.MarkAllParticipantsLeft(ctx, call.ID, endedAt)
	if err != nil {
		return apperrors.DatabaseError(err)
	}

	if changed && call.EndedAt == nil {
		s.metrics.RecordCallDuration(time.Duration(duration) * time.Second)
	}
	s.metrics.RecordCallLifecycleEvent(source, "end")

	s.log.Debug("Call finalized",
		zap.Int64("call_id", call.ID),
		zap.String("source", source),
		zap.Bool("changed", changed),
		zap.Int("duration", duration),
		zap.Int64("participants_left", left))
	return nil
}

// terminateRoom force-closes the resident call room, if any
func (s *Service) terminateRoom(callID int64) {
	if r, ok := s.rooms.Lookup(callID); ok {
		r.Terminate()
	}
}

func (s *Service) getCall(ctx context.Context, callID int64) (*domain.Call, error) {
	if callID <= 0 {
		return nil, apperrors.CallNotFoundError()
	}

	call, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, domain.ErrCallNotFound) {
			return nil, apperrors.CallNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return call, nil
}
