package call

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"go.uber.org/zap"

	"learnhub-backend/internal/domain"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/jwt"
	"learnhub-backend/pkg/logger"
)

// Webhook event names sent by the media service
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

// Webhook outcomes recorded in metrics
const (
	outcomeApplied         = "applied"
	outcomeIgnored         = "ignored"
	outcomeDuplicate       = "duplicate"
	outcomeUnknownRoom     = "unknown_room"
	outcomeUnknownIdentity = "unknown_identity"
	outcomeFailed          = "failed"
)

// ReceiveWebhook verifies the signature of a media-service webhook request
// and decodes its event
func (s *Service) ReceiveWebhook(r *http.Request) (*livekit.WebhookEvent, error) {
	if s.keys == nil {
		return nil, apperrors.InvalidSignatureError(errors.New("webhook keys not configured"))
	}

	event, err := webhook.ReceiveWebhookEvent(r, s.keys)
	if err != nil {
		return nil, apperrors.InvalidSignatureError(err)
	}
	return event, nil
}

// ApplyWebhook applies a verified webhook event to the persisted record.
// Events for unknown rooms and event kinds this service does not track are
// logged and ignored. A redelivered event is applied at most once.
func (s *Service) ApplyWebhook(ctx context.Context, event *livekit.WebhookEvent) error {
	log := logger.FromContext(ctx).With(
		zap.String("event", event.GetEvent()),
		zap.String("event_id", event.GetId()),
		zap.String("room", event.GetRoom().GetName()))

	switch event.GetEvent() {
	case EventRoomStarted, EventRoomFinished, EventParticipantJoined, EventParticipantLeft:
	default:
		log.Debug("Ignoring webhook event")
		s.metrics.RecordWebhookEvent(event.GetEvent(), outcomeIgnored)
		return nil
	}

	first, err := s.claim(ctx, event.GetId())
	if err != nil {
		log.Warn("Webhook ledger unavailable, processing without deduplication", zap.Error(err))
	}
	if !first {
		log.Debug("Duplicate webhook delivery")
		s.metrics.RecordWebhookEvent(event.GetEvent(), outcomeDuplicate)
		return nil
	}

	outcome, err := s.applyWebhook(ctx, event)
	if err != nil {
		if relErr := s.release(ctx, event.GetId()); relErr != nil {
			log.Warn("Failed to release webhook event", zap.Error(relErr))
		}
		log.Error("Failed to apply webhook event", zap.Error(err))
		s.metrics.RecordWebhookEvent(event.GetEvent(), outcomeFailed)
		return err
	}

	if outcome != outcomeApplied {
		log.Warn("Webhook event not applied", zap.String("outcome", outcome))
	}
	s.metrics.RecordWebhookEvent(event.GetEvent(), outcome)
	return nil
}

func (s *Service) applyWebhook(ctx context.Context, event *livekit.WebhookEvent) (string, error) {
	call, err := s.callForRoom(ctx, event.GetRoom().GetName())
	if err != nil {
		if errors.Is(err, domain.ErrCallNotFound) {
			return outcomeUnknownRoom, nil
		}
		return "", apperrors.DatabaseError(err)
	}

	at := s.now()
	if event.GetCreatedAt() > 0 {
		at = time.Unix(event.GetCreatedAt(), 0).UTC()
	}

	switch event.GetEvent() {
	case EventRoomStarted:
		started, err := s.repo.MarkOngoing(ctx, call.ID, at)
		if err != nil {
			return "", apperrors.DatabaseError(err)
		}
		if started {
			s.metrics.RecordCallLifecycleEvent(sourceWebhook, "start")
		}

	case EventRoomFinished:
		if err := s.finalize(ctx, call, at, sourceWebhook); err != nil {
			return "", err
		}
		s.roomNames.Remove(call.LivekitRoomName)

	case EventParticipantJoined, EventParticipantLeft:
		userID, err := jwt.ParseIdentity(event.GetParticipant().GetIdentity())
		if err != nil {
			return outcomeUnknownIdentity, nil
		}

		if event.GetEvent() == EventParticipantJoined {
			err = s.repo.UpsertParticipant(ctx, call.ID, userID, at)
		} else {
			err = s.repo.MarkParticipantLeft(ctx, call.ID, userID, at)
		}
		if err != nil {
			return "", apperrors.DatabaseError(err)
		}
		s.metrics.RecordCallLifecycleEvent(sourceWebhook, event.GetEvent())
	}

	return outcomeApplied, nil
}

// callForRoom resolves an external room name to its call. The id mapping
// is cached because room names never change.
func (s *Service) callForRoom(ctx context.Context, roomName string) (*domain.Call, error) {
	if roomName == "" {
		return nil, domain.ErrCallNotFound
	}

	if callID, ok := s.roomNames.Get(roomName); ok {
		return s.repo.GetByID(ctx, callID)
	}

	call, err := s.repo.GetByRoomName(ctx, roomName)
	if err != nil {
		return nil, err
	}
	s.roomNames.Add(roomName, call.ID)
	return call, nil
}

func (s *Service) claim(ctx context.Context, eventID string) (bool, error) {
	if s.ledger == nil {
		return true, nil
	}
	return s.ledger.Claim(ctx, eventID)
}

func (s *Service) release(ctx context.Context, eventID string) error {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.Release(ctx, eventID)
}
