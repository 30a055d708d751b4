// Package media talks to the external media-routing service (LiveKit).
// Rooms are created and torn down here and participants get short-lived
// access tokens; media itself never flows through this process.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"
	"go.uber.org/zap"

	"learnhub-backend/pkg/config"
	"learnhub-backend/pkg/constants"
	"learnhub-backend/pkg/jwt"
	"learnhub-backend/pkg/logger"
	"learnhub-backend/pkg/resilience"
)

// Service is what the call lifecycle needs from the media server
type Service interface {
	CreateRoom(ctx context.Context, roomName string) error
	DeleteRoom(ctx context.Context, roomName string) error
	IssueToken(roomName string, userID int64, displayName string) (string, error)
	URL() string
}

// roomClient is the subset of lksdk.RoomServiceClient used here
type roomClient interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
	DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error)
}

// LiveKit implements Service on top of the LiveKit server API
type LiveKit struct {
	client          roomClient
	tokens          *jwt.MediaTokenIssuer
	breaker         *resilience.CircuitBreaker
	url             string
	emptyTimeout    time.Duration
	maxParticipants int
}

// NewLiveKit creates a LiveKit media service client
func NewLiveKit(cfg *config.LiveKitConfig, breaker *resilience.CircuitBreaker) *LiveKit {
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = constants.MediaTokenTTL
	}

	return newLiveKit(
		lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		jwt.NewMediaTokenIssuer(cfg.APIKey, cfg.APISecret, tokenTTL),
		breaker,
		cfg,
	)
}

func newLiveKit(client roomClient, tokens *jwt.MediaTokenIssuer, breaker *resilience.CircuitBreaker, cfg *config.LiveKitConfig) *LiveKit {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("livekit", resilience.Settings{})
	}

	emptyTimeout := cfg.EmptyTimeout
	if emptyTimeout <= 0 {
		emptyTimeout = constants.MediaRoomEmptyTimeout
	}

	return &LiveKit{
		client:          client,
		tokens:          tokens,
		breaker:         breaker,
		url:             cfg.URL,
		emptyTimeout:    emptyTimeout,
		maxParticipants: cfg.MaxParticipants,
	}
}

// CreateRoom creates the external room a call's media flows through
func (l *LiveKit) CreateRoom(ctx context.Context, roomName string) error {
	return l.breaker.Execute(ctx, "create_room", func(ctx context.Context) error {
		room, err := l.client.CreateRoom(ctx, &livekit.CreateRoomRequest{
			Name:            roomName,
			EmptyTimeout:    uint32(l.emptyTimeout.Seconds()),
			MaxParticipants: uint32(l.maxParticipants),
		})
		if err != nil {
			return fmt.Errorf("failed to create media room: %w", err)
		}

		logger.Debug("Media room created",
			zap.String("room", room.GetName()),
			zap.String("room_sid", room.GetSid()))
		return nil
	})
}

// DeleteRoom tears down an external room. A room that is already gone
// counts as deleted.
func (l *LiveKit) DeleteRoom(ctx context.Context, roomName string) error {
	return l.breaker.Execute(ctx, "delete_room", func(ctx context.Context) error {
		_, err := l.client.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: roomName})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete media room: %w", err)
		}
		return nil
	})
}

// IssueToken creates an access token for userID in roomName
func (l *LiveKit) IssueToken(roomName string, userID int64, displayName string) (string, error) {
	return l.tokens.IssueRoomToken(roomName, userID, displayName)
}

// URL is the address clients connect their media to
func (l *LiveKit) URL() string {
	return l.url
}

func isNotFound(err error) bool {
	var twErr twirp.Error
	return errors.As(err, &twErr) && twErr.Code() == twirp.NotFound
}
