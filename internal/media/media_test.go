package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twitchtv/twirp"

	"learnhub-backend/pkg/config"
	"learnhub-backend/pkg/jwt"
	"learnhub-backend/pkg/resilience"
)

// MockRoomClient is a mock implementation of roomClient
type MockRoomClient struct {
	mock.Mock
}

func (m *MockRoomClient) CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*livekit.Room), args.Error(1)
}

func (m *MockRoomClient) DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*livekit.DeleteRoomResponse), args.Error(1)
}

func newTestLiveKit(client roomClient) *LiveKit {
	cfg := &config.LiveKitConfig{
		URL:             "wss://media.example.com",
		APIKey:          "APIkey",
		APISecret:       "secret",
		EmptyTimeout:    2 * time.Minute,
		MaxParticipants: 8,
	}
	breaker := resilience.NewCircuitBreaker("livekit", resilience.Settings{FailureThreshold: 2, Cooldown: time.Hour})
	return newLiveKit(client, jwt.NewMediaTokenIssuer(cfg.APIKey, cfg.APISecret, time.Hour), breaker, cfg)
}

func TestLiveKit_CreateRoom(t *testing.T) {
	client := new(MockRoomClient)
	lk := newTestLiveKit(client)

	client.On("CreateRoom", mock.Anything, mock.MatchedBy(func(req *livekit.CreateRoomRequest) bool {
		return req.Name == "call-01" && req.EmptyTimeout == 120 && req.MaxParticipants == 8
	})).Return(&livekit.Room{Name: "call-01", Sid: "RM_1"}, nil)

	require.NoError(t, lk.CreateRoom(context.Background(), "call-01"))
	client.AssertExpectations(t)
}

func TestLiveKit_DeleteRoomToleratesNotFound(t *testing.T) {
	client := new(MockRoomClient)
	lk := newTestLiveKit(client)

	client.On("DeleteRoom", mock.Anything, &livekit.DeleteRoomRequest{Room: "call-gone"}).
		Return(nil, twirp.NotFoundError("room not found"))

	assert.NoError(t, lk.DeleteRoom(context.Background(), "call-gone"))
}

func TestLiveKit_FailuresOpenBreaker(t *testing.T) {
	client := new(MockRoomClient)
	lk := newTestLiveKit(client)

	boom := twirp.InternalError("boom")
	client.On("DeleteRoom", mock.Anything, mock.Anything).Return(nil, boom).Twice()

	ctx := context.Background()
	assert.Error(t, lk.DeleteRoom(ctx, "call-01"))
	assert.Error(t, lk.DeleteRoom(ctx, "call-01"))

	err := lk.DeleteRoom(ctx, "call-01")
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	client.AssertNumberOfCalls(t, "DeleteRoom", 2)
}

func TestLiveKit_IssueToken(t *testing.T) {
	lk := newTestLiveKit(new(MockRoomClient))

	token, err := lk.IssueToken("call-01", 7, "Grace")
	require.NoError(t, err)

	claims, err := jwt.NewMediaTokenIssuer("APIkey", "secret", time.Hour).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "call-01", claims.Video.Room)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, "wss://media.example.com", lk.URL())
}
