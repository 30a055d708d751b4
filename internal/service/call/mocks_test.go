package call

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"learnhub-backend/internal/domain"
)

// MockCallRepository is a mock implementation of CallRepository
type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) Create(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallRepository) GetByID(ctx context.Context, callID int64) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Hand out copies so callers cannot mutate the fixture
	call := *args.Get(0).(*domain.Call)
	return &call, args.Error(1)
}

func (m *MockCallRepository) GetByRoomName(ctx context.Context, roomName string) (*domain.Call, error) {
	args := m.Called(ctx, roomName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	call := *args.Get(0).(*domain.Call)
	return &call, args.Error(1)
}

func (m *MockCallRepository) MarkOngoing(ctx context.Context, callID int64, startedAt time.Time) (bool, error) {
	args := m.Called(ctx, callID, startedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallRepository) Finalize(ctx context.Context, callID int64, endedAt time.Time, duration int) (bool, error) {
	args := m.Called(ctx, callID, endedAt, duration)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallRepository) MarkRejected(ctx context.Context, callID int64, endedAt time.Time) (bool, error) {
	args := m.Called(ctx, callID, endedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallRepository) UpsertParticipant(ctx context.Context, callID, userID int64, joinedAt time.Time) error {
	args := m.Called(ctx, callID, userID, joinedAt)
	return args.Error(0)
}

func (m *MockCallRepository) MarkParticipantLeft(ctx context.Context, callID, userID int64, leftAt time.Time) error {
	args := m.Called(ctx, callID, userID, leftAt)
	return args.Error(0)
}

func (m *MockCallRepository) MarkParticipantRejected(ctx context.Context, callID, userID int64, at time.Time) error {
	args := m.Called(ctx, callID, userID, at)
	return args.Error(0)
}

func (m *MockCallRepository) MarkAllParticipantsLeft(ctx context.Context, callID int64, leftAt time.Time) (int64, error) {
	args := m.Called(ctx, callID, leftAt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCallRepository) GetParticipants(ctx context.Context, callID int64) ([]*domain.CallParticipant, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CallParticipant), args.Error(1)
}

func (m *MockCallRepository) GetUserCalls(ctx context.Context, userID int64, limit, offset int) ([]*domain.Call, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Call), args.Error(1)
}

// MockMediaService is a mock implementation of media.Service
type MockMediaService struct {
	mock.Mock
}

func (m *MockMediaService) CreateRoom(ctx context.Context, roomName string) error {
	args := m.Called(ctx, roomName)
	return args.Error(0)
}

func (m *MockMediaService) DeleteRoom(ctx context.Context, roomName string) error {
	args := m.Called(ctx, roomName)
	return args.Error(0)
}

func (m *MockMediaService) IssueToken(roomName string, userID int64, displayName string) (string, error) {
	args := m.Called(roomName, userID, displayName)
	return args.String(0), args.Error(1)
}

func (m *MockMediaService) URL() string {
	return "wss://media.example.com"
}

// MockWebhookLedger is a mock implementation of WebhookLedger
type MockWebhookLedger struct {
	mock.Mock
}

func (m *MockWebhookLedger) Claim(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookLedger) Release(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// recordingMetrics captures Recorder calls
type recordingMetrics struct {
	mu        sync.Mutex
	events    []string
	durations []time.Duration
	webhooks  []string
}

func (r *recordingMetrics) RecordCallLifecycleEvent(source, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, source+":"+event)
}

func (r *recordingMetrics) RecordCallDuration(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations = append(r.durations, d)
}

func (r *recordingMetrics) RecordWebhookEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.webhooks = append(r.webhooks, event+":"+outcome)
}

// fakeConn is an in-memory room.Conn
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	code   int
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.code = code
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
