package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"learnhub-backend/internal/room"
	apperrors "learnhub-backend/pkg/errors"
	"learnhub-backend/pkg/response"
)

// MockCallAdmission is a mock implementation of CallAdmission
type MockCallAdmission struct {
	mock.Mock
}

func (m *MockCallAdmission) ValidateAdmission(ctx context.Context, callID int64) error {
	args := m.Called(ctx, callID)
	return args.Error(0)
}

type fixture struct {
	chats     *room.ChatRegistry
	calls     *room.CallRegistry
	admission *MockCallAdmission
	router    *gin.Engine
}

func newFixture(maxConns int) *fixture {
	gin.SetMode(gin.TestMode)

	f := &fixture{
		chats:     room.NewChatRegistry(room.Options{}),
		calls:     room.NewCallRegistry(room.Options{}),
		admission: new(MockCallAdmission),
		router:    gin.New(),
	}

	settings := Settings{WriteTimeout: time.Second}
	gate := NewGate(maxConns)
	upgrader := NewUpgrader([]string{"http://localhost:3000"})

	chat := NewChatHandler(f.chats, upgrader, settings, gate)
	call := NewCallHandler(f.calls, f.admission, upgrader, settings, gate)

	f.router.GET("/ws/chat/:roomId", chat.ServeWS)
	f.router.GET("/ws/call", call.ServeWS)
	return f
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (room.Envelope, []byte) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env room.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env, data
}

func waitParticipants(t *testing.T, participants func() int, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return participants() == want }, 2*time.Second, 10*time.Millisecond)
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestChatHandler_RejectsBadIdentityBeforeUpgrade(t *testing.T) {
	f := newFixture(10)

	tests := []struct {
		name  string
		query string
	}{
		{"missing user id", "?userName=Alice"},
		{"non numeric user id", "?userId=alice&userName=Alice"},
		{"missing user name", "?userId=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ws/chat/general"+tt.query, nil)
			f.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, errorBody(t, w).Error)
		})
	}

	assert.Equal(t, 0, f.chats.Len())
}

func TestCallHandler_RejectsBeforeUpgrade(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		admission  error
		wantStatus int
		wantError  string
	}{
		{"missing call id", "?userId=1&userName=A", nil, http.StatusBadRequest, "callId required"},
		{"non numeric call id", "?callId=abc&userId=1&userName=A", nil, http.StatusBadRequest, ""},
		{"unknown call", "?callId=404&userId=1&userName=A", apperrors.CallNotFoundError(), http.StatusNotFound, "Call not found"},
		{"ended call", "?callId=5&userId=1&userName=A", apperrors.CallEndedError(), http.StatusBadRequest, "Call has ended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(10)
			f.admission.On("ValidateAdmission", mock.Anything, mock.AnythingOfType("int64")).Return(tt.admission)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ws/call"+tt.query, nil)
			f.router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorBody(t, w).Error)
			}
			assert.Equal(t, 0, f.calls.Len(), "no room created for rejected sockets")
		})
	}
}

func TestChatHandler_RelaysBetweenSockets(t *testing.T) {
	f := newFixture(10)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	a := dial(t, srv, "/ws/chat/general?userId=1&userName=Alice")
	waitParticipants(t, func() int { return len(f.chats.Resolve("general").Participants()) }, 1)
	b := dial(t, srv, "/ws/chat/general?userId=2&userName=Bob")

	env, _ := readEnvelope(t, a)
	assert.Equal(t, room.EventUserStatus, env.Type)
	assert.JSONEq(t, `{"userId":2,"userName":"Bob","status":"online"}`, string(env.Payload))

	msg := `{"type":"chat_message","payload":{"senderId":1,"content":"hi bob"}}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(msg)))

	_, raw := readEnvelope(t, b)
	assert.Equal(t, msg, string(raw))

	require.NoError(t, b.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	env, _ = readEnvelope(t, a)
	assert.Equal(t, room.EventUserStatus, env.Type)
	assert.JSONEq(t, `{"userId":2,"userName":"Bob","status":"offline"}`, string(env.Payload))
}

func TestCallHandler_TerminateClosesSockets(t *testing.T) {
	f := newFixture(10)
	f.admission.On("ValidateAdmission", mock.Anything, int64(77)).Return(nil)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	a := dial(t, srv, "/ws/call?callId=77&userId=1&userName=Alice")
	waitParticipants(t, func() int { return len(f.calls.Resolve(77).Participants()) }, 1)
	b := dial(t, srv, "/ws/call?callId=77&userId=2&userName=Bob")

	env, _ := readEnvelope(t, a)
	assert.Equal(t, room.EventCallEvent, env.Type)
	assert.JSONEq(t, `{"callId":77,"event":"participant_joined","userId":2,"userName":"Bob"}`, string(env.Payload))

	callRoom, ok := f.calls.Lookup(77)
	require.True(t, ok)
	assert.Equal(t, room.CallOngoing, callRoom.Status())

	callRoom.Terminate()

	for _, c := range []*websocket.Conn{a, b} {
		env, _ := readEnvelope(t, c)
		assert.JSONEq(t, `{"callId":77,"event":"call_ended"}`, string(env.Payload))

		_, _, err := c.ReadMessage()
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	}

	assert.Equal(t, room.CallEnded, callRoom.Status())
	f.admission.AssertExpectations(t)
}

func TestGate_RejectsWhenFull(t *testing.T) {
	f := newFixture(1)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	_ = dial(t, srv, "/ws/chat/general?userId=1&userName=Alice")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/general?userId=2&userName=Bob"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUpgrader_CheckOrigin(t *testing.T) {
	up := NewUpgrader([]string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, up.CheckOrigin(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, up.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, up.CheckOrigin(req))

	open := NewUpgrader([]string{"*"})
	assert.True(t, open.CheckOrigin(req))
}
