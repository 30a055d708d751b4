package room

import (
	"errors"
	"strings"
)

// Close codes sent to peers, from RFC 6455.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
)

// ErrMissingIdentity is returned when a session has no participant id or display name
var ErrMissingIdentity = errors.New("participant id and display name are required")

// Conn is the outbound half of a client connection. Implementations must not
// block: Send either queues the frame or fails, and Close schedules a close
// frame and returns.
type Conn interface {
	Send(data []byte) error
	Close(code int, reason string) error
}

// Identity is the participant behind a session
type Identity struct {
	ParticipantID int64  `json:"userId"`
	DisplayName   string `json:"userName"`
}

func (id Identity) validate() error {
	if id.ParticipantID == 0 || strings.TrimSpace(id.DisplayName) == "" {
		return ErrMissingIdentity
	}
	return nil
}

// Session is one admitted connection. The same participant may hold several
// sessions in one room; each is tracked on its own.
type Session struct {
	id       uint64
	identity Identity
	conn     Conn
}

// ID returns the room-local handle of the session
func (s *Session) ID() uint64 {
	return s.id
}

// Identity returns the participant behind the session
func (s *Session) Identity() Identity {
	return s.identity
}
