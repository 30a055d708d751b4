package room

import (
	"go.uber.org/zap"
)

// ChatRoom relays chat and typing frames between the sessions of one chat
// room and announces presence changes.
type ChatRoom struct {
	multiplexer
}

// NewChatRoom creates an empty chat room
func NewChatRoom(roomID string, opts Options) *ChatRoom {
	r := &ChatRoom{}
	r.init(KindChat, roomID, opts)
	r.departed = func(id Identity) []byte {
		return userStatusEvent(id, PresenceOffline)
	}
	r.observer.RoomCreated(KindChat, roomID)
	return r
}

// ID returns the chat room id
func (r *ChatRoom) ID() string {
	return r.roomID
}

// Admit registers conn as a new session and tells everyone else the
// participant is online.
func (r *ChatRoom) Admit(conn Conn, id Identity) (*Session, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}

	var s *Session
	r.call(func() {
		s = r.register(conn, id)
		r.broadcast(userStatusEvent(id, PresenceOnline), s)
	})
	return s, nil
}

// Deliver handles one inbound frame from s. Chat messages and typing
// indicators are forwarded verbatim to every other session; anything else is
// dropped.
func (r *ChatRoom) Deliver(s *Session, raw []byte) {
	r.call(func() {
		if !r.has(s) {
			return
		}

		ev, err := DecodeEvent(raw)
		if err != nil {
			r.drop("malformed", s, zap.Error(err))
			return
		}

		switch ev.(type) {
		case ChatMessage, Typing:
			r.relay(ev, s)
		case ServerOnly:
			r.drop("server_only", s, zap.String("type", string(ev.Type())))
		default:
			r.drop("unsupported", s, zap.String("type", string(ev.Type())))
		}
	})
}

// Disconnect removes s and tells everyone else the participant is offline.
// Calling it again for the same session has no effect.
func (r *ChatRoom) Disconnect(s *Session) {
	r.call(func() {
		r.leave(s, CloseNormal, ReasonDisconnect)
	})
}

// Participants returns the connected sessions' identities in admission order
func (r *ChatRoom) Participants() []Identity {
	var out []Identity
	r.call(func() {
		out = r.identities()
	})
	return out
}

// Close closes every session, for server shutdown
func (r *ChatRoom) Close(reason string) {
	r.call(func() {
		r.closeAll(CloseGoingAway, reason)
	})
}
