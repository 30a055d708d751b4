package room

import (
	"strconv"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// CallRoom carries in-call signaling for one call and tracks the call's
// in-memory status: initiated until the first admission, ongoing while
// anyone is connected, ended once the last session leaves or the call is
// terminated. Ended is final.
type CallRoom struct {
	multiplexer

	callID int64
	status *atomic.String
}

// NewCallRoom creates an empty call room in the initiated state
func NewCallRoom(callID int64, opts Options) *CallRoom {
	r := &CallRoom{
		callID: callID,
		status: atomic.NewString(string(CallInitiated)),
	}
	r.init(KindCall, strconv.FormatInt(callID, 10), opts)
	r.departed = func(id Identity) []byte {
		return callEvent(r.callID, CallEventParticipantLeft, &id)
	}
	r.detached = func() {
		if len(r.sessions) == 0 {
			r.transition(CallEnded)
		}
	}
	r.observer.RoomCreated(KindCall, r.roomID)
	return r
}

// CallID returns the call this room belongs to
func (r *CallRoom) CallID() int64 {
	return r.callID
}

// Status returns the current in-memory status. It does not wait for queued
// operations.
func (r *CallRoom) Status() CallStatus {
	return CallStatus(r.status.Load())
}

// Admit registers conn as a new session and announces the new participant.
// The first admission moves the call to ongoing. A room that already ended
// still admits, so signaling can resume after everyone dropped, but its
// status stays ended. Callers gate admission on the persisted call.
func (r *CallRoom) Admit(conn Conn, id Identity) (*Session, error) {
	if err := id.validate(); err != nil {
		return nil, err
	}

	var s *Session
	r.call(func() {
		s = r.register(conn, id)
		r.transition(CallOngoing)
		r.broadcast(callEvent(r.callID, CallEventParticipantJoined, &id), s)
	})
	return s, nil
}

// Deliver forwards a frame from s to every other session unchanged, whatever
// its tag or payload. Frames with a server-reserved tag and frames that are
// not tagged JSON are dropped.
func (r *CallRoom) Deliver(s *Session, raw []byte) {
	r.call(func() {
		if !r.has(s) {
			return
		}

		ev, err := DecodeEvent(raw)
		if err != nil {
			r.drop("malformed", s, zap.Error(err))
			return
		}

		if _, reserved := ev.(ServerOnly); reserved {
			r.drop("server_only", s, zap.String("type", string(ev.Type())))
			return
		}
		r.relay(ev, s)
	})
}

// Disconnect removes s and announces that the participant left. When no
// sessions remain the call ends. Calling it again for the same session has
// no effect.
func (r *CallRoom) Disconnect(s *Session) {
	r.call(func() {
		r.leave(s, CloseNormal, ReasonDisconnect)
	})
}

// Terminate sends call_ended to every session, closes them all and marks the
// call ended regardless of its previous status.
func (r *CallRoom) Terminate() {
	r.call(func() {
		ended := callEvent(r.callID, CallEventEnded, nil)
		for _, s := range r.ordered() {
			if err := s.conn.Send(ended); err != nil {
				r.log.Debug("call_ended not delivered", zap.Uint64("session_id", s.id), zap.Error(err))
			}
			r.detach(s, CloseNormal, ReasonCallEnded)
		}
		r.transition(CallEnded)
	})
}

// Participants returns the connected sessions' identities in admission order
func (r *CallRoom) Participants() []Identity {
	var out []Identity
	r.call(func() {
		out = r.identities()
	})
	return out
}

// Close closes every session, for server shutdown
func (r *CallRoom) Close(reason string) {
	r.call(func() {
		r.closeAll(CloseGoingAway, reason)
	})
}

// transition moves the status forward. Ended is absorbing and repeated
// transitions are ignored.
func (r *CallRoom) transition(to CallStatus) {
	from := r.Status()
	if from == CallEnded || from == to {
		return
	}
	r.status.Store(string(to))

	r.observer.CallStatusChanged(r.callID, from, to)
	r.log.Info("Call room status changed",
		zap.Int64("call_id", r.callID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}
