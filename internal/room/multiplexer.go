package room

import (
	"sort"

	"go.uber.org/zap"
)

// Options configures a room
type Options struct {
	Logger   *zap.Logger
	Observer Observer
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	return o
}

// multiplexer is the session set shared by chat and call rooms. All methods
// other than init must run inside the mailbox.
type multiplexer struct {
	mailbox

	kind     Kind
	roomID   string
	sessions map[uint64]*Session
	nextID   uint64
	observer Observer

	// departed renders the notice broadcast when a session leaves
	departed func(id Identity) []byte
	// detached runs after a session has been removed from the set
	detached func()
}

func (m *multiplexer) init(kind Kind, roomID string, opts Options) {
	opts = opts.withDefaults()
	m.log = opts.Logger.With(zap.String("room_kind", string(kind)), zap.String("room_id", roomID))
	m.kind = kind
	m.roomID = roomID
	m.sessions = make(map[uint64]*Session)
	m.observer = opts.Observer
	m.departed = func(Identity) []byte { return nil }
	m.detached = func() {}
}

func (m *multiplexer) register(conn Conn, id Identity) *Session {
	m.nextID++
	s := &Session{id: m.nextID, identity: id, conn: conn}
	m.sessions[s.id] = s

	m.observer.SessionOpened(m.kind, m.roomID, id)
	m.log.Debug("Session admitted",
		zap.Uint64("session_id", s.id),
		zap.Int64("user_id", id.ParticipantID),
		zap.Int("sessions", len(m.sessions)))

	return s
}

func (m *multiplexer) has(s *Session) bool {
	if s == nil {
		return false
	}
	cur, ok := m.sessions[s.id]
	return ok && cur == s
}

// detach removes s and schedules its close frame. It reports false when s was
// already gone, which keeps every cleanup path idempotent.
func (m *multiplexer) detach(s *Session, code int, reason string) bool {
	if !m.has(s) {
		return false
	}
	delete(m.sessions, s.id)

	if err := s.conn.Close(code, reason); err != nil {
		m.log.Debug("Close frame not sent", zap.Uint64("session_id", s.id), zap.Error(err))
	}

	m.observer.SessionClosed(m.kind, m.roomID, s.identity, reason)
	m.log.Debug("Session removed",
		zap.Uint64("session_id", s.id),
		zap.Int64("user_id", s.identity.ParticipantID),
		zap.String("reason", reason),
		zap.Int("sessions", len(m.sessions)))

	m.detached()
	return true
}

type outbound struct {
	data []byte
	skip *Session
}

// broadcast sends data to every session except skip and returns how many
// sessions accepted it. Sessions whose send fails are removed, and each
// removal is announced to the survivors in turn.
func (m *multiplexer) broadcast(data []byte, skip *Session) int {
	delivered := 0
	pending := []outbound{{data: data, skip: skip}}

	for first := true; len(pending) > 0; first = false {
		next := pending[0]
		pending = pending[1:]
		if next.data == nil {
			continue
		}

		var failed []*Session
		for _, s := range m.ordered() {
			if s == next.skip {
				continue
			}
			if err := s.conn.Send(next.data); err != nil {
				failed = append(failed, s)
				continue
			}
			if first {
				delivered++
			}
		}

		for _, s := range failed {
			if m.detach(s, CloseGoingAway, ReasonSendFailed) {
				pending = append(pending, outbound{data: m.departed(s.identity)})
			}
		}
	}

	return delivered
}

// leave removes s and announces its departure. Safe to call more than once.
func (m *multiplexer) leave(s *Session, code int, reason string) {
	if m.detach(s, code, reason) {
		m.broadcast(m.departed(s.identity), nil)
	}
}

// ordered returns the sessions in admission order
func (m *multiplexer) ordered() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (m *multiplexer) identities() []Identity {
	out := make([]Identity, 0, len(m.sessions))
	for _, s := range m.ordered() {
		out = append(out, s.identity)
	}
	return out
}

func (m *multiplexer) relay(ev Event, from *Session) {
	n := m.broadcast(ev.Raw(), from)
	m.observer.MessageRelayed(m.kind, ev.Type(), n)
}

func (m *multiplexer) drop(reason string, from *Session, fields ...zap.Field) {
	m.observer.MessageDropped(m.kind, reason)
	m.log.Debug("Frame dropped", append(fields,
		zap.String("reason", reason),
		zap.Uint64("session_id", from.id),
		zap.Int64("user_id", from.identity.ParticipantID))...)
}

// closeAll closes every session without announcing departures
func (m *multiplexer) closeAll(code int, reason string) {
	for _, s := range m.ordered() {
		m.detach(s, code, reason)
	}
}
