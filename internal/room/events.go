package room

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the tag of a socket frame
type EventType string

const (
	EventChatMessage EventType = "chat_message"
	EventTyping      EventType = "typing"
	EventUserStatus  EventType = "user_status"
	EventCallEvent   EventType = "call_event"
)

// ErrMalformedEvent is returned for frames that are not a tagged JSON object
var ErrMalformedEvent = errors.New("malformed event")

// Envelope is the wire form of every frame: {"type": ..., "payload": ...}
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChatMessagePayload is the body of a chat_message frame
type ChatMessagePayload struct {
	SenderID    int64          `json:"senderId"`
	Content     string         `json:"content"`
	MessageType string         `json:"messageType,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TypingPayload is the body of a typing frame
type TypingPayload struct {
	UserID   int64 `json:"userId"`
	IsTyping bool  `json:"isTyping"`
}

// PresenceStatus is carried by user_status frames
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// UserStatusPayload is the body of a server-originated user_status frame
type UserStatusPayload struct {
	UserID   int64          `json:"userId"`
	UserName string         `json:"userName,omitempty"`
	Status   PresenceStatus `json:"status"`
}

// CallEventKind is carried by call_event frames
type CallEventKind string

const (
	CallEventParticipantJoined CallEventKind = "participant_joined"
	CallEventParticipantLeft   CallEventKind = "participant_left"
	CallEventEnded             CallEventKind = "call_ended"
)

// CallEventPayload is the body of a server-originated call_event frame
type CallEventPayload struct {
	CallID   int64         `json:"callId"`
	Event    CallEventKind `json:"event"`
	UserID   *int64        `json:"userId,omitempty"`
	UserName string        `json:"userName,omitempty"`
}

// Event is a decoded inbound frame. The concrete types are ChatMessage,
// Typing, ServerOnly and Signal.
type Event interface {
	Type() EventType
	// Raw is the frame exactly as received; relays forward it unchanged.
	Raw() []byte
}

type frame struct {
	typ EventType
	raw []byte
}

func (f frame) Type() EventType { return f.typ }
func (f frame) Raw() []byte     { return f.raw }

// ChatMessage is a client chat_message frame. The payload is kept as sent;
// Decode reads it when a caller needs the fields.
type ChatMessage struct {
	frame
	Payload json.RawMessage
}

// Decode parses the payload into its typed form
func (m ChatMessage) Decode() (ChatMessagePayload, error) {
	var p ChatMessagePayload
	err := decodePayload(m.Payload, &p)
	return p, err
}

// Typing is a client typing frame
type Typing struct {
	frame
	Payload json.RawMessage
}

// Decode parses the payload into its typed form
func (m Typing) Decode() (TypingPayload, error) {
	var p TypingPayload
	err := decodePayload(m.Payload, &p)
	return p, err
}

// ServerOnly is a frame whose tag is reserved for server-originated events.
// Clients may not send these; rooms drop them.
type ServerOnly struct {
	frame
}

// Signal is any other tagged frame, carried as opaque bytes
type Signal struct {
	frame
}

// DecodeEvent classifies an inbound frame by its type tag. Payloads are not
// inspected, so relayed frames never depend on their body's shape.
func DecodeEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	f := frame{typ: env.Type, raw: raw}

	switch env.Type {
	case EventChatMessage:
		return ChatMessage{frame: f, Payload: env.Payload}, nil
	case EventTyping:
		return Typing{frame: f, Payload: env.Payload}, nil
	case EventUserStatus, EventCallEvent:
		return ServerOnly{frame: f}, nil
	default:
		return Signal{frame: f}, nil
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// encodeEvent builds a server-originated frame. Payloads are plain structs,
// so marshalling cannot fail.
func encodeEvent(t EventType, payload any) []byte {
	body, _ := json.Marshal(payload)
	data, _ := json.Marshal(Envelope{Type: t, Payload: body})
	return data
}

func userStatusEvent(id Identity, status PresenceStatus) []byte {
	return encodeEvent(EventUserStatus, UserStatusPayload{
		UserID:   id.ParticipantID,
		UserName: id.DisplayName,
		Status:   status,
	})
}

func callEvent(callID int64, kind CallEventKind, id *Identity) []byte {
	p := CallEventPayload{CallID: callID, Event: kind}
	if id != nil {
		userID := id.ParticipantID
		p.UserID = &userID
		p.UserName = id.DisplayName
	}
	return encodeEvent(EventCallEvent, p)
}
