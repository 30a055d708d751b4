package domain

import (
	"errors"
	"math"
	"time"
)

// ErrCallNotFound is returned by call stores when no row matches
var ErrCallNotFound = errors.New("call not found")

// MediaType is the kind of media a call carries
type MediaType string

const (
	MediaTypeAudio MediaType = "audio"
	MediaTypeVideo MediaType = "video"
)

// Valid reports whether the media type is known
func (t MediaType) Valid() bool {
	return t == MediaTypeAudio || t == MediaTypeVideo
}

// CallType distinguishes one-to-one calls from group-chat calls
type CallType string

const (
	CallTypeDirect CallType = "direct"
	CallTypeGroup  CallType = "group"
)

// Valid reports whether the call type is known
func (t CallType) Valid() bool {
	return t == CallTypeDirect || t == CallTypeGroup
}

// CallStatus is the persisted lifecycle status of a call
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusOngoing   CallStatus = "ongoing"
	CallStatusEnded     CallStatus = "ended"
	CallStatusMissed    CallStatus = "missed"
	CallStatusRejected  CallStatus = "rejected"
)

// Terminal reports whether no further join is allowed
func (s CallStatus) Terminal() bool {
	return s == CallStatusEnded || s == CallStatusMissed || s == CallStatusRejected
}

// ParticipantStatus is the persisted status of one user in a call
type ParticipantStatus string

const (
	ParticipantJoined   ParticipantStatus = "joined"
	ParticipantLeft     ParticipantStatus = "left"
	ParticipantRejected ParticipantStatus = "rejected"
)

// Call is the durable record of a call
type Call struct {
	ID              int64      `json:"id"`
	LivekitRoomName string     `json:"livekitRoomName"`
	Type            MediaType  `json:"type"`
	CallType        CallType   `json:"callType"`
	InitiatorID     int64      `json:"initiatorId"`
	RecipientID     *int64     `json:"recipientId,omitempty"`
	GroupChatID     *int64     `json:"groupChatId,omitempty"`
	Status          CallStatus `json:"status"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	Duration        int        `json:"duration"` // seconds
	CreatedAt       time.Time  `json:"createdAt"`

	Participants []*CallParticipant `json:"participants,omitempty"`
}

// CallParticipant is the audit row of one user's presence in a call
type CallParticipant struct {
	CallID   int64             `json:"callId"`
	UserID   int64             `json:"userId"`
	JoinedAt time.Time         `json:"joinedAt"`
	LeftAt   *time.Time        `json:"leftAt,omitempty"`
	Status   ParticipantStatus `json:"status"`
}

// ComputeDuration returns whole seconds between startedAt and endedAt,
// or zero when the call never started.
func ComputeDuration(startedAt *time.Time, endedAt time.Time) int {
	if startedAt == nil || startedAt.IsZero() {
		return 0
	}
	seconds := math.Floor(endedAt.Sub(*startedAt).Seconds())
	if seconds < 0 {
		return 0
	}
	return int(seconds)
}
