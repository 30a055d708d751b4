package telemetry

import (
	"go.uber.org/zap"

	"learnhub-backend/internal/room"
)

// RoomMetrics is the subset of pkg/metrics fed by room actors
type RoomMetrics interface {
	AddWebSocketConnections(kind string, delta float64)
	IncrementRoomActors(kind string)
	RecordMessageRelayed(kind, msgType string)
	RecordMessageDropped(kind, reason string)
	RecordSessionReaped(kind string)
	RecordCallRoomTransition(to string)
}

// MetricsObserver turns room notifications into Prometheus samples
type MetricsObserver struct {
	m RoomMetrics
}

func NewMetricsObserver(m RoomMetrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

func (o *MetricsObserver) RoomCreated(kind room.Kind, _ string) {
	o.m.IncrementRoomActors(string(kind))
}

func (o *MetricsObserver) SessionOpened(kind room.Kind, _ string, _ room.Identity) {
	o.m.AddWebSocketConnections(string(kind), 1)
}

func (o *MetricsObserver) SessionClosed(kind room.Kind, _ string, _ room.Identity, reason string) {
	o.m.AddWebSocketConnections(string(kind), -1)
	if reason == room.ReasonSendFailed {
		o.m.RecordSessionReaped(string(kind))
	}
}

func (o *MetricsObserver) MessageRelayed(kind room.Kind, eventType room.EventType, _ int) {
	o.m.RecordMessageRelayed(string(kind), string(eventType))
}

func (o *MetricsObserver) MessageDropped(kind room.Kind, reason string) {
	o.m.RecordMessageDropped(string(kind), reason)
}

func (o *MetricsObserver) CallStatusChanged(_ int64, _, to room.CallStatus) {
	o.m.RecordCallRoomTransition(string(to))
}

// LogObserver writes the notifications worth keeping to the log. Chatty
// per-frame notifications are ignored.
type LogObserver struct {
	room.NopObserver
	log *zap.Logger
}

func NewLogObserver(log *zap.Logger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) RoomCreated(kind room.Kind, roomID string) {
	o.log.Info("Room actor started",
		zap.String("room_kind", string(kind)),
		zap.String("room_id", roomID))
}

func (o *LogObserver) SessionClosed(kind room.Kind, roomID string, id room.Identity, reason string) {
	if reason != room.ReasonSendFailed {
		return
	}
	o.log.Info("Session reaped",
		zap.String("room_kind", string(kind)),
		zap.String("room_id", roomID),
		zap.Int64("user_id", id.ParticipantID))
}

// The in-memory status is not written back to the store; the log line is the
// only trace of it outside the process.
func (o *LogObserver) CallStatusChanged(callID int64, from, to room.CallStatus) {
	o.log.Info("Call room status changed",
		zap.Int64("call_id", callID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}
