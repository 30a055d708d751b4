package room

// Kind distinguishes the two room flavours
type Kind string

const (
	KindChat Kind = "chat"
	KindCall Kind = "call"
)

// CallStatus is the in-memory status of a call room
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallOngoing   CallStatus = "ongoing"
	CallEnded     CallStatus = "ended"
)

// Reasons passed to Observer.SessionClosed
const (
	ReasonDisconnect = "disconnect"
	ReasonSendFailed = "send failed"
	ReasonCallEnded  = "call ended"
)

// Observer receives room lifecycle notifications. Methods are invoked from
// inside the room's serialized executor and must return promptly.
type Observer interface {
	RoomCreated(kind Kind, roomID string)
	SessionOpened(kind Kind, roomID string, id Identity)
	SessionClosed(kind Kind, roomID string, id Identity, reason string)
	MessageRelayed(kind Kind, eventType EventType, recipients int)
	MessageDropped(kind Kind, reason string)
	CallStatusChanged(callID int64, from, to CallStatus)
}

// NopObserver ignores every notification
type NopObserver struct{}

func (NopObserver) RoomCreated(Kind, string) {}
func (NopObserver) SessionOpened(Kind, string, Identity) {}
func (NopObserver) SessionClosed(Kind, string, Identity, string) {}
func (NopObserver) MessageRelayed(Kind, EventType, int) {}
func (NopObserver) MessageDropped(Kind, string) {}
func (NopObserver) CallStatusChanged(int64, CallStatus, CallStatus) {}

// Observers fans notifications out to several observers in order
type Observers []Observer

func (o Observers) RoomCreated(kind Kind, roomID string) {
	for _, ob := range o {
		ob.RoomCreated(kind, roomID)
	}
}

func (o Observers) SessionOpened(kind Kind, roomID string, id Identity) {
	for _, ob := range o {
		ob.SessionOpened(kind, roomID, id)
	}
}

func (o Observers) SessionClosed(kind Kind, roomID string, id Identity, reason string) {
	for _, ob := range o {
		ob.SessionClosed(kind, roomID, id, reason)
	}
}

func (o Observers) MessageRelayed(kind Kind, eventType EventType, recipients int) {
	for _, ob := range o {
		ob.MessageRelayed(kind, eventType, recipients)
	}
}

func (o Observers) MessageDropped(kind Kind, reason string) {
	for _, ob := range o {
		ob.MessageDropped(kind, reason)
	}
}

func (o Observers) CallStatusChanged(callID int64, from, to CallStatus) {
	for _, ob := range o {
		ob.CallStatusChanged(callID, from, to)
	}
}
