package bus

import "time"

// Event kinds published by the daemon.
const (
	KindSnapshot      = "chatlist.snapshot"
	KindStatusChanged = "session.status_changed"
	KindSignedIn      = "session.signed_in"
	KindSignedOut     = "session.signed_out"
	KindRosterSynced  = "sync.roster"
	KindSendAck       = "message.send_ack"
	KindSendFailed    = "message.send_failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
