package visit

import "time"

// EventType is the kind of change-feed event emitted for visit records.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	// EventResync means the feed may have lost or garbled events and the
	// projection must be rebuilt from a full fetch.
	EventResync EventType = "resync"
)

// ChangeEvent is one record-level change pushed by the backing store.
type ChangeEvent struct {
	Type       EventType   `json:"event_type"`
	Record     *QueueEntry `json:"record,omitempty"`
	ReceivedAt time.Time   `json:"-"`
}

// Trusted reports whether the event carries enough to be applied incrementally.
func (e ChangeEvent) Trusted() bool {
	switch e.Type {
	case EventInsert, EventUpdate, EventDelete:
		return e.Record != nil && e.Record.ID != "" && !e.Record.UpdatedAt.IsZero()
	}
	return false
}
