// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// Queue events (server -> client)
	EventTypeQueueChanged  EventType = "queue:changed"
	EventTypeQueueSnapshot EventType = "queue:snapshot"

	// Sync events (server -> client)
	EventTypeSyncDrained        EventType = "sync:drained"
	EventTypeConnectivityChange EventType = "connectivity:changed"

	// Subscription events
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

// Subscription channels that clients can subscribe to
type ChannelType string

const (
	ChannelQueue  ChannelType = "queue"
	ChannelSync   ChannelType = "sync"
	ChannelSystem ChannelType = "system"
)

type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type UnsubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// QueueChangeData describes one applied change to the queue projection.
type QueueChangeData struct {
	EventType string      `json:"event_type"`
	VisitID   string      `json:"visit_id,omitempty"`
	Record    interface{} `json:"record,omitempty"`
	Pending   int         `json:"pending"`
	Active    int         `json:"active"`
}

// SyncDrainData is pushed after every drain of the pending-write log.
type SyncDrainData struct {
	Succeeded      []string `json:"succeeded"`
	Failed         []string `json:"failed"`
	Outstanding    int      `json:"outstanding"`
	NeedsAttention int      `json:"needs_attention"`
}

type ConnectivityData struct {
	Online bool `json:"online"`
}

func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
