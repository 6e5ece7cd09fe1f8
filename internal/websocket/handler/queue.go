// internal/websocket/handler/queue.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"frontdesk-service/internal/domain/visit"
	wstypes "frontdesk-service/internal/domain/websocket"
	ws "frontdesk-service/internal/websocket"
)

// QueueView is the read side of the queue projection.
type QueueView interface {
	All() []visit.QueueEntry
	ByStatus(status visit.Status) []visit.QueueEntry
	Counts() (pending, active int)
	Ready() bool
}

// QueueHandler answers snapshot requests so a dashboard can paint the queue
// before live queue:changed events arrive.
type QueueHandler struct {
	queue QueueView
}

func NewQueueHandler(queue QueueView) *QueueHandler {
	return &QueueHandler{queue: queue}
}

func (h *QueueHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeQueueSnapshot}
}

func (h *QueueHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeQueueSnapshot:
		return h.handleSnapshot(client, msg)
	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}

func (h *QueueHandler) handleSnapshot(client *ws.Client, msg *wstypes.WSMessage) error {
	var req struct {
		Status string `json:"status"`
	}
	if msg.Data != nil {
		if err := mapToStruct(msg.Data, &req); err != nil {
			client.SendError("invalid_request", "Invalid snapshot request", err.Error())
			return nil
		}
	}

	entries := h.queue.All()
	if req.Status != "" {
		status, ok := visit.ParseStatus(req.Status)
		if !ok {
			client.SendError("invalid_status", "Unknown visit status", req.Status)
			return nil
		}
		entries = h.queue.ByStatus(status)
	}

	pending, active := h.queue.Counts()
	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeQueueSnapshot, map[string]interface{}{
		"ready":   h.queue.Ready(),
		"entries": entries,
		"count":   len(entries),
		"pending": pending,
		"active":  active,
	}))
	return nil
}

func mapToStruct(data interface{}, target interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}
