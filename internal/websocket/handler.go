// internal/websocket/handler.go
package websocket

import (
	"context"
	"fmt"

	wstypes "frontdesk-service/internal/domain/websocket"
)

// MessageHandler answers client requests for one area of the dashboard.
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error
	SupportedEvents() []wstypes.EventType
}

// HandlerRegistry routes client event types to handlers. Registration happens
// before the hub runs, so lookups are not locked.
type HandlerRegistry struct {
	handlers map[wstypes.EventType]MessageHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[wstypes.EventType]MessageHandler),
	}
}

// Register claims the handler's event types. Built-in events and types already
// claimed by another handler are refused.
func (r *HandlerRegistry) Register(handler MessageHandler) error {
	for _, eventType := range handler.SupportedEvents() {
		switch eventType {
		case wstypes.EventTypePing, wstypes.EventTypeSubscribe, wstypes.EventTypeUnsubscribe:
			return fmt.Errorf("event %q is handled by the client itself", eventType)
		}
		if _, taken := r.handlers[eventType]; taken {
			return fmt.Errorf("event %q already has a handler", eventType)
		}
	}
	for _, eventType := range handler.SupportedEvents() {
		r.handlers[eventType] = handler
	}
	return nil
}

func (r *HandlerRegistry) GetHandler(eventType wstypes.EventType) (MessageHandler, bool) {
	handler, exists := r.handlers[eventType]
	return handler, exists
}
