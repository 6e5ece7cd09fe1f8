// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	wstypes "frontdesk-service/internal/domain/websocket"
	"frontdesk-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

type Hub struct {
	// Registered clients by staff ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	broadcast chan *BroadcastMessage

	// Handler registry for modular message handling
	handlerRegistry *HandlerRegistry

	verifier TokenVerifier
	logger   *zap.Logger
}

type BroadcastMessage struct {
	// StaffIDs limits delivery; nil means every subscribed client.
	StaffIDs []string
	Channel  wstypes.ChannelType
	Message  *wstypes.WSMessage
}

func NewHub(verifier TokenVerifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:         make(map[string]map[*Client]bool),
		Register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *BroadcastMessage, 256),
		handlerRegistry: NewHandlerRegistry(),
		verifier:        verifier,
		logger:          logger,
	}
}

// AuthenticateClient validates the JWT token for a connecting dashboard.
func (h *Hub) AuthenticateClient(token string) (*ClientAuth, error) {
	if h.verifier == nil {
		return nil, ErrUnauthorized
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &ClientAuth{
		StaffID: claims.Subject,
		Name:    claims.Name,
		Roles:   claims.Roles,
		Site:    claims.Site,
	}, nil
}

// RegisterHandler registers a message handler. Call before Run.
func (h *Hub) RegisterHandler(handler MessageHandler) error {
	return h.handlerRegistry.Register(handler)
}

// HandleClientMessage processes a message from a client using registered
// handlers. handled is false when no handler owns the event type.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (handled bool, err error) {
	handler, exists := h.handlerRegistry.GetHandler(msg.Type)
	if !exists {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.staffID] == nil {
		h.clients[client.staffID] = make(map[*Client]bool)
	}
	h.clients[client.staffID][client] = true

	h.logger.Info("websocket client connected",
		zap.String("staff_id", client.staffID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"staff_id": client.staffID,
		"name":     client.name,
		"roles":    client.roles,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.staffID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.staffID)
			}

			h.logger.Info("websocket client disconnected",
				zap.String("staff_id", client.staffID),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.StaffIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				if client.IsSubscribed(msg.Channel) {
					client.SendMessage(msg.Message)
				}
			}
		}
		return
	}

	for _, staffID := range msg.StaffIDs {
		for client := range h.clients[staffID] {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// enqueue never blocks the caller; producers are the queue and sync loops.
func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast buffer full, dropping message",
			zap.String("type", string(msg.Message.Type)))
	}
}

func (h *Hub) BroadcastQueueChange(change *wstypes.QueueChangeData) {
	h.enqueue(&BroadcastMessage{
		Channel: wstypes.ChannelQueue,
		Message: wstypes.NewMessage(wstypes.EventTypeQueueChanged, change),
	})
}

func (h *Hub) BroadcastSyncDrained(data *wstypes.SyncDrainData) {
	h.enqueue(&BroadcastMessage{
		Channel: wstypes.ChannelSync,
		Message: wstypes.NewMessage(wstypes.EventTypeSyncDrained, data),
	})
}

func (h *Hub) BroadcastConnectivity(online bool) {
	h.enqueue(&BroadcastMessage{
		Channel: wstypes.ChannelSystem,
		Message: wstypes.NewMessage(wstypes.EventTypeConnectivityChange, wstypes.ConnectivityData{Online: online}),
	})
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}
