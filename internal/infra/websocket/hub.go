package websocket

import (
	"context"
	"sync"

	"github.com/traceprint/api/pkg/logger"
)

const (
	// maxConnectionsPerWorkspace bounds fan-in per workspace.
	maxConnectionsPerWorkspace = 20

	// broadcastBufferSize buffers pending broadcasts.
	broadcastBufferSize = 256
)

// AuthorizeFunc decides whether a client may subscribe to a channel. The
// default implementation only checks channel shape; production wiring
// installs a check that the scan belongs to the client's workspace.
type AuthorizeFunc func(ctx context.Context, client *Client, channel string) bool

// Hub maintains the set of active clients and routes scan progress to the
// subscribers of each scan's channel.
type Hub struct {
	clients        map[*Client]bool
	workspaceConns map[string]int
	channels       map[string]map[*Client]bool

	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client

	authorizeFn AuthorizeFunc
	logger      *logger.Logger
	mu          sync.RWMutex
}

// BroadcastMessage is one message destined for a channel's subscribers.
type BroadcastMessage struct {
	Channel string
	Message *Message
	// WorkspaceID restricts delivery to clients of one workspace.
	WorkspaceID string
}

// NewHub creates a Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		workspaceConns: make(map[string]int),
		channels:       make(map[string]map[*Client]bool),
		broadcast:      make(chan *BroadcastMessage, broadcastBufferSize),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		authorizeFn:    defaultAuthorize,
		logger:         log.With("component", "websocket_hub"),
	}
}

// defaultAuthorize admits any well-formed scan_progress channel for an
// identified workspace.
func defaultAuthorize(_ context.Context, client *Client, channel string) bool {
	return client.WorkspaceID != "" && ParseScanChannel(channel) != ""
}

// SetAuthorizeFunc installs a custom subscription authorization check.
func (h *Hub) SetAuthorizeFunc(fn AuthorizeFunc) {
	h.authorizeFn = fn
}

// Run is the hub's main loop; it exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopping")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			if count := h.workspaceConns[client.WorkspaceID]; count >= maxConnectionsPerWorkspace {
				h.mu.Unlock()
				h.logger.Warn("workspace connection limit exceeded",
					"workspace_id", client.WorkspaceID,
					"max", maxConnectionsPerWorkspace,
				)
				client.Close()
				continue
			}
			h.workspaceConns[client.WorkspaceID]++
			h.clients[client] = true
			h.mu.Unlock()
			client.onRegistered()

			h.logger.Debug("client registered",
				"client_id", client.ID,
				"workspace_id", client.WorkspaceID,
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.removeClientFromAllChannels(client)
				if count := h.workspaceConns[client.WorkspaceID]; count > 1 {
					h.workspaceConns[client.WorkspaceID] = count - 1
				} else {
					delete(h.workspaceConns, client.WorkspaceID)
				}
			}
			h.mu.Unlock()
			client.onUnregistered()

			h.logger.Debug("client unregistered", "client_id", client.ID)

		case msg := <-h.broadcast:
			h.broadcastToChannel(msg)
		}
	}
}

// RegisterClient hands a new client to the hub loop.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient removes a client from the hub loop.
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Broadcast queues a message for a channel's subscribers. If the broadcast
// buffer is full the message is dropped; progress delivery is best-effort.
func (h *Hub) Broadcast(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast buffer full, dropping message", "channel", msg.Channel)
	}
}

// BroadcastEvent queues an event message for a channel.
func (h *Hub) BroadcastEvent(channel, event string, data []byte) {
	msg := NewMessage(MessageTypeEvent).
		WithChannel(channel).
		WithEvent(event).
		WithRawData(data)
	h.Broadcast(&BroadcastMessage{Channel: channel, Message: msg})
}

func (h *Hub) subscribeToChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true
}

func (h *Hub) unsubscribeFromChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.channels[channel]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) authorizeSubscription(ctx context.Context, client *Client, channel string) bool {
	if h.authorizeFn == nil {
		return true
	}
	return h.authorizeFn(ctx, client, channel)
}

func (h *Hub) broadcastToChannel(msg *BroadcastMessage) {
	h.mu.RLock()
	clients, ok := h.channels[msg.Channel]
	if !ok || len(clients) == 0 {
		h.mu.RUnlock()
		return
	}
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		if msg.WorkspaceID != "" && client.WorkspaceID != msg.WorkspaceID {
			continue
		}
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		if err := client.SendMessage(msg.Message); err != nil {
			h.logger.Debug("send to client failed",
				"client_id", client.ID,
				"channel", msg.Channel,
				"error", err,
			)
		}
	}
}

func (h *Hub) removeClientFromAllChannels(client *Client) {
	for channel, clients := range h.channels {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.channels = make(map[string]map[*Client]bool)
	h.workspaceConns = make(map[string]int)
}

// Stats reports the hub's current size, used by the health endpoint.
type Stats struct {
	Clients  int `json:"clients"`
	Channels int `json:"channels"`
}

// GetStats returns current hub statistics.
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Clients: len(h.clients), Channels: len(h.channels)}
}
