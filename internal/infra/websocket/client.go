package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/traceprint/api/internal/metrics"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	// Must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	maxSubscriptionsPerClient = 25
)

// Client is a single websocket connection scoped to one workspace.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *logger.Logger

	ID          string
	WorkspaceID string

	subscriptions map[string]bool
	subMu         sync.RWMutex

	closed bool
	mu     sync.Mutex
}

// NewClient creates a websocket client.
func NewClient(hub *Hub, conn *websocket.Conn, workspaceID string, log *logger.Logger) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 64),
		logger:        log,
		ID:            shared.NewID().String(),
		WorkspaceID:   workspaceID,
		subscriptions: make(map[string]bool),
	}
}

func (c *Client) onRegistered() {
	metrics.WebsocketConnections.Inc()
}

func (c *Client) onUnregistered() {
	metrics.WebsocketConnections.Dec()
}

// Subscribe records a channel subscription. Returns false when already
// subscribed or at the subscription cap.
func (c *Client) Subscribe(channel string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subscriptions[channel] {
		return false
	}
	if len(c.subscriptions) >= maxSubscriptionsPerClient {
		c.logger.Warn("subscription limit exceeded",
			"client_id", c.ID,
			"max", maxSubscriptionsPerClient,
		)
		return false
	}
	c.subscriptions[channel] = true
	return true
}

// Unsubscribe removes a channel subscription.
func (c *Client) Unsubscribe(channel string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if !c.subscriptions[channel] {
		return false
	}
	delete(c.subscriptions, channel)
	return true
}

// SendMessage queues a message for delivery, dropping it if the client's
// buffer is full.
func (c *Client) SendMessage(msg *Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("client send buffer full, dropping message", "client_id", c.ID)
		return nil
	}
}

// Close closes the connection. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.send)
	c.conn.Close()
}

// ReadPump pumps inbound frames from the connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "client_id", c.ID, "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("INVALID_MESSAGE", "invalid message format", "")
			continue
		}
		c.handleMessage(&msg)
	}
}

// WritePump pumps queued messages to the connection and keeps it alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.handleSubscribe(msg)
	case MessageTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case MessageTypePing:
		c.SendMessage(NewMessage(MessageTypePong))
	default:
		c.sendError("UNKNOWN_MESSAGE_TYPE", "unknown message type: "+string(msg.Type), msg.RequestID)
	}
}

func (c *Client) handleSubscribe(msg *Message) {
	if msg.Channel == "" {
		c.sendError("INVALID_CHANNEL", "channel is required", msg.RequestID)
		return
	}
	if !c.hub.authorizeSubscription(context.Background(), c, msg.Channel) {
		c.sendError("FORBIDDEN", "access denied to channel", msg.RequestID)
		return
	}

	if c.Subscribe(msg.Channel) {
		c.hub.subscribeToChannel(c, msg.Channel)
		c.logger.Debug("client subscribed", "client_id", c.ID, "channel", msg.Channel)
	}
	c.SendMessage(NewMessage(MessageTypeSubscribed).
		WithChannel(msg.Channel).
		WithRequestID(msg.RequestID))
}

func (c *Client) handleUnsubscribe(msg *Message) {
	if msg.Channel == "" {
		c.sendError("INVALID_CHANNEL", "channel is required", msg.RequestID)
		return
	}
	if c.Unsubscribe(msg.Channel) {
		c.hub.unsubscribeFromChannel(c, msg.Channel)
		c.logger.Debug("client unsubscribed", "client_id", c.ID, "channel", msg.Channel)
	}
	c.SendMessage(NewMessage(MessageTypeUnsubscribed).
		WithChannel(msg.Channel).
		WithRequestID(msg.RequestID))
}

func (c *Client) sendError(code, message, requestID string) {
	c.SendMessage(NewMessage(MessageTypeError).
		WithData(ErrorData{Code: code, Message: message}).
		WithRequestID(requestID))
}
