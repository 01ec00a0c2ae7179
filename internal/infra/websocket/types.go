// Package websocket streams scan progress to browser clients in real time.
package websocket

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageType defines the type of a websocket message.
type MessageType string

const (
	// Client -> server
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"

	// Server -> client
	MessageTypePong         MessageType = "pong"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypeEvent        MessageType = "event"
	MessageTypeError        MessageType = "error"
)

// Message is the websocket frame structure in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType MessageType) *Message {
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithChannel sets the channel.
func (m *Message) WithChannel(channel string) *Message {
	m.Channel = channel
	return m
}

// WithEvent sets the event name.
func (m *Message) WithEvent(event string) *Message {
	m.Event = event
	return m
}

// WithData marshals and attaches the payload.
func (m *Message) WithData(data any) *Message {
	if data != nil {
		if jsonData, err := json.Marshal(data); err == nil {
			m.Data = jsonData
		}
	}
	return m
}

// WithRawData attaches an already-marshalled payload.
func (m *Message) WithRawData(data json.RawMessage) *Message {
	m.Data = data
	return m
}

// WithRequestID sets the client request correlation ID.
func (m *Message) WithRequestID(id string) *Message {
	m.RequestID = id
	return m
}

// ErrorData is the error payload sent to clients.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScanProgressChannelPrefix is the only subscribable channel family:
// scan_progress:{scanId}.
const ScanProgressChannelPrefix = "scan_progress:"

// ParseScanChannel extracts the scan ID from a scan_progress channel.
// Returns "" for any other channel shape.
func ParseScanChannel(channel string) string {
	if !strings.HasPrefix(channel, ScanProgressChannelPrefix) {
		return ""
	}
	return strings.TrimPrefix(channel, ScanProgressChannelPrefix)
}
