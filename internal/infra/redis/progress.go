package redis

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/traceprint/api/internal/app"
	"github.com/traceprint/api/internal/metrics"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

const (
	// progressChannelPrefix is the pub/sub channel prefix; the full channel
	// is scan_progress:{scanId}.
	progressChannelPrefix = "scan_progress:"

	// progressPattern subscribes to every scan's channel at once.
	progressPattern = progressChannelPrefix + "*"
)

// ProgressChannel returns the pub/sub channel for a scan.
func ProgressChannel(scanID string) string {
	return progressChannelPrefix + scanID
}

// ProgressMessage is the wire form of one progress event.
type ProgressMessage struct {
	ScanID  string            `json:"scan_id"`
	Event   app.ProgressEvent `json:"event"`
	Payload json.RawMessage   `json:"payload,omitempty"`
	At      int64             `json:"at"`
}

// ProgressNotifier broadcasts scan progress over Redis pub/sub and relays
// received messages to in-process consumers (the websocket hub). Publishing
// is fire and forget; a consumer that cannot keep up loses events rather
// than slowing the scan down.
type ProgressNotifier struct {
	client *Client
	logger *logger.Logger

	mu    sync.RWMutex
	hooks []func(*ProgressMessage)
}

// NewProgressNotifier creates a ProgressNotifier.
func NewProgressNotifier(client *Client, log *logger.Logger) *ProgressNotifier {
	return &ProgressNotifier{
		client: client,
		logger: log.With("component", "progress_notifier"),
	}
}

// Publish broadcasts one progress event. Failures are logged and counted,
// never returned: progress delivery must not affect scan outcomes.
func (n *ProgressNotifier) Publish(ctx context.Context, scanID shared.ID, event app.ProgressEvent, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		metrics.ProgressPublishErrors.Inc()
		n.logger.Warn("marshal progress payload failed", "scan_id", scanID, "event", event, "error", err)
		return
	}
	msg := ProgressMessage{
		ScanID:  scanID.String(),
		Event:   event,
		Payload: body,
		At:      time.Now().Unix(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		metrics.ProgressPublishErrors.Inc()
		n.logger.Warn("marshal progress message failed", "scan_id", scanID, "error", err)
		return
	}

	if err := n.client.Client().Publish(ctx, ProgressChannel(scanID.String()), data).Err(); err != nil {
		metrics.ProgressPublishErrors.Inc()
		n.logger.Warn("publish progress failed", "scan_id", scanID, "event", event, "error", err)
		return
	}
	metrics.ProgressEventsTotal.WithLabelValues(string(event)).Inc()
}

// OnMessage registers a hook invoked for every progress message received
// from the pub/sub pattern. Hooks must not block.
func (n *ProgressNotifier) OnMessage(fn func(*ProgressMessage)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hooks = append(n.hooks, fn)
}

// StartListener consumes the pub/sub pattern and feeds registered hooks
// until the context is cancelled. Call once at startup, in a goroutine.
func (n *ProgressNotifier) StartListener(ctx context.Context) {
	pubsub := n.client.Client().PSubscribe(ctx, progressPattern)
	defer pubsub.Close()

	n.logger.Info("progress listener started", "pattern", progressPattern)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("progress listener stopped")
			return
		case m, ok := <-ch:
			if !ok {
				n.logger.Warn("progress pub/sub channel closed")
				return
			}
			n.dispatch(m.Channel, []byte(m.Payload))
		}
	}
}

func (n *ProgressNotifier) dispatch(channel string, data []byte) {
	var msg ProgressMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		n.logger.Warn("drop malformed progress message", "channel", channel, "error", err)
		return
	}
	if msg.ScanID == "" {
		msg.ScanID = strings.TrimPrefix(channel, progressChannelPrefix)
	}

	n.mu.RLock()
	hooks := n.hooks
	n.mu.RUnlock()
	for _, fn := range hooks {
		fn(&msg)
	}
}
