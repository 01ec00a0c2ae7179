package redis

import (
	"context"
	"fmt"
	"time"
)

// AlertWindow deduplicates budget alerts with SET NX EX: the first caller in
// a window claims the key, everyone else sees it already set.
type AlertWindow struct {
	client *Client
}

// NewAlertWindow creates an AlertWindow.
func NewAlertWindow(client *Client) *AlertWindow {
	return &AlertWindow{client: client}
}

// MarkOnce returns true for the first call on key within the window.
func (w *AlertWindow) MarkOnce(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := w.client.Client().SetNX(ctx, key, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("mark alert window: %w", err)
	}
	return ok, nil
}
