package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/traceprint/api/pkg/domain/shared"
)

// cancelFlagTTL keeps cancellation flags around long past any plausible scan
// runtime, then lets them expire.
const cancelFlagTTL = 24 * time.Hour

// CancelStore keeps per-scan cancellation flags. The flag is observed at
// provider boundaries; setting it never aborts an in-flight provider call.
type CancelStore struct {
	client *Client
}

// NewCancelStore creates a CancelStore.
func NewCancelStore(client *Client) *CancelStore {
	return &CancelStore{client: client}
}

func cancelKey(scanID shared.ID) string {
	return fmt.Sprintf("scan_cancel:%s", scanID)
}

// SetCancelled flags the scan as cancelled.
func (c *CancelStore) SetCancelled(ctx context.Context, scanID shared.ID) error {
	if err := c.client.Client().Set(ctx, cancelKey(scanID), "1", cancelFlagTTL).Err(); err != nil {
		return fmt.Errorf("set cancel flag: %w", err)
	}
	return nil
}

// IsCancelled reports whether the scan has been flagged.
func (c *CancelStore) IsCancelled(ctx context.Context, scanID shared.ID) (bool, error) {
	_, err := c.client.Client().Get(ctx, cancelKey(scanID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get cancel flag: %w", err)
	}
	return true, nil
}
