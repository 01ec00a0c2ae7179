package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

const (
	dailyUsageTTL   = 48 * time.Hour
	monthlyUsageTTL = 40 * 24 * time.Hour
)

// UsageStore keeps the budget counters in Redis. INCR/INCRBY make each
// increment atomic without any coordination between concurrent dispatches.
// Keys carry a TTL comfortably past their period so stale counters expire on
// their own.
type UsageStore struct {
	client *Client
}

// NewUsageStore creates a UsageStore.
func NewUsageStore(client *Client) *UsageStore {
	return &UsageStore{client: client}
}

func dailyKey(w shared.ID, p provider.ID, day string) string {
	return fmt.Sprintf("usage:daily:%s:%s:%s", w, p, day)
}

func monthlyKey(w shared.ID, p provider.ID, month string) string {
	return fmt.Sprintf("usage:monthly:%s:%s:%s", w, p, month)
}

// IncrDailyCalls increments and returns the day's call count.
func (s *UsageStore) IncrDailyCalls(ctx context.Context, workspaceID shared.ID, providerID provider.ID, day string) (int64, error) {
	key := dailyKey(workspaceID, providerID, day)
	pipe := s.client.Client().TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, dailyUsageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr daily calls: %w", err)
	}
	return incr.Val(), nil
}

// IncrMonthlyCost increments and returns the month's accumulated cost in pence.
func (s *UsageStore) IncrMonthlyCost(ctx context.Context, workspaceID shared.ID, providerID provider.ID, month string, pence int64) (int64, error) {
	key := monthlyKey(workspaceID, providerID, month)
	pipe := s.client.Client().TxPipeline()
	incr := pipe.IncrBy(ctx, key, pence)
	pipe.Expire(ctx, key, monthlyUsageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr monthly cost: %w", err)
	}
	return incr.Val(), nil
}

// GetUsage reads both counters without modifying them. Absent keys read as
// zero.
func (s *UsageStore) GetUsage(ctx context.Context, workspaceID shared.ID, providerID provider.ID, day, month string) (int64, int64, error) {
	daily, err := s.getInt(ctx, dailyKey(workspaceID, providerID, day))
	if err != nil {
		return 0, 0, err
	}
	monthly, err := s.getInt(ctx, monthlyKey(workspaceID, providerID, month))
	if err != nil {
		return 0, 0, err
	}
	return daily, monthly, nil
}

func (s *UsageStore) getInt(ctx context.Context, key string) (int64, error) {
	v, err := s.client.Client().Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}
