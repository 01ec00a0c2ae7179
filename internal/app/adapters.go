// Package app contains the application services: the scan orchestrator,
// the provider dispatcher, the budget guard, and the monitor scheduler.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// Adapter is the polymorphic provider capability. Every external data source
// exposes exactly this surface regardless of its own protocol, so adapters
// are swappable without touching the dispatcher. A call returns zero or more
// raw records in the provider's native shape.
type Adapter interface {
	Call(ctx context.Context, identifierType provider.IdentifierType, identifierValue string) ([]map[string]any, error)
}

// AdapterRegistry resolves adapters by provider ID.
type AdapterRegistry interface {
	Adapter(id provider.ID) (Adapter, bool)
}

// ErrProviderLimit is returned by adapters when the provider reports a rate
// or result limit; the dispatcher maps it to status limit_exceeded rather
// than failed.
var ErrProviderLimit = errors.New("provider limit exceeded")

// ProgressEvent is the type of a scan progress event.
type ProgressEvent string

// Progress event types delivered on scan_progress:{scanId}.
const (
	EventProviderUpdate ProgressEvent = "provider_update"
	EventScanComplete   ProgressEvent = "scan_complete"
	EventScanFailed     ProgressEvent = "scan_failed"
	EventScanCancelled  ProgressEvent = "scan_cancelled"
)

// ProgressPublisher broadcasts scan progress. Delivery is at-most-once and
// best-effort: implementations log failures and never return them, and the
// orchestrator never blocks on a subscriber.
type ProgressPublisher interface {
	Publish(ctx context.Context, scanID shared.ID, event ProgressEvent, payload any)
}

// UsageStore holds the budget counters. Increments must be atomic per key so
// concurrent provider dispatches never need a shared lock; the quota may
// still be overshot by up to (concurrency - 1) calls between increment and
// check, an accepted approximation.
type UsageStore interface {
	// IncrDailyCalls increments and returns the day's call count.
	IncrDailyCalls(ctx context.Context, workspaceID shared.ID, providerID provider.ID, day string) (int64, error)
	// IncrMonthlyCost increments and returns the month's accumulated cost in pence.
	IncrMonthlyCost(ctx context.Context, workspaceID shared.ID, providerID provider.ID, month string, pence int64) (int64, error)
	// GetUsage reads both counters without modifying them.
	GetUsage(ctx context.Context, workspaceID shared.ID, providerID provider.ID, day, month string) (dailyCalls int64, monthlyPence int64, err error)
}

// AlertWindow deduplicates alert emission: MarkOnce returns true at most
// once per key within the window.
type AlertWindow interface {
	MarkOnce(ctx context.Context, key string, window time.Duration) (bool, error)
}

// CancelStore tracks user-initiated cancellation flags per scan.
type CancelStore interface {
	SetCancelled(ctx context.Context, scanID shared.ID) error
	IsCancelled(ctx context.Context, scanID shared.ID) (bool, error)
}

// ScanEnqueuer queues a scan for asynchronous execution by the worker.
type ScanEnqueuer interface {
	EnqueueScan(ctx context.Context, scanID shared.ID) error
}
