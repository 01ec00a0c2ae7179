package scan

import (
	"context"
	"time"

	"github.com/traceprint/api/pkg/domain/shared"
)

// ListFilter narrows scan listings.
type ListFilter struct {
	WorkspaceID shared.ID
	Status      Status
	Limit       int
	Offset      int
}

// Repository persists scans.
type Repository interface {
	Create(ctx context.Context, s *Scan) error
	GetByID(ctx context.Context, id shared.ID) (*Scan, error)
	Update(ctx context.Context, s *Scan) error
	List(ctx context.Context, filter ListFilter) ([]*Scan, int, error)
	// ListDueMonitors returns monitored scans whose next run is at or
	// before now.
	ListDueMonitors(ctx context.Context, now time.Time, limit int) ([]*Scan, error)
}
