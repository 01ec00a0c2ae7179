package provider

import (
	"context"
	"time"

	"github.com/traceprint/api/pkg/domain/shared"
)

// Status is the closed outcome taxonomy for one provider call.
// Every dispatched provider terminates in exactly one of these states.
type Status string

const (
	// StatusSuccess means the provider was called and responded usably,
	// including an empty result set.
	StatusSuccess Status = "success"
	// StatusFailed means the call errored, timed out, or returned an
	// unparseable response.
	StatusFailed Status = "failed"
	// StatusSkipped means the orchestrator chose not to call the provider,
	// e.g. because the scan was cancelled before dispatch.
	StatusSkipped Status = "skipped"
	// StatusNotConfigured means the provider's credential is absent; no
	// network call was made.
	StatusNotConfigured Status = "not_configured"
	// StatusTierRestricted means the user's tier does not entitle this
	// provider; no network call was made.
	StatusTierRestricted Status = "tier_restricted"
	// StatusLimitExceeded means a provider-side rate or result limit was hit.
	StatusLimitExceeded Status = "limit_exceeded"
)

// IsValid reports whether the status is a member of the closed taxonomy.
func (s Status) IsValid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped,
		StatusNotConfigured, StatusTierRestricted, StatusLimitExceeded:
		return true
	default:
		return false
	}
}

// Result is the per-provider outcome record for one scan.
// Written once when the provider call completes; never mutated.
type Result struct {
	ID            shared.ID `json:"id"`
	ScanID        shared.ID `json:"scan_id"`
	WorkspaceID   shared.ID `json:"workspace_id"`
	ProviderID    ID        `json:"provider_id"`
	Status        Status    `json:"status"`
	FindingsCount int       `json:"findings_count"`
	LatencyMs     int64     `json:"latency_ms"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewResult creates a provider result.
func NewResult(scanID, workspaceID shared.ID, providerID ID, status Status) (*Result, error) {
	if scanID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "scan id is required", shared.ErrValidation)
	}
	if providerID == "" {
		return nil, shared.NewDomainError("VALIDATION", "provider id is required", shared.ErrValidation)
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid provider status", shared.ErrValidation)
	}
	return &Result{
		ID:          shared.NewID(),
		ScanID:      scanID,
		WorkspaceID: workspaceID,
		ProviderID:  providerID,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// WithLatency sets the observed call latency.
func (r *Result) WithLatency(d time.Duration) *Result {
	r.LatencyMs = d.Milliseconds()
	return r
}

// WithMessage sets the operator-facing message.
func (r *Result) WithMessage(msg string) *Result {
	r.Message = msg
	return r
}

// WithFindings sets the number of findings the call produced.
func (r *Result) WithFindings(n int) *Result {
	r.FindingsCount = n
	return r
}

// ResultRepository persists provider results. Each provider writes its own
// row keyed by (scan, provider); concurrent appends from sibling providers
// must not contend.
type ResultRepository interface {
	Create(ctx context.Context, result *Result) error
	ListByScan(ctx context.Context, scanID shared.ID) ([]*Result, error)
}
