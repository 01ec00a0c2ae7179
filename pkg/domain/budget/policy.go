// Package budget defines workspace-level spend controls for provider calls:
// a daily call quota and a monthly monetary budget, each with warn/critical
// alert thresholds and an independent blocking flag.
package budget

import (
	"time"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// Default thresholds applied when a policy leaves them unset.
const (
	DefaultWarnThresholdPct     = 80
	DefaultCriticalThresholdPct = 95
)

// Policy is the per workspace × provider spend configuration. It is written
// by the admin flow and only read by the scan pipeline.
type Policy struct {
	ID          shared.ID   `json:"id"`
	WorkspaceID shared.ID   `json:"workspace_id"`
	ProviderID  provider.ID `json:"provider_id"`

	DailyQuota         int   `json:"daily_quota"`
	MonthlyBudgetPence int64 `json:"monthly_budget_pence"`

	WarnThresholdPct     int `json:"warn_threshold_pct"`
	CriticalThresholdPct int `json:"critical_threshold_pct"`

	BlockOnQuotaExceeded  bool `json:"block_on_quota_exceeded"`
	BlockOnBudgetExceeded bool `json:"block_on_budget_exceeded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPolicy creates a budget policy with defaulted thresholds.
func NewPolicy(workspaceID shared.ID, providerID provider.ID, dailyQuota int, monthlyBudgetPence int64) (*Policy, error) {
	if workspaceID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "workspace id is required", shared.ErrValidation)
	}
	if providerID == "" {
		return nil, shared.NewDomainError("VALIDATION", "provider id is required", shared.ErrValidation)
	}
	if dailyQuota < 0 {
		return nil, shared.NewDomainError("VALIDATION", "daily quota must not be negative", shared.ErrValidation)
	}
	if monthlyBudgetPence < 0 {
		return nil, shared.NewDomainError("VALIDATION", "monthly budget must not be negative", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Policy{
		ID:                   shared.NewID(),
		WorkspaceID:          workspaceID,
		ProviderID:           providerID,
		DailyQuota:           dailyQuota,
		MonthlyBudgetPence:   monthlyBudgetPence,
		WarnThresholdPct:     DefaultWarnThresholdPct,
		CriticalThresholdPct: DefaultCriticalThresholdPct,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// SetThresholds overrides the warn/critical alert thresholds.
func (p *Policy) SetThresholds(warnPct, criticalPct int) error {
	if warnPct < 1 || warnPct > 100 || criticalPct < 1 || criticalPct > 100 {
		return shared.NewDomainError("VALIDATION", "thresholds must be within 1-100", shared.ErrValidation)
	}
	if warnPct > criticalPct {
		return shared.NewDomainError("VALIDATION", "warn threshold must not exceed critical threshold", shared.ErrValidation)
	}
	p.WarnThresholdPct = warnPct
	p.CriticalThresholdPct = criticalPct
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// SetBlocking sets the per-ceiling blocking flags.
func (p *Policy) SetBlocking(onQuota, onBudget bool) {
	p.BlockOnQuotaExceeded = onQuota
	p.BlockOnBudgetExceeded = onBudget
	p.UpdatedAt = time.Now().UTC()
}

// HasQuota reports whether the daily call quota is enforced at all.
func (p *Policy) HasQuota() bool { return p.DailyQuota > 0 }

// HasBudget reports whether the monthly budget is enforced at all.
func (p *Policy) HasBudget() bool { return p.MonthlyBudgetPence > 0 }

// Usage is a snapshot of the recorded counters a policy is evaluated against.
type Usage struct {
	DailyCalls       int   `json:"daily_calls"`
	MonthlyCostPence int64 `json:"monthly_cost_pence"`
}

// DayKey formats the rolling-day bucket for usage counters.
func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// MonthKey formats the rolling-month bucket for usage counters.
func MonthKey(t time.Time) string { return t.UTC().Format("2006-01") }
