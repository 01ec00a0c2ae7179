package budget

import (
	"context"
	"time"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// AlertType identifies which ceiling and threshold an alert reports.
type AlertType string

const (
	AlertQuotaWarn      AlertType = "quota_warn"
	AlertQuotaCritical  AlertType = "quota_critical"
	AlertBudgetWarn     AlertType = "budget_warn"
	AlertBudgetCritical AlertType = "budget_critical"
)

// IsValid reports whether the alert type is known.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertQuotaWarn, AlertQuotaCritical, AlertBudgetWarn, AlertBudgetCritical:
		return true
	default:
		return false
	}
}

// Alert is one threshold-crossing event, consumed by billing/ops dashboards.
// At most one alert per (workspace, provider, alert type) is emitted per
// rolling hour.
type Alert struct {
	ID           shared.ID      `json:"id"`
	WorkspaceID  shared.ID      `json:"workspace_id"`
	ProviderID   provider.ID    `json:"provider_id"`
	AlertType    AlertType      `json:"alert_type"`
	ThresholdPct int            `json:"threshold_pct"`
	CurrentUsage int64          `json:"current_usage"`
	LimitValue   int64          `json:"limit_value"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewAlert creates a budget alert record.
func NewAlert(workspaceID shared.ID, providerID provider.ID, alertType AlertType, thresholdPct int, currentUsage, limitValue int64, message string) (*Alert, error) {
	if workspaceID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "workspace id is required", shared.ErrValidation)
	}
	if providerID == "" {
		return nil, shared.NewDomainError("VALIDATION", "provider id is required", shared.ErrValidation)
	}
	if !alertType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid alert type", shared.ErrValidation)
	}
	return &Alert{
		ID:           shared.NewID(),
		WorkspaceID:  workspaceID,
		ProviderID:   providerID,
		AlertType:    alertType,
		ThresholdPct: thresholdPct,
		CurrentUsage: currentUsage,
		LimitValue:   limitValue,
		Message:      message,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// PolicyRepository persists budget policies.
type PolicyRepository interface {
	Upsert(ctx context.Context, p *Policy) error
	Get(ctx context.Context, workspaceID shared.ID, providerID provider.ID) (*Policy, error)
	ListByWorkspace(ctx context.Context, workspaceID shared.ID) ([]*Policy, error)
}

// AlertRepository persists budget alerts, append-only.
type AlertRepository interface {
	Create(ctx context.Context, a *Alert) error
	ListByWorkspace(ctx context.Context, workspaceID shared.ID, limit int) ([]*Alert, error)
}
