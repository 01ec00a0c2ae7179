package app

import (
	"context"
	"fmt"

	"github.com/traceprint/api/pkg/domain/budget"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

// BudgetService is the admin surface for budget policies and alerts. The
// enforcement path lives in BudgetGuard; this service only configures it.
type BudgetService struct {
	policies budget.PolicyRepository
	alerts   budget.AlertRepository
	guard    *BudgetGuard
	catalog  *provider.Catalog
	logger   *logger.Logger
}

// NewBudgetService creates a BudgetService.
func NewBudgetService(policies budget.PolicyRepository, alerts budget.AlertRepository, guard *BudgetGuard, catalog *provider.Catalog, log *logger.Logger) *BudgetService {
	return &BudgetService{
		policies: policies,
		alerts:   alerts,
		guard:    guard,
		catalog:  catalog,
		logger:   log.With("component", "budget_service"),
	}
}

// SetPolicyInput is one policy upsert.
type SetPolicyInput struct {
	WorkspaceID        shared.ID
	ProviderID         provider.ID
	DailyQuota         int
	MonthlyBudgetPence int64
	// Thresholds of zero keep the policy defaults.
	WarnThresholdPct      int
	CriticalThresholdPct  int
	BlockOnQuotaExceeded  bool
	BlockOnBudgetExceeded bool
}

// SetPolicy creates or replaces the policy for a workspace × provider pair.
// The provider must exist in the catalog so typos don't create dead policies.
func (s *BudgetService) SetPolicy(ctx context.Context, in SetPolicyInput) (*budget.Policy, error) {
	if _, ok := s.catalog.Get(in.ProviderID); !ok {
		return nil, shared.NewDomainError("VALIDATION",
			fmt.Sprintf("unknown provider %q", in.ProviderID), shared.ErrValidation)
	}

	p, err := budget.NewPolicy(in.WorkspaceID, in.ProviderID, in.DailyQuota, in.MonthlyBudgetPence)
	if err != nil {
		return nil, err
	}
	if in.WarnThresholdPct != 0 || in.CriticalThresholdPct != 0 {
		if err := p.SetThresholds(in.WarnThresholdPct, in.CriticalThresholdPct); err != nil {
			return nil, err
		}
	}
	p.SetBlocking(in.BlockOnQuotaExceeded, in.BlockOnBudgetExceeded)

	if err := s.policies.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("upsert policy: %w", err)
	}

	s.logger.Info("budget policy set",
		"workspace_id", p.WorkspaceID,
		"provider", p.ProviderID,
		"daily_quota", p.DailyQuota,
		"monthly_budget_pence", p.MonthlyBudgetPence,
	)
	return p, nil
}

// GetPolicy loads one policy.
func (s *BudgetService) GetPolicy(ctx context.Context, workspaceID shared.ID, providerID provider.ID) (*budget.Policy, error) {
	return s.policies.Get(ctx, workspaceID, providerID)
}

// ListPolicies lists all policies of a workspace.
func (s *BudgetService) ListPolicies(ctx context.Context, workspaceID shared.ID) ([]*budget.Policy, error) {
	return s.policies.ListByWorkspace(ctx, workspaceID)
}

// ListAlerts lists the most recent alerts of a workspace.
func (s *BudgetService) ListAlerts(ctx context.Context, workspaceID shared.ID, limit int) ([]*budget.Alert, error) {
	return s.alerts.ListByWorkspace(ctx, workspaceID, limit)
}

// Usage reports the current rolling-day and rolling-month counters for one
// workspace × provider pair.
func (s *BudgetService) Usage(ctx context.Context, workspaceID shared.ID, providerID provider.ID) (budget.Usage, error) {
	return s.guard.Usage(ctx, workspaceID, providerID)
}
