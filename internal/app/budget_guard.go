package app

import (
	"context"
	"fmt"
	"time"

	"github.com/traceprint/api/internal/metrics"
	"github.com/traceprint/api/pkg/domain/budget"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

// DenyReason names the ceiling that blocked a provider call.
type DenyReason string

const (
	DenyQuotaExceeded  DenyReason = "quota_exceeded"
	DenyBudgetExceeded DenyReason = "budget_exceeded"
)

// Decision is the budget guard's verdict for one provider call.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Message string
}

// Allow is the permissive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny blocks the call with the given reason.
func Deny(reason DenyReason, message string) Decision {
	return Decision{Allowed: false, Reason: reason, Message: message}
}

// BudgetGuard enforces workspace spend ceilings before each provider call:
// a daily call quota and a monthly monetary budget, each independently
// configured to warn or block. Counter increments are atomic per key, not
// transactional with the subsequent provider call, so concurrent dispatches
// can overshoot a ceiling by at most the concurrency level minus one.
type BudgetGuard struct {
	policies    budget.PolicyRepository
	usage       UsageStore
	alerts      budget.AlertRepository
	window      AlertWindow
	alertWindow time.Duration
	now         func() time.Time
	logger      *logger.Logger
}

// NewBudgetGuard creates a BudgetGuard.
func NewBudgetGuard(policies budget.PolicyRepository, usage UsageStore, alerts budget.AlertRepository, window AlertWindow, alertWindow time.Duration, log *logger.Logger) *BudgetGuard {
	if alertWindow <= 0 {
		alertWindow = time.Hour
	}
	return &BudgetGuard{
		policies:    policies,
		usage:       usage,
		alerts:      alerts,
		window:      window,
		alertWindow: alertWindow,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      log.With("component", "budget_guard"),
	}
}

// SetClock overrides the guard's clock. Test hook.
func (g *BudgetGuard) SetClock(now func() time.Time) { g.now = now }

// CheckAndRecord records one projected provider call against the workspace
// counters and decides whether the call may proceed. The quota ceiling is
// evaluated before the budget ceiling; the first ceiling that is both
// exceeded and configured to block wins. Infrastructure failures fail open:
// a broken counter store must not halt scanning.
func (g *BudgetGuard) CheckAndRecord(ctx context.Context, workspaceID shared.ID, spec provider.Spec) Decision {
	policy, err := g.policies.Get(ctx, workspaceID, spec.ID)
	if err != nil {
		if !shared.IsNotFound(err) {
			g.logger.Warn("budget policy lookup failed, allowing call",
				"workspace_id", workspaceID,
				"provider", spec.ID,
				"error", err,
			)
		}
		// No policy means no ceilings; usage is still recorded so a policy
		// added later sees accurate history.
		g.record(ctx, workspaceID, spec)
		return Allow()
	}

	daily, monthly := g.record(ctx, workspaceID, spec)

	if policy.HasQuota() {
		if d := g.checkQuota(ctx, policy, daily); !d.Allowed {
			metrics.BudgetDenialsTotal.WithLabelValues(workspaceID.String(), spec.ID.String(), string(d.Reason)).Inc()
			return d
		}
	}

	if policy.HasBudget() {
		if d := g.checkBudget(ctx, policy, monthly); !d.Allowed {
			metrics.BudgetDenialsTotal.WithLabelValues(workspaceID.String(), spec.ID.String(), string(d.Reason)).Inc()
			return d
		}
	}

	return Allow()
}

func (g *BudgetGuard) record(ctx context.Context, workspaceID shared.ID, spec provider.Spec) (daily, monthly int64) {
	now := g.now()

	daily, err := g.usage.IncrDailyCalls(ctx, workspaceID, spec.ID, budget.DayKey(now))
	if err != nil {
		g.logger.Warn("daily usage increment failed",
			"workspace_id", workspaceID,
			"provider", spec.ID,
			"error", err,
		)
	}

	monthly, err = g.usage.IncrMonthlyCost(ctx, workspaceID, spec.ID, budget.MonthKey(now), spec.CostPence)
	if err != nil {
		g.logger.Warn("monthly cost increment failed",
			"workspace_id", workspaceID,
			"provider", spec.ID,
			"error", err,
		)
	}
	return daily, monthly
}

func (g *BudgetGuard) checkQuota(ctx context.Context, policy *budget.Policy, daily int64) Decision {
	limit := int64(policy.DailyQuota)
	pct := daily * 100 / limit

	switch {
	case pct >= int64(policy.CriticalThresholdPct):
		g.emitAlert(ctx, policy, budget.AlertQuotaCritical, policy.CriticalThresholdPct, daily, limit,
			fmt.Sprintf("daily call quota at %d%% (%d of %d)", pct, daily, limit))
	case pct >= int64(policy.WarnThresholdPct):
		g.emitAlert(ctx, policy, budget.AlertQuotaWarn, policy.WarnThresholdPct, daily, limit,
			fmt.Sprintf("daily call quota at %d%% (%d of %d)", pct, daily, limit))
	}

	if daily > limit && policy.BlockOnQuotaExceeded {
		return Deny(DenyQuotaExceeded,
			fmt.Sprintf("daily quota of %d calls exceeded for %s", limit, policy.ProviderID))
	}
	return Allow()
}

func (g *BudgetGuard) checkBudget(ctx context.Context, policy *budget.Policy, monthlyPence int64) Decision {
	limit := policy.MonthlyBudgetPence
	pct := monthlyPence * 100 / limit

	switch {
	case pct >= int64(policy.CriticalThresholdPct):
		g.emitAlert(ctx, policy, budget.AlertBudgetCritical, policy.CriticalThresholdPct, monthlyPence, limit,
			fmt.Sprintf("monthly budget at %d%% (%dp of %dp)", pct, monthlyPence, limit))
	case pct >= int64(policy.WarnThresholdPct):
		g.emitAlert(ctx, policy, budget.AlertBudgetWarn, policy.WarnThresholdPct, monthlyPence, limit,
			fmt.Sprintf("monthly budget at %d%% (%dp of %dp)", pct, monthlyPence, limit))
	}

	if monthlyPence > limit && policy.BlockOnBudgetExceeded {
		return Deny(DenyBudgetExceeded,
			fmt.Sprintf("monthly budget of %dp exceeded for %s", limit, policy.ProviderID))
	}
	return Allow()
}

// emitAlert records a threshold-crossing alert, at most once per
// (workspace, provider, alert type) within the rolling window.
func (g *BudgetGuard) emitAlert(ctx context.Context, policy *budget.Policy, alertType budget.AlertType, thresholdPct int, current, limit int64, message string) {
	key := fmt.Sprintf("budget_alert:%s:%s:%s", policy.WorkspaceID, policy.ProviderID, alertType)
	first, err := g.window.MarkOnce(ctx, key, g.alertWindow)
	if err != nil {
		g.logger.Warn("alert window check failed", "key", key, "error", err)
		return
	}
	if !first {
		return
	}

	alert, err := budget.NewAlert(policy.WorkspaceID, policy.ProviderID, alertType, thresholdPct, current, limit, message)
	if err != nil {
		g.logger.Error("building budget alert failed", "error", err)
		return
	}
	alert.Metadata = map[string]any{
		"window": g.alertWindow.String(),
	}

	if err := g.alerts.Create(ctx, alert); err != nil {
		g.logger.Warn("persisting budget alert failed",
			"workspace_id", policy.WorkspaceID,
			"provider", policy.ProviderID,
			"alert_type", alertType,
			"error", err,
		)
		return
	}

	metrics.BudgetAlertsTotal.WithLabelValues(policy.WorkspaceID.String(), policy.ProviderID.String(), string(alertType)).Inc()
	g.logger.Info("budget alert emitted",
		"workspace_id", policy.WorkspaceID,
		"provider", policy.ProviderID,
		"alert_type", alertType,
		"threshold_pct", thresholdPct,
	)
}

// Usage reads the current counters for a workspace × provider.
func (g *BudgetGuard) Usage(ctx context.Context, workspaceID shared.ID, providerID provider.ID) (budget.Usage, error) {
	now := g.now()
	daily, monthly, err := g.usage.GetUsage(ctx, workspaceID, providerID, budget.DayKey(now), budget.MonthKey(now))
	if err != nil {
		return budget.Usage{}, fmt.Errorf("read usage: %w", err)
	}
	return budget.Usage{DailyCalls: int(daily), MonthlyCostPence: monthly}, nil
}
