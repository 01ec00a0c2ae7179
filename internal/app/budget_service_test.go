package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceprint/api/pkg/domain/budget"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

func newBudgetServiceFixture(t *testing.T) (*BudgetService, *memPolicyRepo, *memAlertRepo) {
	t.Helper()
	catalog, err := provider.NewCatalog(catalogSpecs())
	require.NoError(t, err)

	policies := newMemPolicyRepo()
	alerts := &memAlertRepo{}
	guard := NewBudgetGuard(policies, newMemUsageStore(), alerts, newMemAlertWindow(), time.Hour, logger.NewNop())

	return NewBudgetService(policies, alerts, guard, catalog, logger.NewNop()), policies, alerts
}

func TestBudgetService_SetPolicy(t *testing.T) {
	svc, policies, _ := newBudgetServiceFixture(t)
	ws := shared.NewID()

	p, err := svc.SetPolicy(context.Background(), SetPolicyInput{
		WorkspaceID:          ws,
		ProviderID:           "breachdirectory",
		DailyQuota:           100,
		MonthlyBudgetPence:   5000,
		BlockOnQuotaExceeded: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 100, p.DailyQuota)
	assert.Equal(t, int64(5000), p.MonthlyBudgetPence)
	assert.Equal(t, budget.DefaultWarnThresholdPct, p.WarnThresholdPct)
	assert.Equal(t, budget.DefaultCriticalThresholdPct, p.CriticalThresholdPct)
	assert.True(t, p.BlockOnQuotaExceeded)
	assert.False(t, p.BlockOnBudgetExceeded)

	stored, err := policies.Get(context.Background(), ws, "breachdirectory")
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)
}

func TestBudgetService_SetPolicy_CustomThresholds(t *testing.T) {
	svc, _, _ := newBudgetServiceFixture(t)

	p, err := svc.SetPolicy(context.Background(), SetPolicyInput{
		WorkspaceID:          shared.NewID(),
		ProviderID:           "socialscan",
		DailyQuota:           10,
		WarnThresholdPct:     50,
		CriticalThresholdPct: 75,
	})
	require.NoError(t, err)

	assert.Equal(t, 50, p.WarnThresholdPct)
	assert.Equal(t, 75, p.CriticalThresholdPct)
}

func TestBudgetService_SetPolicy_UnknownProvider(t *testing.T) {
	svc, _, _ := newBudgetServiceFixture(t)

	_, err := svc.SetPolicy(context.Background(), SetPolicyInput{
		WorkspaceID: shared.NewID(),
		ProviderID:  "nonexistent",
		DailyQuota:  10,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestBudgetService_SetPolicy_NegativeQuota(t *testing.T) {
	svc, _, _ := newBudgetServiceFixture(t)

	_, err := svc.SetPolicy(context.Background(), SetPolicyInput{
		WorkspaceID: shared.NewID(),
		ProviderID:  "breachdirectory",
		DailyQuota:  -1,
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestBudgetService_SetPolicy_ReplacesExisting(t *testing.T) {
	svc, _, _ := newBudgetServiceFixture(t)
	ws := shared.NewID()

	_, err := svc.SetPolicy(context.Background(), SetPolicyInput{
		WorkspaceID: ws,
		ProviderID:  "breachdirectory",
		DailyQuota:  100,
	})
	require.NoError(t, err)

	_, err = svc.SetPolicy(context.Background(), SetPolicyInput{
		WorkspaceID: ws,
		ProviderID:  "breachdirectory",
		DailyQuota:  50,
	})
	require.NoError(t, err)

	got, err := svc.GetPolicy(context.Background(), ws, "breachdirectory")
	require.NoError(t, err)
	assert.Equal(t, 50, got.DailyQuota)
}

func TestBudgetService_ListPolicies_ScopedToWorkspace(t *testing.T) {
	svc, _, _ := newBudgetServiceFixture(t)
	ws := shared.NewID()
	other := shared.NewID()

	for _, in := range []SetPolicyInput{
		{WorkspaceID: ws, ProviderID: "breachdirectory", DailyQuota: 10},
		{WorkspaceID: ws, ProviderID: "socialscan", DailyQuota: 20},
		{WorkspaceID: other, ProviderID: "breachdirectory", DailyQuota: 30},
	} {
		_, err := svc.SetPolicy(context.Background(), in)
		require.NoError(t, err)
	}

	got, err := svc.ListPolicies(context.Background(), ws)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestBudgetService_ListAlerts(t *testing.T) {
	svc, _, alerts := newBudgetServiceFixture(t)
	ws := shared.NewID()

	a, err := budget.NewAlert(ws, "breachdirectory", budget.AlertQuotaWarn, 80, 80, 100, "daily quota at 80%")
	require.NoError(t, err)
	require.NoError(t, alerts.Create(context.Background(), a))

	got, err := svc.ListAlerts(context.Background(), ws, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, budget.AlertQuotaWarn, got[0].AlertType)
}
