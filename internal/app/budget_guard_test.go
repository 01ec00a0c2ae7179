package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceprint/api/pkg/domain/budget"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

type memPolicyRepo struct {
	mu       sync.Mutex
	policies map[string]*budget.Policy
}

func newMemPolicyRepo() *memPolicyRepo {
	return &memPolicyRepo{policies: map[string]*budget.Policy{}}
}

func policyKey(w shared.ID, p provider.ID) string { return w.String() + "/" + p.String() }

func (r *memPolicyRepo) Upsert(_ context.Context, p *budget.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[policyKey(p.WorkspaceID, p.ProviderID)] = p
	return nil
}

func (r *memPolicyRepo) Get(_ context.Context, w shared.ID, p provider.ID) (*budget.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pol, ok := r.policies[policyKey(w, p)]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "budget policy not found", shared.ErrNotFound)
	}
	return pol, nil
}

func (r *memPolicyRepo) ListByWorkspace(_ context.Context, w shared.ID) ([]*budget.Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*budget.Policy
	for _, p := range r.policies {
		if p.WorkspaceID == w {
			out = append(out, p)
		}
	}
	return out, nil
}

type memUsageStore struct {
	mu      sync.Mutex
	daily   map[string]int64
	monthly map[string]int64
	failAll bool
}

func newMemUsageStore() *memUsageStore {
	return &memUsageStore{daily: map[string]int64{}, monthly: map[string]int64{}}
}

func (s *memUsageStore) IncrDailyCalls(_ context.Context, w shared.ID, p provider.ID, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return 0, errors.New("counter store down")
	}
	k := policyKey(w, p) + "/" + day
	s.daily[k]++
	return s.daily[k], nil
}

func (s *memUsageStore) IncrMonthlyCost(_ context.Context, w shared.ID, p provider.ID, month string, pence int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return 0, errors.New("counter store down")
	}
	k := policyKey(w, p) + "/" + month
	s.monthly[k] += pence
	return s.monthly[k], nil
}

func (s *memUsageStore) GetUsage(_ context.Context, w shared.ID, p provider.ID, day, month string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daily[policyKey(w, p)+"/"+day], s.monthly[policyKey(w, p)+"/"+month], nil
}

type memAlertRepo struct {
	mu     sync.Mutex
	alerts []*budget.Alert
}

func (r *memAlertRepo) Create(_ context.Context, a *budget.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *memAlertRepo) ListByWorkspace(_ context.Context, w shared.ID, limit int) ([]*budget.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*budget.Alert
	for _, a := range r.alerts {
		if a.WorkspaceID == w {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memAlertWindow struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  time.Time
}

func newMemAlertWindow() *memAlertWindow {
	return &memAlertWindow{seen: map[string]time.Time{}, now: time.Now()}
}

func (w *memAlertWindow) MarkOnce(_ context.Context, key string, window time.Duration) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if at, ok := w.seen[key]; ok && w.now.Sub(at) < window {
		return false, nil
	}
	w.seen[key] = w.now
	return true, nil
}

type guardFixture struct {
	guard    *BudgetGuard
	policies *memPolicyRepo
	usage    *memUsageStore
	alerts   *memAlertRepo
	window   *memAlertWindow
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	f := &guardFixture{
		policies: newMemPolicyRepo(),
		usage:    newMemUsageStore(),
		alerts:   &memAlertRepo{},
		window:   newMemAlertWindow(),
	}
	f.guard = NewBudgetGuard(f.policies, f.usage, f.alerts, f.window, time.Hour, logger.NewNop())
	return f
}

func (f *guardFixture) withPolicy(t *testing.T, w shared.ID, dailyQuota int, monthlyPence int64, blockQuota, blockBudget bool) *budget.Policy {
	t.Helper()
	p, err := budget.NewPolicy(w, "breachdirectory", dailyQuota, monthlyPence)
	require.NoError(t, err)
	p.SetBlocking(blockQuota, blockBudget)
	require.NoError(t, f.policies.Upsert(context.Background(), p))
	return p
}

func TestBudgetGuard_NoPolicyAllowsAndRecords(t *testing.T) {
	f := newGuardFixture(t)
	w := shared.NewID()

	d := f.guard.CheckAndRecord(context.Background(), w, testSpec())
	assert.True(t, d.Allowed)

	usage, err := f.guard.Usage(context.Background(), w, "breachdirectory")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DailyCalls)
	assert.Equal(t, int64(2), usage.MonthlyCostPence)
}

func TestBudgetGuard_QuotaBlocks(t *testing.T) {
	f := newGuardFixture(t)
	w := shared.NewID()
	f.withPolicy(t, w, 3, 0, true, true)

	for i := 0; i < 3; i++ {
		d := f.guard.CheckAndRecord(context.Background(), w, testSpec())
		assert.True(t, d.Allowed, "call %d within quota", i+1)
	}

	d := f.guard.CheckAndRecord(context.Background(), w, testSpec())
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyQuotaExceeded, d.Reason)
	assert.Contains(t, d.Message, "daily quota")
}

func TestBudgetGuard_QuotaWarnOnly(t *testing.T) {
	f := newGuardFixture(t)
	w := shared.NewID()
	f.withPolicy(t, w, 2, 0, false, false)

	for i := 0; i < 5; i++ {
		d := f.guard.CheckAndRecord(context.Background(), w, testSpec())
		assert.True(t, d.Allowed, "unenforced quota never blocks")
	}

	alerts, err := f.alerts.ListByWorkspace(context.Background(), w, 0)
	require.NoError(t, err)
	require.NotEmpty(t, alerts, "crossing the threshold still alerts")
}

func TestBudgetGuard_BudgetBlocks(t *testing.T) {
	f := newGuardFixture(t)
	w := shared.NewID()
	// Spec costs 2p per call; 5p budget allows two calls.
	f.withPolicy(t, w, 0, 5, true, true)

	assert.True(t, f.guard.CheckAndRecord(context.Background(), w, testSpec()).Allowed)
	assert.True(t, f.guard.CheckAndRecord(context.Background(), w, testSpec()).Allowed)

	d := f.guard.CheckAndRecord(context.Background(), w, testSpec())
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyBudgetExceeded, d.Reason)
}

// When both ceilings are exceeded the quota, checked first, names the denial.
func TestBudgetGuard_QuotaCheckedBeforeBudget(t *testing.T) {
	f := newGuardFixture(t)
	w := shared.NewID()
	// One 2p call exactly exhausts both the quota and the budget.
	f.withPolicy(t, w, 1, 2, true, true)

	assert.True(t, f.guard.CheckAndRecord(context.Background(), w, testSpec()).Allowed)

	d := f.guard.CheckAndRecord(context.Background(), w, testSpec())
	assert.False(t, d.Allowed)
	assert.Equal(t, DenyQuotaExceeded, d.Reason)
}

func TestBudgetGuard_AlertOncePerWindow(t *testing.T) {
	f := newGuardFixture(t)
	w := shared.NewID()
	f.withPolicy(t, w, 10, 0, true, true)

	// 8 of 10 crosses the default 80% warn threshold; repeat calls inside
	// the window must not duplicate the alert.
	for i := 0; i < 9; i++ {
		f.guard.CheckAndRecord(context.Background(), w, testSpec())
	}

	alerts, err := f.alerts.ListByWorkspace(context.Background(), w, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, budget.AlertQuotaWarn, alerts[0].AlertType)
	assert.Equal(t, 80, alerts[0].ThresholdPct)

	// 10 of 10 is a distinct alert type (critical) and gets its own entry.
	f.guard.CheckAndRecord(context.Background(), w, testSpec())
	alerts, err = f.alerts.ListByWorkspace(context.Background(), w, 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, budget.AlertQuotaCritical, alerts[1].AlertType)
}

func TestBudgetGuard_AlertReemittedAfterWindow(t *testing.T) {
	f := newGuardFixture(t)
	w := shared.NewID()
	f.withPolicy(t, w, 10, 0, false, false)

	for i := 0; i < 8; i++ {
		f.guard.CheckAndRecord(context.Background(), w, testSpec())
	}
	f.window.now = f.window.now.Add(2 * time.Hour)
	f.guard.CheckAndRecord(context.Background(), w, testSpec())

	alerts, _ := f.alerts.ListByWorkspace(context.Background(), w, 0)
	assert.Len(t, alerts, 2)
}

func TestBudgetGuard_FailsOpenOnStoreError(t *testing.T) {
	f := newGuardFixture(t)
	w := shared.NewID()
	f.withPolicy(t, w, 1, 1, true, true)
	f.usage.failAll = true

	d := f.guard.CheckAndRecord(context.Background(), w, testSpec())
	assert.True(t, d.Allowed, "a broken counter store must not halt scanning")
}

func TestBudgetGuard_PoliciesAreScopedToWorkspace(t *testing.T) {
	f := newGuardFixture(t)
	w1, w2 := shared.NewID(), shared.NewID()
	f.withPolicy(t, w1, 1, 0, true, true)

	assert.True(t, f.guard.CheckAndRecord(context.Background(), w1, testSpec()).Allowed)
	assert.False(t, f.guard.CheckAndRecord(context.Background(), w1, testSpec()).Allowed)

	for i := 0; i < 5; i++ {
		assert.True(t, f.guard.CheckAndRecord(context.Background(), w2, testSpec()).Allowed)
	}
}
