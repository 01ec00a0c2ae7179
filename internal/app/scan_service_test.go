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
	"github.com/traceprint/api/pkg/domain/finding"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/scan"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

type memScanRepo struct {
	mu    sync.Mutex
	scans map[shared.ID]*scan.Scan
}

func newMemScanRepo() *memScanRepo { return &memScanRepo{scans: map[shared.ID]*scan.Scan{}} }

func (r *memScanRepo) Create(_ context.Context, s *scan.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scans[s.ID]; ok {
		return shared.NewDomainError("ALREADY_EXISTS", "scan exists", shared.ErrAlreadyExists)
	}
	cp := *s
	r.scans[s.ID] = &cp
	return nil
}

func (r *memScanRepo) GetByID(_ context.Context, id shared.ID) (*scan.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *memScanRepo) Update(_ context.Context, s *scan.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scans[s.ID]; !ok {
		return shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	cp := *s
	r.scans[s.ID] = &cp
	return nil
}

func (r *memScanRepo) List(_ context.Context, filter scan.ListFilter) ([]*scan.Scan, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scan.Scan
	for _, s := range r.scans {
		if s.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *memScanRepo) ListDueMonitors(_ context.Context, now time.Time, limit int) ([]*scan.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scan.Scan
	for _, s := range r.scans {
		if s.IsDue(now) {
			cp := *s
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type memFindingRepo struct {
	mu       sync.Mutex
	findings []*finding.Finding
}

func (r *memFindingRepo) Create(_ context.Context, f *finding.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findings = append(r.findings, f)
	return nil
}

func (r *memFindingRepo) ListByScan(_ context.Context, scanID shared.ID) ([]*finding.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*finding.Finding
	for _, f := range r.findings {
		if f.ScanID == scanID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFindingRepo) CountByScan(ctx context.Context, scanID shared.ID) (int, error) {
	fs, _ := r.ListByScan(ctx, scanID)
	return len(fs), nil
}

type memResultRepo struct {
	mu      sync.Mutex
	results []*provider.Result
	failAll bool
}

func (r *memResultRepo) Create(_ context.Context, result *provider.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errors.New("result store down")
	}
	r.results = append(r.results, result)
	return nil
}

func (r *memResultRepo) ListByScan(_ context.Context, scanID shared.ID) ([]*provider.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*provider.Result
	for _, res := range r.results {
		if res.ScanID == scanID {
			out = append(out, res)
		}
	}
	return out, nil
}

type progressRecord struct {
	scanID  shared.ID
	event   ProgressEvent
	payload any
}

type progressRecorder struct {
	mu     sync.Mutex
	events []progressRecord
}

func (p *progressRecorder) Publish(_ context.Context, scanID shared.ID, event ProgressEvent, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, progressRecord{scanID: scanID, event: event, payload: payload})
}

func (p *progressRecorder) byEvent(e ProgressEvent) []progressRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []progressRecord
	for _, r := range p.events {
		if r.event == e {
			out = append(out, r)
		}
	}
	return out
}

type memCancelStore struct {
	mu        sync.Mutex
	cancelled map[shared.ID]bool
}

func newMemCancelStore() *memCancelStore { return &memCancelStore{cancelled: map[shared.ID]bool{}} }

func (c *memCancelStore) SetCancelled(_ context.Context, scanID shared.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled[scanID] = true
	return nil
}

func (c *memCancelStore) IsCancelled(_ context.Context, scanID shared.ID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled[scanID], nil
}

type memEnqueuer struct {
	mu  sync.Mutex
	ids []shared.ID
}

func (e *memEnqueuer) EnqueueScan(_ context.Context, scanID shared.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, scanID)
	return nil
}

type serviceFixture struct {
	svc      *ScanService
	scans    *memScanRepo
	findings *memFindingRepo
	results  *memResultRepo
	progress *progressRecorder
	cancels  *memCancelStore
	enqueuer *memEnqueuer
	guard    *guardFixture
}

func catalogSpecs() []provider.Spec {
	return []provider.Spec{
		{
			ID:           "breachdirectory",
			Name:         "Breach Directory",
			RequiredTier: provider.TierFree,
			CostPence:    2,
			Timeout:      time.Second,
			Identifiers:  []provider.IdentifierType{provider.IdentifierEmail, provider.IdentifierUsername},
		},
		{
			ID:           "socialscan",
			Name:         "Social Scan",
			RequiredTier: provider.TierFree,
			CostPence:    1,
			Timeout:      time.Second,
			Identifiers:  []provider.IdentifierType{provider.IdentifierEmail, provider.IdentifierUsername},
		},
		{
			ID:           "darkfeed",
			Name:         "Dark Feed",
			RequiredTier: provider.TierPro,
			CostPence:    10,
			Timeout:      time.Second,
			Identifiers:  []provider.IdentifierType{provider.IdentifierEmail},
		},
	}
}

func newServiceFixture(t *testing.T, adapters map[provider.ID]Adapter) *serviceFixture {
	t.Helper()
	catalog, err := provider.NewCatalog(catalogSpecs())
	require.NoError(t, err)

	f := &serviceFixture{
		scans:    newMemScanRepo(),
		findings: &memFindingRepo{},
		results:  &memResultRepo{},
		progress: &progressRecorder{},
		cancels:  newMemCancelStore(),
		enqueuer: &memEnqueuer{},
		guard:    newGuardFixture(t),
	}
	dispatcher := NewDispatcher(&fakeRegistry{adapters: adapters}, map[string]string{}, logger.NewNop())
	f.svc = NewScanService(
		f.scans, f.findings, f.results, catalog, dispatcher, f.guard.guard,
		f.progress, f.cancels, f.enqueuer,
		ScanServiceConfig{MaxConcurrentProviders: 4, GlobalDeadline: 5 * time.Second},
		logger.NewNop(),
	)
	return f
}

func recordsAdapter(records ...map[string]any) Adapter {
	return adapterFunc(func(ctx context.Context, t provider.IdentifierType, v string) ([]map[string]any, error) {
		return records, nil
	})
}

func TestScanService_SubmitResolvesProviders(t *testing.T) {
	f := newServiceFixture(t, nil)

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     shared.NewID(),
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)
	assert.Equal(t, scan.StatusPending, sc.Status)
	assert.Equal(t, []provider.ID{"breachdirectory", "socialscan", "darkfeed"}, sc.RequestedProviders)
}

func TestScanService_SubmitValidatesProviders(t *testing.T) {
	f := newServiceFixture(t, nil)
	w := shared.NewID()

	_, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Providers:       []provider.ID{"nonesuch"},
		Tier:            provider.TierFree,
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	// darkfeed only handles emails.
	_, err = f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierUsername,
		IdentifierValue: "alice",
		Providers:       []provider.ID{"darkfeed"},
		Tier:            provider.TierPro,
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestScanService_SubmitEnqueues(t *testing.T) {
	f := newServiceFixture(t, nil)

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     shared.NewID(),
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Tier:            provider.TierFree,
		Enqueue:         true,
	})
	require.NoError(t, err)
	require.Len(t, f.enqueuer.ids, 1)
	assert.Equal(t, sc.ID, f.enqueuer.ids[0])
}

// One provider returns two facts, a second times out. The scan still
// completes with the two findings; the timeout shows up only in that
// provider's result row.
func TestScanService_ExecutePartialFailureStillCompletes(t *testing.T) {
	f := newServiceFixture(t, map[provider.ID]Adapter{
		"breachdirectory": recordsAdapter(
			map[string]any{"breach_name": "Acme2020", "date_compromised": "2020-01-01"},
			map[string]any{"breach_name": "MegaLeak"},
		),
		"socialscan": adapterFunc(func(ctx context.Context, it provider.IdentifierType, v string) ([]map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	w := shared.NewID()

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Providers:       []provider.ID{"breachdirectory", "socialscan"},
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Execute(context.Background(), sc.ID))

	got, results, err := f.svc.GetScan(context.Background(), w, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.FindingsCount)
	require.Len(t, results, 2)

	byProvider := map[provider.ID]*provider.Result{}
	for _, r := range results {
		byProvider[r.ProviderID] = r
	}
	assert.Equal(t, provider.StatusSuccess, byProvider["breachdirectory"].Status)
	assert.Equal(t, 2, byProvider["breachdirectory"].FindingsCount)
	assert.Equal(t, provider.StatusFailed, byProvider["socialscan"].Status)
	assert.Contains(t, byProvider["socialscan"].Message, "timed out")

	findings, err := f.svc.ListFindings(context.Background(), w, sc.ID)
	require.NoError(t, err)
	assert.Len(t, findings, 2)

	updates := f.progress.byEvent(EventProviderUpdate)
	assert.Len(t, updates, 2)
	complete := f.progress.byEvent(EventScanComplete)
	require.Len(t, complete, 1)
	payload := complete[0].payload.(scanTerminalPayload)
	assert.Equal(t, scan.StatusCompleted, payload.Status)
	assert.Equal(t, 2, payload.FindingsCount)
}

func TestScanService_ExecuteAllProvidersFailCompletesEmpty(t *testing.T) {
	f := newServiceFixture(t, map[provider.ID]Adapter{
		"breachdirectory": adapterFunc(func(ctx context.Context, it provider.IdentifierType, v string) ([]map[string]any, error) {
			return nil, errors.New("upstream 500")
		}),
		"socialscan": adapterFunc(func(ctx context.Context, it provider.IdentifierType, v string) ([]map[string]any, error) {
			return nil, ErrProviderLimit
		}),
	})
	w := shared.NewID()

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Providers:       []provider.ID{"breachdirectory", "socialscan"},
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), sc.ID))

	got, _, err := f.svc.GetScan(context.Background(), w, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCompletedEmpty, got.Status)
	assert.Equal(t, 0, got.FindingsCount)
}

func TestScanService_ExecuteTierRestrictedProvider(t *testing.T) {
	f := newServiceFixture(t, map[provider.ID]Adapter{
		"breachdirectory": recordsAdapter(map[string]any{"breach_name": "Acme2020"}),
	})
	w := shared.NewID()

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Providers:       []provider.ID{"breachdirectory", "darkfeed"},
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), sc.ID))

	_, results, err := f.svc.GetScan(context.Background(), w, sc.ID)
	require.NoError(t, err)
	byProvider := map[provider.ID]*provider.Result{}
	for _, r := range results {
		byProvider[r.ProviderID] = r
	}
	assert.Equal(t, provider.StatusTierRestricted, byProvider["darkfeed"].Status)
	assert.Equal(t, provider.StatusSuccess, byProvider["breachdirectory"].Status)
}

func TestScanService_ExecuteCancelledBeforeStart(t *testing.T) {
	called := false
	f := newServiceFixture(t, map[provider.ID]Adapter{
		"breachdirectory": adapterFunc(func(ctx context.Context, it provider.IdentifierType, v string) ([]map[string]any, error) {
			called = true
			return nil, nil
		}),
	})
	w := shared.NewID()

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Providers:       []provider.ID{"breachdirectory"},
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)
	require.NoError(t, f.cancels.SetCancelled(context.Background(), sc.ID))

	require.NoError(t, f.svc.Execute(context.Background(), sc.ID))

	got, results, err := f.svc.GetScan(context.Background(), w, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCancelled, got.Status)
	assert.Empty(t, results)
	assert.False(t, called, "no provider may be dispatched after cancellation")
	assert.Len(t, f.progress.byEvent(EventScanCancelled), 1)
}

func TestScanService_CancelPendingScan(t *testing.T) {
	f := newServiceFixture(t, nil)
	w := shared.NewID()

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), w, sc.ID)
	require.NoError(t, err)

	got, _, err := f.svc.GetScan(context.Background(), w, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCancelled, got.Status)

	// A second cancel conflicts.
	_, err = f.svc.Cancel(context.Background(), w, sc.ID)
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}

func TestScanService_CancelIsWorkspaceScoped(t *testing.T) {
	f := newServiceFixture(t, nil)
	w := shared.NewID()

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), shared.NewID(), sc.ID)
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

// A provider denied by the budget guard leaves no result row; the rest of
// the scan proceeds.
func TestScanService_ExecuteBudgetDenied(t *testing.T) {
	f := newServiceFixture(t, map[provider.ID]Adapter{
		"breachdirectory": recordsAdapter(map[string]any{"breach_name": "Acme2020"}),
		"socialscan":      recordsAdapter(map[string]any{"platform": "github", "username": "alice"}),
	})
	w := shared.NewID()

	// Exhaust the 1p monthly budget so breachdirectory (2p) is denied.
	f.guard.withPolicy(t, w, 0, 1, true, true)
	_, err := f.guard.usage.IncrMonthlyCost(context.Background(), w, "breachdirectory",
		budget.MonthKey(time.Now().UTC()), 2)
	require.NoError(t, err)

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Providers:       []provider.ID{"breachdirectory", "socialscan"},
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), sc.ID))

	got, results, err := f.svc.GetScan(context.Background(), w, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCompleted, got.Status)
	require.Len(t, results, 1, "denied provider leaves no result row")
	assert.Equal(t, provider.ID("socialscan"), results[0].ProviderID)
	assert.Equal(t, 1, got.FindingsCount)
}

func TestScanService_ExecuteTerminalScanIsNoop(t *testing.T) {
	f := newServiceFixture(t, map[provider.ID]Adapter{
		"breachdirectory": recordsAdapter(map[string]any{"breach_name": "Acme2020"}),
	})
	w := shared.NewID()

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Providers:       []provider.ID{"breachdirectory"},
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Execute(context.Background(), sc.ID))
	require.NoError(t, f.svc.Execute(context.Background(), sc.ID))

	_, results, err := f.svc.GetScan(context.Background(), w, sc.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1, "duplicate delivery must not re-dispatch")
}

func TestScanService_ExecuteFailsWhenNothingPersists(t *testing.T) {
	f := newServiceFixture(t, map[provider.ID]Adapter{
		"breachdirectory": recordsAdapter(map[string]any{"breach_name": "Acme2020"}),
	})
	f.results.failAll = true
	w := shared.NewID()

	sc, err := f.svc.Submit(context.Background(), SubmitScanInput{
		WorkspaceID:     w,
		IdentifierType:  provider.IdentifierEmail,
		IdentifierValue: "alice@example.com",
		Providers:       []provider.ID{"breachdirectory"},
		Tier:            provider.TierFree,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Execute(context.Background(), sc.ID))

	got, _, err := f.svc.GetScan(context.Background(), w, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusFailed, got.Status)
	assert.Len(t, f.progress.byEvent(EventScanFailed), 1)
}
