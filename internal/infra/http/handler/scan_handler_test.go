package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traceprint/api/internal/app"
	"github.com/traceprint/api/internal/infra/http/middleware"
	"github.com/traceprint/api/pkg/domain/budget"
	"github.com/traceprint/api/pkg/domain/finding"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/scan"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
	pkgvalidator "github.com/traceprint/api/pkg/validator"
)

type stubScanRepo struct {
	scans map[shared.ID]*scan.Scan
}

func (r *stubScanRepo) Create(_ context.Context, s *scan.Scan) error {
	r.scans[s.ID] = s
	return nil
}

func (r *stubScanRepo) GetByID(_ context.Context, id shared.ID) (*scan.Scan, error) {
	s, ok := r.scans[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	return s, nil
}

func (r *stubScanRepo) Update(_ context.Context, s *scan.Scan) error {
	r.scans[s.ID] = s
	return nil
}

func (r *stubScanRepo) List(_ context.Context, _ scan.ListFilter) ([]*scan.Scan, int, error) {
	return nil, 0, nil
}

func (r *stubScanRepo) ListDueMonitors(_ context.Context, _ time.Time, _ int) ([]*scan.Scan, error) {
	return nil, nil
}

type stubFindingRepo struct{}

func (stubFindingRepo) Create(context.Context, *finding.Finding) error { return nil }

func (stubFindingRepo) ListByScan(context.Context, shared.ID) ([]*finding.Finding, error) {
	return nil, nil
}

func (stubFindingRepo) CountByScan(context.Context, shared.ID) (int, error) { return 0, nil }

type stubResultRepo struct {
	results map[shared.ID][]*provider.Result
}

func (r *stubResultRepo) Create(_ context.Context, res *provider.Result) error {
	r.results[res.ScanID] = append(r.results[res.ScanID], res)
	return nil
}

func (r *stubResultRepo) ListByScan(_ context.Context, scanID shared.ID) ([]*provider.Result, error) {
	return r.results[scanID], nil
}

type stubRegistry struct{}

func (stubRegistry) Adapter(provider.ID) (app.Adapter, bool) { return nil, false }

type stubPolicyRepo struct{}

func (stubPolicyRepo) Upsert(context.Context, *budget.Policy) error { return nil }

func (stubPolicyRepo) Get(context.Context, shared.ID, provider.ID) (*budget.Policy, error) {
	return nil, shared.NewDomainError("NOT_FOUND", "budget policy not found", shared.ErrNotFound)
}

func (stubPolicyRepo) ListByWorkspace(context.Context, shared.ID) ([]*budget.Policy, error) {
	return nil, nil
}

type stubUsageStore struct{}

func (stubUsageStore) IncrDailyCalls(context.Context, shared.ID, provider.ID, string) (int64, error) {
	return 0, nil
}

func (stubUsageStore) IncrMonthlyCost(context.Context, shared.ID, provider.ID, string, int64) (int64, error) {
	return 0, nil
}

func (stubUsageStore) GetUsage(context.Context, shared.ID, provider.ID, string, string) (int64, int64, error) {
	return 0, 0, nil
}

type stubAlertRepo struct{}

func (stubAlertRepo) Create(context.Context, *budget.Alert) error { return nil }

func (stubAlertRepo) ListByWorkspace(context.Context, shared.ID, int) ([]*budget.Alert, error) {
	return nil, nil
}

type stubAlertWindow struct{}

func (stubAlertWindow) MarkOnce(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

type noopProgress struct{}

func (noopProgress) Publish(context.Context, shared.ID, app.ProgressEvent, any) {}

type noopCancelStore struct{}

func (noopCancelStore) SetCancelled(context.Context, shared.ID) error { return nil }

func (noopCancelStore) IsCancelled(context.Context, shared.ID) (bool, error) { return false, nil }

type noopEnqueuer struct{}

func (noopEnqueuer) EnqueueScan(context.Context, shared.ID) error { return nil }

type scanHandlerFixture struct {
	scans   *stubScanRepo
	results *stubResultRepo
	router  *chi.Mux
}

func newScanHandlerFixture(t *testing.T) *scanHandlerFixture {
	t.Helper()

	catalog, err := provider.NewCatalog([]provider.Spec{
		{ID: "breachdirectory", Name: "Breach Directory", RequiredTier: provider.TierFree, CostPence: 2, Timeout: time.Second, Identifiers: []provider.IdentifierType{provider.IdentifierEmail}},
		{ID: "socialscan", Name: "Social Scan", RequiredTier: provider.TierFree, CostPence: 1, Timeout: time.Second, Identifiers: []provider.IdentifierType{provider.IdentifierEmail}},
	})
	require.NoError(t, err)

	log := logger.NewNop()
	scans := &stubScanRepo{scans: map[shared.ID]*scan.Scan{}}
	results := &stubResultRepo{results: map[shared.ID][]*provider.Result{}}

	guard := app.NewBudgetGuard(stubPolicyRepo{}, stubUsageStore{}, stubAlertRepo{}, stubAlertWindow{}, time.Hour, log)
	dispatcher := app.NewDispatcher(stubRegistry{}, nil, log)

	svc := app.NewScanService(scans, stubFindingRepo{}, results, catalog, dispatcher, guard,
		noopProgress{}, noopCancelStore{}, noopEnqueuer{}, app.ScanServiceConfig{}, log)

	h := NewScanHandler(svc, pkgvalidator.New(), 3)

	router := chi.NewRouter()
	router.Get("/scans/{scanID}", h.Get)

	return &scanHandlerFixture{scans: scans, results: results, router: router}
}

func (f *scanHandlerFixture) get(t *testing.T, ws shared.ID, scanID shared.ID) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/scans/"+scanID.String(), nil)
	ctx := context.WithValue(req.Context(), middleware.WorkspaceIDKey, ws.String())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func (f *scanHandlerFixture) storeScan(t *testing.T, ws shared.ID, providers []provider.ID) *scan.Scan {
	t.Helper()
	sc, err := scan.New(shared.ID{}, ws, provider.IdentifierEmail, "person@example.com", providers, provider.TierFree)
	require.NoError(t, err)
	require.NoError(t, f.scans.Create(context.Background(), sc))
	return sc
}

type getScanBody struct {
	Scan    *scan.Scan         `json:"scan"`
	State   scan.Status        `json:"state"`
	Results []*provider.Result `json:"results"`
}

func TestScanHandler_Get_StatePendingBeforeResults(t *testing.T) {
	f := newScanHandlerFixture(t)
	ws := shared.NewID()
	sc := f.storeScan(t, ws, []provider.ID{"breachdirectory", "socialscan"})

	rec := f.get(t, ws, sc.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var body getScanBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, scan.StatusPending, body.Scan.Status)
	assert.Equal(t, scan.StatusPending, body.State)
}

func TestScanHandler_Get_StateRunningWithPartialResults(t *testing.T) {
	f := newScanHandlerFixture(t)
	ws := shared.NewID()
	sc := f.storeScan(t, ws, []provider.ID{"breachdirectory", "socialscan"})

	res, err := provider.NewResult(sc.ID, ws, "breachdirectory", provider.StatusSuccess)
	require.NoError(t, err)
	require.NoError(t, f.results.Create(context.Background(), res))

	rec := f.get(t, ws, sc.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var body getScanBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, scan.StatusPending, body.Scan.Status, "stored status is untouched")
	assert.Equal(t, scan.StatusRunning, body.State, "partial results derive a running state")
	require.Len(t, body.Results, 1)
}

func TestScanHandler_Get_StateEchoesTerminalStatus(t *testing.T) {
	f := newScanHandlerFixture(t)
	ws := shared.NewID()
	sc := f.storeScan(t, ws, []provider.ID{"breachdirectory"})
	require.NoError(t, sc.Start())
	require.NoError(t, sc.Complete(3))
	require.NoError(t, f.scans.Update(context.Background(), sc))

	rec := f.get(t, ws, sc.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var body getScanBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, scan.StatusCompleted, body.State)
}

func TestScanHandler_Get_CrossWorkspaceNotFound(t *testing.T) {
	f := newScanHandlerFixture(t)
	owner := shared.NewID()
	sc := f.storeScan(t, owner, []provider.ID{"breachdirectory"})

	rec := f.get(t, shared.NewID(), sc.ID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
