package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/traceprint/api/internal/metrics"
	"github.com/traceprint/api/pkg/domain/finding"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/scan"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

// ScanServiceConfig tunes the orchestrator.
type ScanServiceConfig struct {
	// MaxConcurrentProviders caps the provider fan-out per scan.
	MaxConcurrentProviders int
	// GlobalDeadline bounds one whole scan end to end.
	GlobalDeadline time.Duration
}

func (c ScanServiceConfig) withDefaults() ScanServiceConfig {
	if c.MaxConcurrentProviders <= 0 {
		c.MaxConcurrentProviders = 8
	}
	if c.GlobalDeadline <= 0 {
		c.GlobalDeadline = 5 * time.Minute
	}
	return c
}

// ScanService orchestrates scans: it accepts submissions, fans out provider
// calls, aggregates findings, and drives the scan through its lifecycle.
type ScanService struct {
	scans      scan.Repository
	findings   finding.Repository
	results    provider.ResultRepository
	catalog    *provider.Catalog
	dispatcher *Dispatcher
	guard      *BudgetGuard
	progress   ProgressPublisher
	cancels    CancelStore
	enqueuer   ScanEnqueuer
	cfg        ScanServiceConfig
	logger     *logger.Logger
}

// NewScanService creates a ScanService.
func NewScanService(
	scans scan.Repository,
	findings finding.Repository,
	results provider.ResultRepository,
	catalog *provider.Catalog,
	dispatcher *Dispatcher,
	guard *BudgetGuard,
	progress ProgressPublisher,
	cancels CancelStore,
	enqueuer ScanEnqueuer,
	cfg ScanServiceConfig,
	log *logger.Logger,
) *ScanService {
	return &ScanService{
		scans:      scans,
		findings:   findings,
		results:    results,
		catalog:    catalog,
		dispatcher: dispatcher,
		guard:      guard,
		progress:   progress,
		cancels:    cancels,
		enqueuer:   enqueuer,
		cfg:        cfg.withDefaults(),
		logger:     log.With("component", "scan_service"),
	}
}

// SubmitScanInput is one scan submission.
type SubmitScanInput struct {
	WorkspaceID     shared.ID
	IdentifierType  provider.IdentifierType
	IdentifierValue string
	// Providers optionally restricts the scan; empty means every catalog
	// provider that supports the identifier type.
	Providers    []provider.ID
	Tier         provider.Tier
	ScheduleType scan.ScheduleType
	ScheduleCron string
	// Enqueue controls whether the scan is queued for the worker. Callers
	// running the scan synchronously leave it false and call Execute.
	Enqueue bool
}

// Submit validates and persists a new pending scan.
func (s *ScanService) Submit(ctx context.Context, in SubmitScanInput) (*scan.Scan, error) {
	providers, err := s.resolveProviders(in.IdentifierType, in.Providers)
	if err != nil {
		return nil, err
	}

	sc, err := scan.New(shared.ID{}, in.WorkspaceID, in.IdentifierType, in.IdentifierValue, providers, in.Tier)
	if err != nil {
		return nil, err
	}
	if in.ScheduleType != "" && in.ScheduleType != scan.ScheduleNone {
		if err := sc.SetSchedule(in.ScheduleType, in.ScheduleCron); err != nil {
			return nil, err
		}
	}

	if err := s.scans.Create(ctx, sc); err != nil {
		return nil, fmt.Errorf("create scan: %w", err)
	}

	s.logger.Info("scan submitted",
		"scan_id", sc.ID,
		"workspace_id", sc.WorkspaceID,
		"identifier_type", sc.IdentifierType,
		"providers", len(providers),
	)

	if in.Enqueue {
		if err := s.enqueuer.EnqueueScan(ctx, sc.ID); err != nil {
			// The scan stays pending; a requeue sweep or manual retry can
			// pick it up.
			s.logger.Error("enqueue scan failed", "scan_id", sc.ID, "error", err)
			return sc, fmt.Errorf("enqueue scan: %w", err)
		}
	}
	return sc, nil
}

// resolveProviders expands an empty provider list to every catalog provider
// supporting the identifier type, and validates an explicit list against the
// catalog.
func (s *ScanService) resolveProviders(t provider.IdentifierType, requested []provider.ID) ([]provider.ID, error) {
	if len(requested) == 0 {
		specs := s.catalog.ForIdentifier(t)
		if len(specs) == 0 {
			return nil, shared.NewDomainError("VALIDATION",
				fmt.Sprintf("no providers support identifier type %q", t), shared.ErrValidation)
		}
		ids := make([]provider.ID, len(specs))
		for i, sp := range specs {
			ids[i] = sp.ID
		}
		return ids, nil
	}

	seen := make(map[provider.ID]struct{}, len(requested))
	out := make([]provider.ID, 0, len(requested))
	for _, id := range requested {
		sp, ok := s.catalog.Get(id)
		if !ok {
			return nil, shared.NewDomainError("VALIDATION",
				fmt.Sprintf("unknown provider %q", id), shared.ErrValidation)
		}
		if !sp.Supports(t) {
			return nil, shared.NewDomainError("VALIDATION",
				fmt.Sprintf("provider %q does not support identifier type %q", id, t), shared.ErrValidation)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// providerUpdatePayload is the per-provider progress event body.
type providerUpdatePayload struct {
	Provider      provider.ID     `json:"provider"`
	Status        provider.Status `json:"status,omitempty"`
	FindingsCount int             `json:"findings_count"`
	Message       string          `json:"message,omitempty"`
	Denied        bool            `json:"denied,omitempty"`
	Completed     int             `json:"completed"`
	Total         int             `json:"total"`
}

// scanTerminalPayload is the terminal progress event body.
type scanTerminalPayload struct {
	Status        scan.Status `json:"status"`
	FindingsCount int         `json:"findings_count"`
	Error         string      `json:"error,omitempty"`
}

// Enqueue queues a submitted scan for the worker. Used when the caller
// decides after submission that the scan runs asynchronously.
func (s *ScanService) Enqueue(ctx context.Context, scanID shared.ID) error {
	if err := s.enqueuer.EnqueueScan(ctx, scanID); err != nil {
		s.logger.Error("enqueue scan failed", "scan_id", scanID, "error", err)
		return fmt.Errorf("enqueue scan: %w", err)
	}
	return nil
}

// Execute runs one scan to a terminal state. It is safe to call on an
// already-terminal scan (a duplicate queue delivery is a no-op).
func (s *ScanService) Execute(ctx context.Context, scanID shared.ID) error {
	sc, err := s.scans.GetByID(ctx, scanID)
	if err != nil {
		return fmt.Errorf("load scan: %w", err)
	}
	if sc.Status.IsTerminal() {
		s.logger.Debug("scan already terminal, skipping", "scan_id", sc.ID, "status", sc.Status)
		return nil
	}

	if s.isCancelled(ctx, sc.ID) {
		return s.finishCancelled(ctx, sc, 0)
	}

	if err := sc.Start(); err != nil {
		return err
	}
	if err := s.scans.Update(ctx, sc); err != nil {
		return fmt.Errorf("mark scan running: %w", err)
	}

	wsLabel := sc.WorkspaceID.String()
	metrics.ScansInProgress.WithLabelValues(wsLabel).Inc()
	defer metrics.ScansInProgress.WithLabelValues(wsLabel).Dec()
	startedAt := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.GlobalDeadline)
	defer cancel()

	specs := s.resolveSpecs(sc)
	total := len(specs)

	var (
		mu            sync.Mutex
		completed     int
		totalFindings int
		persistErrs   int
	)
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrentProviders))
	var wg sync.WaitGroup

	for _, sp := range specs {
		if err := sem.Acquire(runCtx, 1); err != nil {
			// Global deadline hit before this provider could start.
			mu.Lock()
			completed++
			done := completed
			mu.Unlock()
			s.recordUndispatched(ctx, sc, sp, provider.StatusFailed,
				fmt.Sprintf("scan deadline of %s exceeded before dispatch", s.cfg.GlobalDeadline), done, total)
			continue
		}

		wg.Add(1)
		go func(sp provider.Spec) {
			defer wg.Done()
			defer sem.Release(1)

			if s.isCancelled(runCtx, sc.ID) {
				mu.Lock()
				completed++
				done := completed
				mu.Unlock()
				s.recordUndispatched(ctx, sc, sp, provider.StatusSkipped, "scan cancelled", done, total)
				return
			}

			if d := s.guard.CheckAndRecord(runCtx, sc.WorkspaceID, sp); !d.Allowed {
				// A denied provider produces no result row; the denial is
				// visible through the budget alert and the progress stream.
				s.logger.Info("provider call denied by budget guard",
					"scan_id", sc.ID,
					"provider", sp.ID,
					"reason", d.Reason,
				)
				mu.Lock()
				completed++
				done := completed
				mu.Unlock()
				s.progress.Publish(ctx, sc.ID, EventProviderUpdate, providerUpdatePayload{
					Provider:  sp.ID,
					Message:   d.Message,
					Denied:    true,
					Completed: done,
					Total:     total,
				})
				return
			}

			result, found := s.dispatcher.Dispatch(runCtx, sc, sp)

			perr := s.results.Create(ctx, result)
			if perr != nil {
				s.logger.Error("persist provider result failed",
					"scan_id", sc.ID, "provider", sp.ID, "error", perr)
			}
			stored := 0
			for _, f := range found {
				if ferr := s.findings.Create(ctx, f); ferr != nil {
					s.logger.Error("persist finding failed",
						"scan_id", sc.ID, "provider", sp.ID, "error", ferr)
					continue
				}
				stored++
			}

			mu.Lock()
			completed++
			done := completed
			totalFindings += stored
			if perr != nil {
				persistErrs++
			}
			mu.Unlock()

			s.progress.Publish(ctx, sc.ID, EventProviderUpdate, providerUpdatePayload{
				Provider:      sp.ID,
				Status:        result.Status,
				FindingsCount: result.FindingsCount,
				Message:       result.Message,
				Completed:     done,
				Total:         total,
			})
		}(sp)
	}
	wg.Wait()

	if s.isCancelled(ctx, sc.ID) {
		return s.finishCancelled(ctx, sc, totalFindings)
	}

	// Individual provider failures never fail the scan; only a pipeline that
	// could not record any of its work does.
	if persistErrs == total && total > 0 {
		return s.finishFailed(ctx, sc, "persisting scan results failed", startedAt)
	}

	if err := sc.Complete(totalFindings); err != nil {
		return err
	}
	if err := s.scans.Update(ctx, sc); err != nil {
		return fmt.Errorf("complete scan: %w", err)
	}

	metrics.ScansTotal.WithLabelValues(wsLabel, string(sc.Status)).Inc()
	metrics.ScanDuration.WithLabelValues(wsLabel).Observe(time.Since(startedAt).Seconds())

	s.progress.Publish(ctx, sc.ID, EventScanComplete, scanTerminalPayload{
		Status:        sc.Status,
		FindingsCount: sc.FindingsCount,
	})
	s.logger.Info("scan finished",
		"scan_id", sc.ID,
		"status", sc.Status,
		"findings", sc.FindingsCount,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
	return nil
}

// resolveSpecs maps the scan's requested providers back to catalog specs.
// A provider that has left the catalog since submission is reported as
// not_configured rather than silently dropped.
func (s *ScanService) resolveSpecs(sc *scan.Scan) []provider.Spec {
	specs := make([]provider.Spec, 0, len(sc.RequestedProviders))
	for _, id := range sc.RequestedProviders {
		sp, ok := s.catalog.Get(id)
		if !ok {
			sp = provider.Spec{ID: id, RequiredTier: provider.TierFree}
		}
		specs = append(specs, sp)
	}
	return specs
}

func (s *ScanService) recordUndispatched(ctx context.Context, sc *scan.Scan, sp provider.Spec, status provider.Status, msg string, completed, total int) {
	result, _ := provider.NewResult(sc.ID, sc.WorkspaceID, sp.ID, status)
	result.WithMessage(msg)
	if err := s.results.Create(ctx, result); err != nil {
		s.logger.Error("persist provider result failed",
			"scan_id", sc.ID, "provider", sp.ID, "error", err)
	}
	metrics.ProviderCallsTotal.WithLabelValues(sp.ID.String(), string(status)).Inc()
	s.progress.Publish(ctx, sc.ID, EventProviderUpdate, providerUpdatePayload{
		Provider:  sp.ID,
		Status:    status,
		Message:   msg,
		Completed: completed,
		Total:     total,
	})
}

func (s *ScanService) isCancelled(ctx context.Context, scanID shared.ID) bool {
	cancelled, err := s.cancels.IsCancelled(ctx, scanID)
	if err != nil {
		s.logger.Warn("cancellation check failed", "scan_id", scanID, "error", err)
		return false
	}
	return cancelled
}

func (s *ScanService) finishCancelled(ctx context.Context, sc *scan.Scan, findingsCount int) error {
	if err := sc.Cancel(); err != nil {
		return err
	}
	sc.SetFindingsCount(findingsCount)
	if err := s.scans.Update(ctx, sc); err != nil {
		return fmt.Errorf("mark scan cancelled: %w", err)
	}
	metrics.ScansTotal.WithLabelValues(sc.WorkspaceID.String(), string(scan.StatusCancelled)).Inc()
	s.progress.Publish(ctx, sc.ID, EventScanCancelled, scanTerminalPayload{
		Status:        scan.StatusCancelled,
		FindingsCount: findingsCount,
	})
	s.logger.Info("scan cancelled", "scan_id", sc.ID)
	return nil
}

func (s *ScanService) finishFailed(ctx context.Context, sc *scan.Scan, msg string, startedAt time.Time) error {
	if err := sc.Fail(msg); err != nil {
		return err
	}
	if err := s.scans.Update(ctx, sc); err != nil {
		return fmt.Errorf("mark scan failed: %w", err)
	}
	metrics.ScansTotal.WithLabelValues(sc.WorkspaceID.String(), string(scan.StatusFailed)).Inc()
	metrics.ScanDuration.WithLabelValues(sc.WorkspaceID.String()).Observe(time.Since(startedAt).Seconds())
	s.progress.Publish(ctx, sc.ID, EventScanFailed, scanTerminalPayload{
		Status: scan.StatusFailed,
		Error:  msg,
	})
	s.logger.Error("scan failed", "scan_id", sc.ID, "error", msg)
	return nil
}

// Cancel requests cancellation of a scan. A pending scan is cancelled
// immediately; a running scan is flagged and the orchestrator drains at the
// next provider boundary. In-flight provider calls are not aborted.
func (s *ScanService) Cancel(ctx context.Context, workspaceID, scanID shared.ID) (*scan.Scan, error) {
	sc, err := s.getOwned(ctx, workspaceID, scanID)
	if err != nil {
		return nil, err
	}
	if sc.Status.IsTerminal() {
		return nil, shared.NewDomainError("CONFLICT", "scan already terminal", shared.ErrConflict)
	}

	if err := s.cancels.SetCancelled(ctx, scanID); err != nil {
		return nil, fmt.Errorf("set cancel flag: %w", err)
	}

	if sc.Status == scan.StatusPending {
		if err := s.finishCancelled(ctx, sc, sc.FindingsCount); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// GetScan returns a workspace's scan with its provider results.
func (s *ScanService) GetScan(ctx context.Context, workspaceID, scanID shared.ID) (*scan.Scan, []*provider.Result, error) {
	sc, err := s.getOwned(ctx, workspaceID, scanID)
	if err != nil {
		return nil, nil, err
	}
	results, err := s.results.ListByScan(ctx, scanID)
	if err != nil {
		return nil, nil, fmt.Errorf("list provider results: %w", err)
	}
	return sc, results, nil
}

// ListScans lists a workspace's scans.
func (s *ScanService) ListScans(ctx context.Context, filter scan.ListFilter) ([]*scan.Scan, int, error) {
	if filter.WorkspaceID.IsZero() {
		return nil, 0, shared.NewDomainError("VALIDATION", "workspace id is required", shared.ErrValidation)
	}
	return s.scans.List(ctx, filter)
}

// ListFindings returns the findings of a workspace's scan.
func (s *ScanService) ListFindings(ctx context.Context, workspaceID, scanID shared.ID) ([]*finding.Finding, error) {
	if _, err := s.getOwned(ctx, workspaceID, scanID); err != nil {
		return nil, err
	}
	return s.findings.ListByScan(ctx, scanID)
}

// getOwned loads a scan and verifies workspace ownership. A scan belonging
// to another workspace reads as not found.
func (s *ScanService) getOwned(ctx context.Context, workspaceID, scanID shared.ID) (*scan.Scan, error) {
	sc, err := s.scans.GetByID(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if sc.WorkspaceID != workspaceID {
		return nil, shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	return sc, nil
}
