package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/traceprint/api/internal/app/normalize"
	"github.com/traceprint/api/internal/metrics"
	"github.com/traceprint/api/pkg/domain/finding"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/scan"
	"github.com/traceprint/api/pkg/logger"
)

// Dispatcher invokes one provider for one scan and captures the outcome in
// the closed status taxonomy. It never lets an adapter error, panic, or
// timeout escape past its boundary: every call terminates in exactly one
// provider result.
type Dispatcher struct {
	registry    AdapterRegistry
	credentials map[string]string
	logger      *logger.Logger
}

// NewDispatcher creates a Dispatcher. Credentials are injected here rather
// than read from ambient process state so the not_configured branch is
// deterministic under test.
func NewDispatcher(registry AdapterRegistry, credentials map[string]string, log *logger.Logger) *Dispatcher {
	if credentials == nil {
		credentials = map[string]string{}
	}
	return &Dispatcher{
		registry:    registry,
		credentials: credentials,
		logger:      log.With("component", "dispatcher"),
	}
}

// Dispatch runs one provider call for the scan. The returned result is
// always non-nil; findings are returned for persistence by the caller.
//
// Gate order is fixed: the tier gate supersedes the configuration gate, so
// a misconfigured-but-gated provider reports tier_restricted, never
// not_configured.
func (d *Dispatcher) Dispatch(ctx context.Context, sc *scan.Scan, spec provider.Spec) (*provider.Result, []*finding.Finding) {
	if !sc.Tier.Entitles(spec.RequiredTier) {
		r := d.shortCircuit(sc, spec, provider.StatusTierRestricted,
			fmt.Sprintf("requires %s tier or above", spec.RequiredTier))
		return r, nil
	}

	if spec.CredentialKey != "" {
		if _, ok := d.credentials[spec.CredentialKey]; !ok {
			r := d.shortCircuit(sc, spec, provider.StatusNotConfigured, "provider credential not configured")
			return r, nil
		}
	}

	adapter, ok := d.registry.Adapter(spec.ID)
	if !ok {
		r := d.shortCircuit(sc, spec, provider.StatusNotConfigured, "no adapter registered")
		return r, nil
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = provider.DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	records, err := d.safeCall(callCtx, adapter, sc)
	elapsed := time.Since(start)

	metrics.ProviderCallDuration.WithLabelValues(spec.ID.String()).Observe(elapsed.Seconds())

	if err != nil {
		status := provider.StatusFailed
		msg := err.Error()
		switch {
		case errors.Is(err, ErrProviderLimit):
			status = provider.StatusLimitExceeded
		case errors.Is(err, context.DeadlineExceeded):
			msg = fmt.Sprintf("timed out after %s", timeout)
		}

		d.logger.Warn("provider call failed",
			"provider", spec.ID,
			"scan_id", sc.ID,
			"status", status,
			"latency_ms", elapsed.Milliseconds(),
			"error", err,
		)

		result, _ := provider.NewResult(sc.ID, sc.WorkspaceID, spec.ID, status)
		result.WithLatency(elapsed).WithMessage(msg)
		metrics.ProviderCallsTotal.WithLabelValues(spec.ID.String(), string(status)).Inc()
		return result, nil
	}

	nctx := normalize.Context{
		ScanID:          sc.ID,
		WorkspaceID:     sc.WorkspaceID,
		IdentifierType:  sc.IdentifierType,
		IdentifierValue: sc.IdentifierValue,
	}

	// Each extractable fact is normalized individually; a record the
	// normalizer rejects is logged and skipped without failing the call.
	findings := make([]*finding.Finding, 0, len(records))
	for _, raw := range records {
		f, nerr := normalize.Normalize(spec.ID, raw, nctx)
		if nerr != nil {
			d.logger.Warn("skipping unnormalizable record",
				"provider", spec.ID,
				"scan_id", sc.ID,
				"error", nerr,
			)
			continue
		}
		metrics.FindingsTotal.WithLabelValues(spec.ID.String(), string(f.Kind)).Inc()
		findings = append(findings, f)
	}

	result, _ := provider.NewResult(sc.ID, sc.WorkspaceID, spec.ID, provider.StatusSuccess)
	result.WithLatency(elapsed).WithFindings(len(findings))
	metrics.ProviderCallsTotal.WithLabelValues(spec.ID.String(), string(provider.StatusSuccess)).Inc()

	d.logger.Debug("provider call succeeded",
		"provider", spec.ID,
		"scan_id", sc.ID,
		"findings", len(findings),
		"latency_ms", elapsed.Milliseconds(),
	)
	return result, findings
}

type callOutcome struct {
	records []map[string]any
	err     error
}

// safeCall invokes the adapter, converting panics into errors so one broken
// adapter can never take down sibling provider calls. The wall-clock bound
// always wins: an adapter that ignores context cancellation is abandoned and
// its eventual return value discarded.
func (d *Dispatcher) safeCall(ctx context.Context, adapter Adapter, sc *scan.Scan) ([]map[string]any, error) {
	out := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- callOutcome{err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		records, err := adapter.Call(ctx, sc.IdentifierType, sc.IdentifierValue)
		out <- callOutcome{records: records, err: err}
	}()

	select {
	case o := <-out:
		return o.records, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) shortCircuit(sc *scan.Scan, spec provider.Spec, status provider.Status, msg string) *provider.Result {
	result, _ := provider.NewResult(sc.ID, sc.WorkspaceID, spec.ID, status)
	result.WithMessage(msg)
	metrics.ProviderCallsTotal.WithLabelValues(spec.ID.String(), string(status)).Inc()
	d.logger.Debug("provider short-circuited",
		"provider", spec.ID,
		"scan_id", sc.ID,
		"status", status,
	)
	return result
}
