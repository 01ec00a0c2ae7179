package app

import (
	"context"
	"time"

	"github.com/traceprint/api/pkg/domain/scan"
	"github.com/traceprint/api/pkg/logger"
)

// monitorBatchSize bounds how many due monitors one sweep picks up.
const monitorBatchSize = 50

// MonitorScheduler re-runs monitored scans on their schedule. Each sweep
// lists due monitors, enqueues a fresh child scan per monitor, and advances
// the parent's next run time so a slow sweep never double-fires.
type MonitorScheduler struct {
	scans    scan.Repository
	enqueuer ScanEnqueuer
	interval time.Duration
	logger   *logger.Logger
}

// NewMonitorScheduler creates a MonitorScheduler sweeping at the given
// interval.
func NewMonitorScheduler(scans scan.Repository, enqueuer ScanEnqueuer, interval time.Duration, log *logger.Logger) *MonitorScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MonitorScheduler{
		scans:    scans,
		enqueuer: enqueuer,
		interval: interval,
		logger:   log.With("component", "monitor_scheduler"),
	}
}

// Run sweeps until the context is cancelled. Blocking; callers run it in a
// goroutine.
func (m *MonitorScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("monitor scheduler started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor scheduler stopped")
			return
		case <-ticker.C:
			if n, err := m.Sweep(ctx); err != nil {
				m.logger.Error("monitor sweep failed", "error", err)
			} else if n > 0 {
				m.logger.Info("monitor sweep enqueued re-runs", "count", n)
			}
		}
	}
}

// Sweep enqueues a re-run for every due monitored scan and returns how many
// it enqueued.
func (m *MonitorScheduler) Sweep(ctx context.Context) (int, error) {
	due, err := m.scans.ListDueMonitors(ctx, time.Now().UTC(), monitorBatchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, parent := range due {
		child := parent.Rerun()
		if err := m.scans.Create(ctx, child); err != nil {
			m.logger.Error("create monitor re-run failed",
				"parent_scan_id", parent.ID, "error", err)
			continue
		}
		if err := m.enqueuer.EnqueueScan(ctx, child.ID); err != nil {
			m.logger.Error("enqueue monitor re-run failed",
				"scan_id", child.ID, "error", err)
			continue
		}

		// Advance before the child completes so the parent cannot come due
		// again within the same schedule period.
		parent.AdvanceSchedule()
		if err := m.scans.Update(ctx, parent); err != nil {
			m.logger.Error("advance monitor schedule failed",
				"parent_scan_id", parent.ID, "error", err)
			continue
		}

		m.logger.Debug("monitor re-run enqueued",
			"parent_scan_id", parent.ID,
			"scan_id", child.ID,
			"next_run_at", parent.NextRunAt,
		)
		enqueued++
	}
	return enqueued, nil
}
