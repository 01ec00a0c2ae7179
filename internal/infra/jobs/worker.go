package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/traceprint/api/internal/app"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

// WorkerConfig holds the configuration for the job worker.
type WorkerConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Worker processes background jobs.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logger.Logger
}

// NewWorker creates a background job worker with the scan handler
// registered.
func NewWorker(cfg WorkerConfig, scans *app.ScanService, log *logger.Logger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				QueueScans:   8,
				QueueDefault: 2,
			},
		},
	)

	mux := asynq.NewServeMux()

	handler := &scanTaskHandler{scans: scans, logger: log.With("component", "scan_worker")}
	mux.HandleFunc(TypeScanExecute, handler.HandleScanExecute)

	return &Worker{
		server: server,
		mux:    mux,
		logger: log,
	}
}

// Start starts the worker.
func (w *Worker) Start() error {
	w.logger.Info("starting job worker")
	return w.server.Start(w.mux)
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.logger.Info("stopping job worker")
	w.server.Shutdown()
}

// Run runs the worker until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Start(w.mux)
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
		return nil
	}
}

// scanTaskHandler executes queued scans.
type scanTaskHandler struct {
	scans  *app.ScanService
	logger *logger.Logger
}

// HandleScanExecute runs one queued scan to a terminal state. Execute is
// idempotent on terminal scans, so asynq retries and duplicate deliveries
// are safe.
func (h *scanTaskHandler) HandleScanExecute(ctx context.Context, t *asynq.Task) error {
	var payload ScanExecutePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// A malformed payload will never succeed; drop it.
		h.logger.Error("malformed scan task payload", "error", err)
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	scanID, err := shared.ParseID(payload.ScanID)
	if err != nil {
		h.logger.Error("invalid scan id in task payload", "scan_id", payload.ScanID, "error", err)
		return fmt.Errorf("parse scan id: %v: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("executing queued scan", "scan_id", scanID)

	if err := h.scans.Execute(ctx, scanID); err != nil {
		h.logger.Error("queued scan execution failed", "scan_id", scanID, "error", err)
		return fmt.Errorf("execute scan %s: %w", scanID, err)
	}
	return nil
}
