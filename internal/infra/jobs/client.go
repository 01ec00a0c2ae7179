package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

// Client enqueues background jobs. It implements the scan service's
// enqueuer port.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Client{
		client: client,
		logger: log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueScan queues a scan for asynchronous execution.
func (c *Client) EnqueueScan(ctx context.Context, scanID shared.ID) error {
	task, err := NewScanExecuteTask(scanID)
	if err != nil {
		return fmt.Errorf("create scan task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue scan", "scan_id", scanID, "error", err)
		return fmt.Errorf("enqueue scan task: %w", err)
	}

	c.logger.Info("scan queued",
		"task_id", info.ID,
		"scan_id", scanID,
		"queue", info.Queue,
	)
	return nil
}
