// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/traceprint/api/pkg/domain/shared"
)

// Task types.
const (
	TypeScanExecute = "scan:execute"
)

// Queue names, highest priority first.
const (
	QueueScans   = "scans"
	QueueDefault = "default"
)

// ScanExecutePayload carries the scan to run. The payload stays minimal;
// the handler reloads the scan from the database so a stale queue entry
// can never resurrect overwritten state.
type ScanExecutePayload struct {
	ScanID string `json:"scan_id"`
}

// NewScanExecuteTask creates a scan execution task.
func NewScanExecuteTask(scanID shared.ID) (*asynq.Task, error) {
	payload, err := json.Marshal(ScanExecutePayload{ScanID: scanID.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal scan payload: %w", err)
	}
	return asynq.NewTask(TypeScanExecute, payload, asynq.Queue(QueueScans), asynq.MaxRetry(3)), nil
}
