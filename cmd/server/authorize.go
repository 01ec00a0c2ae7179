package main

import (
	"context"

	"github.com/traceprint/api/internal/infra/websocket"
	"github.com/traceprint/api/pkg/domain/scan"
	"github.com/traceprint/api/pkg/domain/shared"
	"github.com/traceprint/api/pkg/logger"
)

// newScanChannelAuthorizer restricts scan_progress subscriptions to scans
// owned by the subscriber's workspace.
func newScanChannelAuthorizer(scans scan.Repository, log *logger.Logger) websocket.AuthorizeFunc {
	return func(ctx context.Context, client *websocket.Client, channel string) bool {
		rawScanID := websocket.ParseScanChannel(channel)
		if rawScanID == "" || client.WorkspaceID == "" {
			return false
		}

		scanID, err := shared.ParseID(rawScanID)
		if err != nil {
			return false
		}
		workspaceID, err := shared.ParseID(client.WorkspaceID)
		if err != nil {
			return false
		}

		sc, err := scans.GetByID(ctx, scanID)
		if err != nil {
			if !shared.IsNotFound(err) {
				log.Warn("subscription authorization lookup failed",
					"scan_id", scanID,
					"error", err,
				)
			}
			return false
		}
		return sc.WorkspaceID == workspaceID
	}
}
