package postgres

import (
	"context"
	"fmt"

	"github.com/traceprint/api/pkg/domain/budget"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// BudgetAlertRepository implements budget.AlertRepository using PostgreSQL.
type BudgetAlertRepository struct {
	db *DB
}

// NewBudgetAlertRepository creates a new BudgetAlertRepository.
func NewBudgetAlertRepository(db *DB) *BudgetAlertRepository {
	return &BudgetAlertRepository{db: db}
}

const alertColumns = `
	id, workspace_id, provider, alert_type, threshold_pct,
	current_usage, limit_value, message, metadata, created_at`

// Create persists a budget alert.
func (r *BudgetAlertRepository) Create(ctx context.Context, a *budget.Alert) error {
	metadata, err := toJSONB(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal alert metadata: %w", err)
	}

	query := `
		INSERT INTO budget_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		a.ID.String(),
		a.WorkspaceID.String(),
		a.ProviderID.String(),
		string(a.AlertType),
		a.ThresholdPct,
		a.CurrentUsage,
		a.LimitValue,
		a.Message,
		metadata,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create budget alert: %w", err)
	}
	return nil
}

// ListByWorkspace returns a workspace's alerts, newest first.
func (r *BudgetAlertRepository) ListByWorkspace(ctx context.Context, workspaceID shared.ID, limit int) ([]*budget.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + alertColumns + " FROM budget_alerts WHERE workspace_id = $1 ORDER BY created_at DESC LIMIT $2"
	rows, err := r.db.QueryContext(ctx, query, workspaceID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list budget alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*budget.Alert
	for rows.Next() {
		var (
			a          budget.Alert
			id, ws     string
			providerID string
			alertType  string
			metadata   []byte
		)
		err := rows.Scan(
			&id, &ws, &providerID, &alertType, &a.ThresholdPct,
			&a.CurrentUsage, &a.LimitValue, &a.Message, &metadata, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("budget alert row: %w", err)
		}

		if a.ID, err = shared.ParseID(id); err != nil {
			return nil, fmt.Errorf("parse alert id: %w", err)
		}
		if a.WorkspaceID, err = shared.ParseID(ws); err != nil {
			return nil, fmt.Errorf("parse workspace id: %w", err)
		}
		a.ProviderID = provider.ID(providerID)
		a.AlertType = budget.AlertType(alertType)
		if err := fromJSONB(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal alert metadata: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}
