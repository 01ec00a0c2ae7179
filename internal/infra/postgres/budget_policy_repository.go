package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/traceprint/api/pkg/domain/budget"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// BudgetPolicyRepository implements budget.PolicyRepository using PostgreSQL.
type BudgetPolicyRepository struct {
	db *DB
}

// NewBudgetPolicyRepository creates a new BudgetPolicyRepository.
func NewBudgetPolicyRepository(db *DB) *BudgetPolicyRepository {
	return &BudgetPolicyRepository{db: db}
}

const policyColumns = `
	id, workspace_id, provider, daily_quota, monthly_budget_pence,
	warn_threshold_pct, critical_threshold_pct,
	block_on_quota_exceeded, block_on_budget_exceeded,
	created_at, updated_at`

// Upsert inserts or replaces the policy for (workspace, provider).
func (r *BudgetPolicyRepository) Upsert(ctx context.Context, p *budget.Policy) error {
	query := `
		INSERT INTO budget_policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (workspace_id, provider) DO UPDATE SET
			daily_quota = EXCLUDED.daily_quota,
			monthly_budget_pence = EXCLUDED.monthly_budget_pence,
			warn_threshold_pct = EXCLUDED.warn_threshold_pct,
			critical_threshold_pct = EXCLUDED.critical_threshold_pct,
			block_on_quota_exceeded = EXCLUDED.block_on_quota_exceeded,
			block_on_budget_exceeded = EXCLUDED.block_on_budget_exceeded,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID.String(),
		p.WorkspaceID.String(),
		p.ProviderID.String(),
		p.DailyQuota,
		p.MonthlyBudgetPence,
		p.WarnThresholdPct,
		p.CriticalThresholdPct,
		p.BlockOnQuotaExceeded,
		p.BlockOnBudgetExceeded,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert budget policy: %w", err)
	}
	return nil
}

// Get returns the policy for (workspace, provider).
func (r *BudgetPolicyRepository) Get(ctx context.Context, workspaceID shared.ID, providerID provider.ID) (*budget.Policy, error) {
	query := "SELECT " + policyColumns + " FROM budget_policies WHERE workspace_id = $1 AND provider = $2"
	row := r.db.QueryRowContext(ctx, query, workspaceID.String(), providerID.String())

	p, err := policyFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "budget policy not found", shared.ErrNotFound)
	}
	return p, err
}

// ListByWorkspace returns a workspace's policies in provider order.
func (r *BudgetPolicyRepository) ListByWorkspace(ctx context.Context, workspaceID shared.ID) ([]*budget.Policy, error) {
	query := "SELECT " + policyColumns + " FROM budget_policies WHERE workspace_id = $1 ORDER BY provider ASC"
	rows, err := r.db.QueryContext(ctx, query, workspaceID.String())
	if err != nil {
		return nil, fmt.Errorf("list budget policies: %w", err)
	}
	defer rows.Close()

	var policies []*budget.Policy
	for rows.Next() {
		p, err := policyFromRow(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func policyFromRow(row rowScanner) (*budget.Policy, error) {
	var (
		p          budget.Policy
		id, ws     string
		providerID string
	)
	err := row.Scan(
		&id, &ws, &providerID, &p.DailyQuota, &p.MonthlyBudgetPence,
		&p.WarnThresholdPct, &p.CriticalThresholdPct,
		&p.BlockOnQuotaExceeded, &p.BlockOnBudgetExceeded,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("budget policy row: %w", err)
	}

	if p.ID, err = shared.ParseID(id); err != nil {
		return nil, fmt.Errorf("parse policy id: %w", err)
	}
	if p.WorkspaceID, err = shared.ParseID(ws); err != nil {
		return nil, fmt.Errorf("parse workspace id: %w", err)
	}
	p.ProviderID = provider.ID(providerID)
	return &p, nil
}
