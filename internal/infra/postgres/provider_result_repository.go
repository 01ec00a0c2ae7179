package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// ProviderResultRepository implements provider.ResultRepository using
// PostgreSQL. Results are written once per provider call and never mutated.
type ProviderResultRepository struct {
	db *DB
}

// NewProviderResultRepository creates a new ProviderResultRepository.
func NewProviderResultRepository(db *DB) *ProviderResultRepository {
	return &ProviderResultRepository{db: db}
}

const resultColumns = `
	id, scan_id, workspace_id, provider, status, findings_count, latency_ms, message, created_at`

// Create persists a provider result.
func (r *ProviderResultRepository) Create(ctx context.Context, result *provider.Result) error {
	query := `
		INSERT INTO provider_results (` + resultColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		result.ID.String(),
		result.ScanID.String(),
		result.WorkspaceID.String(),
		result.ProviderID.String(),
		string(result.Status),
		result.FindingsCount,
		result.LatencyMs,
		nullString(result.Message),
		result.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("ALREADY_EXISTS", "provider result already recorded", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("create provider result: %w", err)
	}
	return nil
}

// ListByScan returns a scan's provider results in creation order.
func (r *ProviderResultRepository) ListByScan(ctx context.Context, scanID shared.ID) ([]*provider.Result, error) {
	query := "SELECT " + resultColumns + " FROM provider_results WHERE scan_id = $1 ORDER BY created_at ASC"
	rows, err := r.db.QueryContext(ctx, query, scanID.String())
	if err != nil {
		return nil, fmt.Errorf("list provider results: %w", err)
	}
	defer rows.Close()

	var results []*provider.Result
	for rows.Next() {
		var (
			res          provider.Result
			id, scID, ws string
			prov, status string
			message      sql.NullString
		)
		err := rows.Scan(
			&id, &scID, &ws, &prov, &status,
			&res.FindingsCount, &res.LatencyMs, &message, &res.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("provider result row: %w", err)
		}

		if res.ID, err = shared.ParseID(id); err != nil {
			return nil, fmt.Errorf("parse result id: %w", err)
		}
		if res.ScanID, err = shared.ParseID(scID); err != nil {
			return nil, fmt.Errorf("parse scan id: %w", err)
		}
		if res.WorkspaceID, err = shared.ParseID(ws); err != nil {
			return nil, fmt.Errorf("parse workspace id: %w", err)
		}
		res.ProviderID = provider.ID(prov)
		res.Status = provider.Status(status)
		res.Message = nullStringValue(message)
		results = append(results, &res)
	}
	return results, rows.Err()
}
