package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/traceprint/api/pkg/domain/finding"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// FindingRepository implements finding.Repository using PostgreSQL.
// Findings are append-only; there is no update statement.
type FindingRepository struct {
	db *DB
}

// NewFindingRepository creates a new FindingRepository.
func NewFindingRepository(db *DB) *FindingRepository {
	return &FindingRepository{db: db}
}

const findingColumns = `
	id, scan_id, workspace_id, provider, kind, severity, confidence,
	title, evidence, observed_at, meta, created_at`

// Create persists a finding.
func (r *FindingRepository) Create(ctx context.Context, f *finding.Finding) error {
	evidence, err := toJSONB(f.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	meta, err := toJSONB(f.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	query := `
		INSERT INTO findings (` + findingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		f.ID.String(),
		f.ScanID.String(),
		f.WorkspaceID.String(),
		f.Provider.String(),
		string(f.Kind),
		string(f.Severity),
		f.Confidence,
		nullString(f.Title),
		evidence,
		f.ObservedAt,
		meta,
		f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create finding: %w", err)
	}
	return nil
}

// ListByScan returns a scan's findings in observation order.
func (r *FindingRepository) ListByScan(ctx context.Context, scanID shared.ID) ([]*finding.Finding, error) {
	query := "SELECT " + findingColumns + " FROM findings WHERE scan_id = $1 ORDER BY observed_at ASC, id ASC"
	rows, err := r.db.QueryContext(ctx, query, scanID.String())
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var findings []*finding.Finding
	for rows.Next() {
		var (
			f              finding.Finding
			id, scID, ws   string
			prov           string
			kind, severity string
			title          sql.NullString
			evidence, meta []byte
		)
		err := rows.Scan(
			&id, &scID, &ws, &prov, &kind, &severity, &f.Confidence,
			&title, &evidence, &f.ObservedAt, &meta, &f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("finding row: %w", err)
		}

		if f.ID, err = shared.ParseID(id); err != nil {
			return nil, fmt.Errorf("parse finding id: %w", err)
		}
		if f.ScanID, err = shared.ParseID(scID); err != nil {
			return nil, fmt.Errorf("parse scan id: %w", err)
		}
		if f.WorkspaceID, err = shared.ParseID(ws); err != nil {
			return nil, fmt.Errorf("parse workspace id: %w", err)
		}
		f.Provider = provider.ID(prov)
		f.Kind = finding.Kind(kind)
		f.Severity = finding.Severity(severity)
		f.Title = nullStringValue(title)
		if err := fromJSONB(evidence, &f.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
		if err := fromJSONB(meta, &f.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
		findings = append(findings, &f)
	}
	return findings, rows.Err()
}

// CountByScan returns the number of findings a scan produced.
func (r *FindingRepository) CountByScan(ctx context.Context, scanID shared.ID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM findings WHERE scan_id = $1", scanID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count findings: %w", err)
	}
	return count, nil
}
