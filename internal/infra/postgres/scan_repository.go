package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/scan"
	"github.com/traceprint/api/pkg/domain/shared"
)

// ScanRepository implements scan.Repository using PostgreSQL.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

const scanColumns = `
	id, workspace_id, identifier_type, identifier_value, requested_providers, tier,
	status, findings_count, error,
	schedule_type, schedule_cron, next_run_at,
	started_at, completed_at, created_at, updated_at`

// Create persists a new scan.
func (r *ScanRepository) Create(ctx context.Context, s *scan.Scan) error {
	providers := make([]string, len(s.RequestedProviders))
	for i, id := range s.RequestedProviders {
		providers[i] = id.String()
	}

	query := `
		INSERT INTO scans (` + scanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID.String(),
		s.WorkspaceID.String(),
		string(s.IdentifierType),
		s.IdentifierValue,
		pq.Array(providers),
		string(s.Tier),
		string(s.Status),
		s.FindingsCount,
		nullString(s.Error),
		string(s.ScheduleType),
		nullString(s.ScheduleCron),
		nullTime(s.NextRunAt),
		nullTime(s.StartedAt),
		nullTime(s.CompletedAt),
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError("ALREADY_EXISTS", "scan already exists", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("create scan: %w", err)
	}
	return nil
}

// GetByID retrieves a scan by ID.
func (r *ScanRepository) GetByID(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	query := "SELECT " + scanColumns + " FROM scans WHERE id = $1"
	row := r.db.QueryRowContext(ctx, query, id.String())
	return r.scanFromRow(row)
}

// Update persists scan lifecycle changes.
func (r *ScanRepository) Update(ctx context.Context, s *scan.Scan) error {
	query := `
		UPDATE scans
		SET status = $2, findings_count = $3, error = $4,
		    schedule_type = $5, schedule_cron = $6, next_run_at = $7,
		    started_at = $8, completed_at = $9, updated_at = $10
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		s.ID.String(),
		string(s.Status),
		s.FindingsCount,
		nullString(s.Error),
		string(s.ScheduleType),
		nullString(s.ScheduleCron),
		nullTime(s.NextRunAt),
		nullTime(s.StartedAt),
		nullTime(s.CompletedAt),
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update scan: %w", err)
	}
	if affected == 0 {
		return shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	return nil
}

// List lists scans matching the filter, newest first, with the total count.
func (r *ScanRepository) List(ctx context.Context, filter scan.ListFilter) ([]*scan.Scan, int, error) {
	var conditions []string
	var args []any

	if !filter.WorkspaceID.IsZero() {
		args = append(args, filter.WorkspaceID.String())
		conditions = append(conditions, fmt.Sprintf("workspace_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scans"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count scans: %w", err)
	}

	query := "SELECT " + scanColumns + " FROM scans" + where + " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []*scan.Scan
	for rows.Next() {
		s, err := r.scanFromRows(rows)
		if err != nil {
			return nil, 0, err
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list scans: %w", err)
	}
	return scans, total, nil
}

// ListDueMonitors returns monitored scans due at or before now.
func (r *ScanRepository) ListDueMonitors(ctx context.Context, now time.Time, limit int) ([]*scan.Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + scanColumns + ` FROM scans
		WHERE schedule_type <> 'none' AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due monitors: %w", err)
	}
	defer rows.Close()

	var scans []*scan.Scan
	for rows.Next() {
		s, err := r.scanFromRows(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ScanRepository) scanFromRow(row *sql.Row) (*scan.Scan, error) {
	s, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "scan not found", shared.ErrNotFound)
	}
	return s, err
}

func (r *ScanRepository) scanFromRows(rows *sql.Rows) (*scan.Scan, error) {
	return scanRow(rows)
}

func scanRow(row rowScanner) (*scan.Scan, error) {
	var (
		s            scan.Scan
		id, ws       string
		idType, tier string
		status       string
		scheduleType string
		errMsg       sql.NullString
		scheduleCron sql.NullString
		providers    pq.StringArray
		nextRunAt    sql.NullTime
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&id, &ws, &idType, &s.IdentifierValue, &providers, &tier,
		&status, &s.FindingsCount, &errMsg,
		&scheduleType, &scheduleCron, &nextRunAt,
		&startedAt, &completedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}

	if s.ID, err = shared.ParseID(id); err != nil {
		return nil, fmt.Errorf("parse scan id: %w", err)
	}
	if s.WorkspaceID, err = shared.ParseID(ws); err != nil {
		return nil, fmt.Errorf("parse workspace id: %w", err)
	}
	s.IdentifierType = provider.IdentifierType(idType)
	s.Tier = provider.Tier(tier)
	s.Status = scan.Status(status)
	s.ScheduleType = scan.ScheduleType(scheduleType)
	s.Error = nullStringValue(errMsg)
	s.ScheduleCron = nullStringValue(scheduleCron)
	s.NextRunAt = nullTimeValue(nextRunAt)
	s.StartedAt = nullTimeValue(startedAt)
	s.CompletedAt = nullTimeValue(completedAt)

	s.RequestedProviders = make([]provider.ID, len(providers))
	for i, p := range providers {
		s.RequestedProviders[i] = provider.ID(p)
	}
	return &s, nil
}
