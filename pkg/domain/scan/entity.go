// Package scan defines the scan aggregate: one user-initiated request to
// query a set of providers for one identifier, and its lifecycle state.
package scan

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/shared"
)

// Scan is one request to query a set of providers for one identifier.
// The request fields (identifier, providers, tier) are immutable once the
// scan has been dispatched; only lifecycle fields change afterwards.
type Scan struct {
	ID          shared.ID `json:"id"`
	WorkspaceID shared.ID `json:"workspace_id"`

	IdentifierType     provider.IdentifierType `json:"identifier_type"`
	IdentifierValue    string                  `json:"identifier_value"`
	RequestedProviders []provider.ID           `json:"requested_providers"`
	Tier               provider.Tier           `json:"tier"`

	Status        Status `json:"status"`
	FindingsCount int    `json:"findings_count"`
	Error         string `json:"error,omitempty"`

	// Monitoring: recurring re-execution of this scan's request.
	ScheduleType ScheduleType `json:"schedule_type"`
	ScheduleCron string       `json:"schedule_cron,omitempty"`
	NextRunAt    *time.Time   `json:"next_run_at,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// New creates a pending scan. scanID may be zero, in which case one is
// generated; callers that need idempotent submission supply their own.
func New(scanID, workspaceID shared.ID, identifierType provider.IdentifierType, identifierValue string, providers []provider.ID, tier provider.Tier) (*Scan, error) {
	if workspaceID.IsZero() {
		return nil, shared.NewDomainError("VALIDATION", "workspace id is required", shared.ErrValidation)
	}
	if !identifierType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid identifier type", shared.ErrValidation)
	}
	if identifierValue == "" {
		return nil, shared.NewDomainError("VALIDATION", "identifier value is required", shared.ErrValidation)
	}
	if len(providers) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "at least one provider is required", shared.ErrValidation)
	}
	if !tier.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid tier", shared.ErrValidation)
	}

	if scanID.IsZero() {
		scanID = shared.NewID()
	}

	now := time.Now().UTC()
	return &Scan{
		ID:                 scanID,
		WorkspaceID:        workspaceID,
		IdentifierType:     identifierType,
		IdentifierValue:    identifierValue,
		RequestedProviders: providers,
		Tier:               tier,
		Status:             StatusPending,
		ScheduleType:       ScheduleNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Start transitions pending → running.
func (s *Scan) Start() error {
	if s.Status != StatusPending {
		return shared.NewDomainError("CONFLICT", "scan is not pending", shared.ErrConflict)
	}
	now := time.Now().UTC()
	s.Status = StatusRunning
	s.StartedAt = &now
	s.UpdatedAt = now
	return nil
}

// Complete transitions to completed or completed_empty depending on the
// aggregate finding count. A scan where every provider failed individually
// still completes empty; failure is reserved for orchestration errors.
func (s *Scan) Complete(findingsCount int) error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("CONFLICT", "scan already terminal", shared.ErrConflict)
	}
	now := time.Now().UTC()
	s.FindingsCount = findingsCount
	if findingsCount > 0 {
		s.Status = StatusCompleted
	} else {
		s.Status = StatusCompletedEmpty
	}
	s.CompletedAt = &now
	s.UpdatedAt = now
	s.computeNextRunAt()
	return nil
}

// Fail marks an orchestration-level failure.
func (s *Scan) Fail(message string) error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("CONFLICT", "scan already terminal", shared.ErrConflict)
	}
	now := time.Now().UTC()
	s.Status = StatusFailed
	s.Error = message
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Cancel marks the scan cancelled. In-flight provider calls are not
// aborted; their results may still be persisted, but the scan stays
// cancelled.
func (s *Scan) Cancel() error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("CONFLICT", "scan already terminal", shared.ErrConflict)
	}
	now := time.Now().UTC()
	s.Status = StatusCancelled
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// SetFindingsCount records the aggregate finding count without changing state.
// Used when late in-flight results land on a cancelled scan.
func (s *Scan) SetFindingsCount(n int) {
	s.FindingsCount = n
	s.UpdatedAt = time.Now().UTC()
}

// SetSchedule enables or disables monitoring for this scan.
func (s *Scan) SetSchedule(t ScheduleType, cronExpr string) error {
	if !t.IsValid() {
		return shared.NewDomainError("VALIDATION", "invalid schedule type", shared.ErrValidation)
	}
	if t == ScheduleCrontab {
		if cronExpr == "" {
			return shared.NewDomainError("VALIDATION", "cron expression is required for crontab schedule", shared.ErrValidation)
		}
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(cronExpr); err != nil {
			return shared.NewDomainError("VALIDATION", "invalid cron expression", shared.ErrValidation)
		}
	} else {
		cronExpr = ""
	}
	s.ScheduleType = t
	s.ScheduleCron = cronExpr
	s.UpdatedAt = time.Now().UTC()
	s.computeNextRunAt()
	return nil
}

// IsMonitored reports whether the scan re-runs on a schedule.
func (s *Scan) IsMonitored() bool {
	return s.ScheduleType != ScheduleNone && s.ScheduleType != ""
}

// IsDue reports whether a monitored scan is due for re-execution.
func (s *Scan) IsDue(now time.Time) bool {
	if !s.IsMonitored() || s.NextRunAt == nil {
		return false
	}
	return !now.Before(*s.NextRunAt)
}

func (s *Scan) computeNextRunAt() {
	if !s.IsMonitored() {
		s.NextRunAt = nil
		return
	}
	now := time.Now().UTC()
	var next time.Time
	switch s.ScheduleType {
	case ScheduleDaily:
		next = now.Add(24 * time.Hour)
	case ScheduleWeekly:
		next = now.Add(7 * 24 * time.Hour)
	case ScheduleCrontab:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err := parser.Parse(s.ScheduleCron)
		if err != nil {
			next = now.Add(24 * time.Hour)
		} else {
			next = schedule.Next(now)
		}
	default:
		s.NextRunAt = nil
		return
	}
	s.NextRunAt = &next
}

// AdvanceSchedule moves NextRunAt to the following occurrence. Called by the
// monitor scheduler after a re-run has been enqueued.
func (s *Scan) AdvanceSchedule() {
	s.computeNextRunAt()
	s.UpdatedAt = time.Now().UTC()
}

// Rerun creates a fresh pending scan carrying this scan's request fields.
// Used by the monitor scheduler; the new scan has its own ID and no schedule
// of its own (the monitored parent keeps the schedule).
func (s *Scan) Rerun() *Scan {
	now := time.Now().UTC()
	providers := make([]provider.ID, len(s.RequestedProviders))
	copy(providers, s.RequestedProviders)
	return &Scan{
		ID:                 shared.NewID(),
		WorkspaceID:        s.WorkspaceID,
		IdentifierType:     s.IdentifierType,
		IdentifierValue:    s.IdentifierValue,
		RequestedProviders: providers,
		Tier:               s.Tier,
		Status:             StatusPending,
		ScheduleType:       ScheduleNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}
