package scan

// Status is the scan lifecycle state.
type Status string

const (
	// StatusPending is entered on request acceptance, before any provider
	// has been dispatched.
	StatusPending Status = "pending"
	// StatusRunning is entered once the first provider result is recorded.
	StatusRunning Status = "running"
	// StatusCompleted is terminal: all providers reported and at least one
	// finding was produced.
	StatusCompleted Status = "completed"
	// StatusCompletedEmpty is terminal: all providers reported and no
	// findings were produced. Distinct from failure so the UI can say
	// "no exposure found" rather than "something went wrong".
	StatusCompletedEmpty Status = "completed_empty"
	// StatusFailed is terminal and reserved for orchestration-level errors.
	// Individual provider failures never fail a scan.
	StatusFailed Status = "failed"
	// StatusCancelled is terminal: the user stopped the scan.
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted,
		StatusCompletedEmpty, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedEmpty, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ScheduleType controls recurring execution of a monitored scan.
type ScheduleType string

const (
	ScheduleNone    ScheduleType = "none"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleCrontab ScheduleType = "crontab"
)

// IsValid reports whether the schedule type is known.
func (t ScheduleType) IsValid() bool {
	switch t {
	case ScheduleNone, ScheduleDaily, ScheduleWeekly, ScheduleCrontab:
		return true
	default:
		return false
	}
}
