// Package schedule provides durable recurring-job scheduling: cron-style
// expressions persisted in SQLite, live cancellable timers, a bounded firing
// pool, and startup recovery of persisted jobs.
package schedule

import "time"

// Job represents a persisted recurring scheduled job.
//
// The store row is the system of record; the scheduler's in-memory timer is a
// derived cache that is rebuilt from rows with StatusScheduled at startup.
type Job struct {
	ID         string
	OwnerID    string
	Expression string // 6-field cron expression (seconds granularity)
	JobName    string // registry key of the unit of work to invoke
	Parameters []byte // opaque JSON blob handed to the unit of work
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Status constants for scheduled jobs
const (
	StatusScheduled = "scheduled" // job has an armed timer (or is awaiting recovery)
	StatusRunning   = "running"   // a firing is currently executing
	StatusCompleted = "completed" // unit of work reported completion; no further firings
	StatusCancelled = "cancelled" // cancelled by the owner
	StatusFailed    = "failed"    // last firing failed; terminal until updated
)

// validTransitions encodes the allowed status transition table.
// Terminal states re-enter StatusScheduled only through Service.UpdateSchedule,
// which uses the store's explicit re-arm path rather than this table.
var validTransitions = map[string][]string{
	StatusScheduled: {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusScheduled},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to string) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status accepts no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled || status == StatusFailed
}
