package scheduler

import "time"

// Status represents the current lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"    // Waiting for a free execution slot
	StatusRunning   Status = "running"   // Occupying an execution slot
	StatusCompleted Status = "completed" // Finished successfully
	StatusFailed    Status = "failed"    // Finished with error (or reaped)
	StatusCancelled Status = "cancelled" // Cancelled before or during execution
)

// Terminal reports whether the status is final. Terminal tasks never
// re-enter the queue or the running set.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Task is the unit of schedulable work: one submitted audit job.
type Task struct {
	ID         string // Unique identifier, assigned at submission
	Owner      string // Submitting principal
	Tier       int    // Priority class; higher dispatches first
	PayloadRef string // Opaque reference to the job payload
	Seq        int64  // Store-assigned sequence; breaks same-instant ties
	Status     Status
	Error      string // Failure reason, set on StatusFailed

	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// Clone returns a deep copy safe to hand out of the scheduler lock.
func (t *Task) Clone() *Task {
	c := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.FinishedAt != nil {
		finished := *t.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}
