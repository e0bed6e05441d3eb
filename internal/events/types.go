package events

import (
	"fmt"
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
	OccurredAt() time.Time
}

// Topic constants
const (
	TopicTask      = "task"
	TopicScheduler = "scheduler"
)

// Event type constants
const (
	EventTypeTaskSubmitted = "task.submitted"
	EventTypeTaskAdmitted  = "task.admitted"
	EventTypeTaskPromoted  = "task.promoted"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskCancelled = "task.cancelled"
	EventTypeTaskOrphaned  = "task.orphaned"
	EventTypeHalted        = "scheduler.halted"
)

// TaskSubmittedEvent is published for every accepted submission, whether it
// was admitted directly or queued.
type TaskSubmittedEvent struct {
	ID        string
	Owner     string
	Tier      int
	Queued    bool
	Timestamp time.Time
}

func (e TaskSubmittedEvent) EventType() string     { return EventTypeTaskSubmitted }
func (e TaskSubmittedEvent) TaskID() string        { return e.ID }
func (e TaskSubmittedEvent) OccurredAt() time.Time { return e.Timestamp }

// TaskAdmittedEvent is published when a submission takes a free slot directly.
type TaskAdmittedEvent struct {
	ID        string
	Tier      int
	Timestamp time.Time
}

func (e TaskAdmittedEvent) EventType() string     { return EventTypeTaskAdmitted }
func (e TaskAdmittedEvent) TaskID() string        { return e.ID }
func (e TaskAdmittedEvent) OccurredAt() time.Time { return e.Timestamp }

// TaskPromotedEvent is published when the dispatcher moves a queued task
// into a freed slot.
type TaskPromotedEvent struct {
	ID        string
	Tier      int
	Waited    time.Duration
	Timestamp time.Time
}

func (e TaskPromotedEvent) EventType() string     { return EventTypeTaskPromoted }
func (e TaskPromotedEvent) TaskID() string        { return e.ID }
func (e TaskPromotedEvent) OccurredAt() time.Time { return e.Timestamp }

// TaskCompletedEvent is published when a running task finishes successfully.
type TaskCompletedEvent struct {
	ID        string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string     { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string        { return e.ID }
func (e TaskCompletedEvent) OccurredAt() time.Time { return e.Timestamp }

// TaskFailedEvent is published when a running task finishes in failure.
type TaskFailedEvent struct {
	ID        string
	Reason    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string     { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string        { return e.ID }
func (e TaskFailedEvent) OccurredAt() time.Time { return e.Timestamp }

// TaskCancelledEvent is published when a task is cancelled, queued or running.
type TaskCancelledEvent struct {
	ID         string
	WasRunning bool
	Timestamp  time.Time
}

func (e TaskCancelledEvent) EventType() string     { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskID() string        { return e.ID }
func (e TaskCancelledEvent) OccurredAt() time.Time { return e.Timestamp }

// TaskOrphanedEvent is published when the reaper force-fails a running task
// that exceeded the max runtime.
type TaskOrphanedEvent struct {
	ID        string
	Runtime   time.Duration
	Timestamp time.Time
}

func (e TaskOrphanedEvent) EventType() string     { return EventTypeTaskOrphaned }
func (e TaskOrphanedEvent) TaskID() string        { return e.ID }
func (e TaskOrphanedEvent) OccurredAt() time.Time { return e.Timestamp }

// HaltedEvent is published once when the scheduler detects a capacity
// invariant violation and stops admitting.
type HaltedEvent struct {
	RunningCount int
	Capacity     int
	Timestamp    time.Time
}

func (e HaltedEvent) EventType() string     { return EventTypeHalted }
func (e HaltedEvent) TaskID() string        { return "" }
func (e HaltedEvent) OccurredAt() time.Time { return e.Timestamp }

// LogLine renders an event as a single key=value log line.
func LogLine(e Event) string {
	switch ev := e.(type) {
	case TaskSubmittedEvent:
		return fmt.Sprintf("event=task_submitted id=%s owner=%s tier=%d queued=%t", ev.ID, ev.Owner, ev.Tier, ev.Queued)
	case TaskAdmittedEvent:
		return fmt.Sprintf("event=task_admitted id=%s tier=%d", ev.ID, ev.Tier)
	case TaskPromotedEvent:
		return fmt.Sprintf("event=task_promoted id=%s tier=%d waited=%s", ev.ID, ev.Tier, ev.Waited.Round(time.Millisecond))
	case TaskCompletedEvent:
		return fmt.Sprintf("event=task_completed id=%s duration=%s", ev.ID, ev.Duration.Round(time.Millisecond))
	case TaskFailedEvent:
		return fmt.Sprintf("event=task_failed id=%s reason=%q duration=%s", ev.ID, ev.Reason, ev.Duration.Round(time.Millisecond))
	case TaskCancelledEvent:
		return fmt.Sprintf("event=task_cancelled id=%s was_running=%t", ev.ID, ev.WasRunning)
	case TaskOrphanedEvent:
		return fmt.Sprintf("event=task_orphaned id=%s runtime=%s", ev.ID, ev.Runtime.Round(time.Second))
	case HaltedEvent:
		return fmt.Sprintf("event=scheduler_halted running=%d capacity=%d", ev.RunningCount, ev.Capacity)
	default:
		return fmt.Sprintf("event=%s id=%s", e.EventType(), e.TaskID())
	}
}
