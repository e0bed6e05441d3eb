package orchestrator

import (
	"context"
	"time"

	"github.com/YingxueSec/AI-Code-Sec/internal/events"
	"github.com/YingxueSec/AI-Code-Sec/internal/scheduler"
)

// RunningTask is one occupied slot in a status report.
type RunningTask struct {
	ID        string        `json:"id"`
	Owner     string        `json:"owner"`
	Tier      int           `json:"tier"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// QueuedTask is one waiting task in a status report. Rank is 1-based
// dispatch order; EstimatedWait assumes every audit takes the configured
// average and is informational only.
type QueuedTask struct {
	ID            string        `json:"id"`
	Owner         string        `json:"owner"`
	Tier          int           `json:"tier"`
	Rank          int           `json:"rank"`
	Waited        time.Duration `json:"waited"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}

// StatusReport is a consistent view of the scheduler for status consumers.
// Running and Queued come from one snapshot, so no task appears in both.
type StatusReport struct {
	Capacity    int           `json:"capacity"`
	FreeSlots   int           `json:"free_slots"`
	Halted      bool          `json:"halted"`
	QueuedTotal int           `json:"queued_total"`
	Running     []RunningTask `json:"running"`
	Queued      []QueuedTask  `json:"queued"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// QueueStatus reports capacity, the running set, and the head of the queue
// up to the configured queue_status_limit.
func (s *Service) QueueStatus() StatusReport {
	snap := s.sched.Snapshot()
	settings := s.settings()
	now := time.Now()

	report := StatusReport{
		Capacity:    snap.Capacity,
		FreeSlots:   snap.Capacity - len(snap.Running),
		Halted:      snap.Halted,
		QueuedTotal: len(snap.Queued),
		Running:     make([]RunningTask, 0, len(snap.Running)),
		Queued:      make([]QueuedTask, 0, min(len(snap.Queued), settings.QueueStatusLimit)),
		GeneratedAt: now,
	}
	if report.FreeSlots < 0 {
		report.FreeSlots = 0
	}

	for _, task := range snap.Running {
		rt := RunningTask{ID: task.ID, Owner: task.Owner, Tier: task.Tier}
		if task.StartedAt != nil {
			rt.StartedAt = *task.StartedAt
			rt.Elapsed = now.Sub(*task.StartedAt)
		}
		report.Running = append(report.Running, rt)
	}

	for i, task := range snap.Queued {
		if i >= settings.QueueStatusLimit {
			break
		}
		rank := i + 1
		report.Queued = append(report.Queued, QueuedTask{
			ID:            task.ID,
			Owner:         task.Owner,
			Tier:          task.Tier,
			Rank:          rank,
			Waited:        now.Sub(task.SubmittedAt),
			EstimatedWait: estimateWait(rank, snap.Capacity, settings.AvgAuditDuration()),
		})
	}
	return report
}

// Owner status states.
const (
	OwnerStateRunning = "running"
	OwnerStateQueued  = "queued"
	OwnerStateNone    = "none"
)

// OwnerReport is the per-owner view: the owner's active task, if any.
// State decides which of the remaining fields are meaningful.
type OwnerReport struct {
	Owner         string        `json:"owner"`
	State         string        `json:"state"`
	TaskID        string        `json:"task_id,omitempty"`
	Elapsed       time.Duration `json:"elapsed,omitempty"`
	Rank          int           `json:"rank,omitempty"`
	EstimatedWait time.Duration `json:"estimated_wait,omitempty"`
}

// OwnerStatus reports whether the owner currently has a running or queued
// task. With several, the running one wins, then the best-ranked queued.
func (s *Service) OwnerStatus(owner string) OwnerReport {
	snap := s.sched.Snapshot()
	now := time.Now()

	for _, task := range snap.Running {
		if task.Owner != owner {
			continue
		}
		report := OwnerReport{Owner: owner, State: OwnerStateRunning, TaskID: task.ID}
		if task.StartedAt != nil {
			report.Elapsed = now.Sub(*task.StartedAt)
		}
		return report
	}

	for i, task := range snap.Queued {
		if task.Owner != owner {
			continue
		}
		rank := i + 1
		return OwnerReport{
			Owner:         owner,
			State:         OwnerStateQueued,
			TaskID:        task.ID,
			Rank:          rank,
			EstimatedWait: estimateWait(rank, snap.Capacity, s.settings().AvgAuditDuration()),
		}
	}

	return OwnerReport{Owner: owner, State: OwnerStateNone}
}

// GetTask returns the stored record for a task, terminal ones included.
func (s *Service) GetTask(ctx context.Context, id string) (*scheduler.Task, error) {
	return s.store.GetTask(ctx, id)
}

// OwnerHistory lists every task the owner ever submitted, oldest first.
func (s *Service) OwnerHistory(ctx context.Context, owner string) ([]*scheduler.Task, error) {
	return s.store.ListByOwner(ctx, owner)
}

// RecentEvents returns up to limit retained lifecycle events, newest first.
func (s *Service) RecentEvents(limit int) []events.Event {
	return s.bus.Recent(limit)
}

// estimateWait predicts a queued task's wait from its 1-based rank: tasks
// within the first free round wait zero, each later round costs one average
// audit duration. slots below one are treated as one so a report taken
// while halted still renders.
func estimateWait(rank, slots int, avgAudit time.Duration) time.Duration {
	if slots < 1 {
		slots = 1
	}
	ahead := rank - slots
	if ahead <= 0 {
		return 0
	}
	rounds := (ahead + slots - 1) / slots
	return time.Duration(rounds) * avgAudit
}
