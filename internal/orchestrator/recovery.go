package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/YingxueSec/AI-Code-Sec/internal/events"
	"github.com/YingxueSec/AI-Code-Sec/internal/observability"
	"github.com/YingxueSec/AI-Code-Sec/internal/scheduler"
)

// restartReason is recorded on tasks found running at boot. The analyzer
// runs in this process, so a running row from a previous process has no
// executor anymore.
const restartReason = "daemon restarted while the task was running"

// Recover reconciles the store with reality at boot: rows still marked
// running belong to a dead process and are failed, queued rows are
// re-enqueued in dispatch order, free slots are filled, and workspaces of
// tasks no longer alive are swept.
func (s *Service) Recover(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "scheduler.recover")
	defer span.End()

	orphans, queued, err := s.store.LoadIncomplete(ctx)
	if err != nil {
		return fmt.Errorf("loading incomplete tasks: %w", err)
	}

	now := time.Now()
	for _, task := range orphans {
		if err := s.store.MarkTerminal(ctx, task.ID, scheduler.StatusFailed, restartReason, now); err != nil {
			return fmt.Errorf("failing orphaned task %s: %w", task.ID, err)
		}
		var duration time.Duration
		if task.StartedAt != nil {
			duration = now.Sub(*task.StartedAt)
		}
		observability.Default.IncCounter("tasks_failed_total", nil, 1)
		s.bus.Publish(events.TopicTask, events.TaskFailedEvent{
			ID:        task.ID,
			Reason:    restartReason,
			Duration:  duration,
			Timestamp: now,
		})
	}

	if err := s.sched.Restore(queued); err != nil {
		return fmt.Errorf("restoring queue: %w", err)
	}

	promoted, err := s.sched.DispatchFree(ctx)
	s.afterPromotion(promoted)
	if err != nil {
		s.noteHalt(err)
		log.Printf("WARNING: dispatch after recovery: %v", err)
	}

	swept := s.sweepWorkspaces()
	s.updateGauges()
	log.Printf("event=recovery_complete orphans=%d requeued=%d promoted=%d swept=%d",
		len(orphans), len(queued), len(promoted), swept)
	return nil
}

// sweepWorkspaces removes workspace directories whose tasks are no longer
// queued or running. Returns the number removed.
func (s *Service) sweepWorkspaces() int {
	snap := s.sched.Snapshot()
	live := make(map[string]bool, len(snap.Running)+len(snap.Queued))
	for _, task := range snap.Running {
		live[task.ID] = true
	}
	for _, task := range snap.Queued {
		live[task.ID] = true
	}

	removed, err := s.workspaces.Sweep(func(taskID string) bool { return live[taskID] })
	if err != nil {
		log.Printf("WARNING: sweeping workspaces: %v", err)
	}
	return len(removed)
}

// RunReaper periodically fails running tasks that exceeded the configured
// max runtime, freeing their slots. Backstops analyzers that hang without
// reporting. Returns when ctx is cancelled.
func (s *Service) RunReaper(ctx context.Context) error {
	interval := s.settings().OrphanScanInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.reapOnce(ctx, time.Now())
			if next := s.settings().OrphanScanInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// reapOnce scans the running set as of now and force-fails every task whose
// runtime exceeds the max. Also dispatches any slots left idle by an
// earlier failed promotion. Returns the number of tasks reaped.
func (s *Service) reapOnce(ctx context.Context, now time.Time) int {
	maxRuntime := s.settings().MaxRuntime()
	snap := s.sched.Snapshot()

	reaped := 0
	for _, task := range snap.Running {
		if task.StartedAt == nil {
			continue
		}
		runtime := now.Sub(*task.StartedAt)
		if runtime <= maxRuntime {
			continue
		}

		// Stop the analyzer first so the slot cannot be re-filled by its
		// own completion report racing the forced failure.
		s.stopExecutor(task.ID)

		reason := fmt.Sprintf("exceeded max runtime %s (ran %s)", maxRuntime, runtime.Round(time.Second))
		finished, promoted, err := s.sched.Complete(ctx, task.ID, scheduler.StatusFailed, reason)
		if finished == nil {
			if errors.Is(err, scheduler.ErrAlreadyTerminal) {
				continue // finished in the window between snapshot and now
			}
			s.noteHalt(err)
			log.Printf("ERROR: reaping task %s: %v", task.ID, err)
			continue
		}

		reaped++
		observability.Default.IncCounter("tasks_orphaned_total", nil, 1)
		s.bus.Publish(events.TopicTask, events.TaskOrphanedEvent{
			ID:        task.ID,
			Runtime:   runtime,
			Timestamp: time.Now(),
		})
		s.afterPromotion(promoted)
		if err != nil {
			s.noteHalt(err)
			log.Printf("WARNING: dispatch after reaping task %s: %v", task.ID, err)
		}
	}

	if promoted, err := s.sched.DispatchFree(ctx); err != nil {
		s.noteHalt(err)
	} else if len(promoted) > 0 {
		log.Printf("event=idle_slots_dispatched count=%d", len(promoted))
		s.afterPromotion(promoted)
	}

	if reaped > 0 {
		log.Printf("event=orphans_reaped count=%d", reaped)
	}
	s.updateGauges()
	return reaped
}
