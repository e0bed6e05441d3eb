package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownTask is returned for operations referencing no stored task.
	ErrUnknownTask = errors.New("unknown task")

	// ErrAlreadyTerminal is returned when a lifecycle operation targets a
	// task that already finished. Callers treat it as an idempotent ack.
	ErrAlreadyTerminal = errors.New("task already terminal")

	// ErrNotRunning is returned for completion reports on tasks that never
	// occupied a slot.
	ErrNotRunning = errors.New("task is not running")

	// ErrHalted rejects admissions after a capacity violation was detected.
	ErrHalted = errors.New("scheduler halted pending reconciliation")

	// ErrCapacityViolated is returned by the mutation that observed more
	// running tasks than the configured capacity.
	ErrCapacityViolated = errors.New("capacity invariant violated")

	// ErrPersistence wraps store failures. The triggering operation left
	// scheduler state untouched and may be retried.
	ErrPersistence = errors.New("persistence failure")
)

// TaskStore is the slice of the persistence layer the scheduler writes
// through. Every mutation persists before the in-memory change commits, so
// a store error never leaves the two views disagreeing.
type TaskStore interface {
	// InsertTask persists a new task and assigns task.Seq.
	InsertTask(ctx context.Context, task *Task) error

	// MarkRunning transitions a stored task to running.
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error

	// MarkTerminal transitions a stored task to a terminal status.
	MarkTerminal(ctx context.Context, id string, status Status, errMsg string, finishedAt time.Time) error

	// GetTask fetches a stored task. Absent ids yield an error satisfying
	// errors.Is(err, ErrUnknownTask).
	GetTask(ctx context.Context, id string) (*Task, error)
}

// Scheduler is the admission gate: the priority queue, the bounded running
// set, and the dispatcher behind a single mutex. All mutating operations
// serialize through the lock, which is held only for bookkeeping, never for
// the duration of a running job.
//
// Submit admits into a free slot or enqueues; it never blocks waiting for
// capacity. Complete and Cancel release slots and immediately promote the
// highest-priority queued task into the freed capacity. If the running set
// is ever observed above capacity the scheduler halts: admissions and
// promotions are refused until the operator reconciles.
type Scheduler struct {
	mu       sync.Mutex
	store    TaskStore
	capacity int
	queue    *PriorityQueue
	queued   map[string]*Task
	running  map[string]*Task
	halted   bool
}

// NewScheduler creates a scheduler with the given slot capacity.
func NewScheduler(store TaskStore, capacity int) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("scheduler: store is required")
	}
	if capacity < 1 {
		return nil, fmt.Errorf("scheduler: capacity must be positive, got %d", capacity)
	}
	return &Scheduler{
		store:    store,
		capacity: capacity,
		queue:    NewPriorityQueue(),
		queued:   make(map[string]*Task),
		running:  make(map[string]*Task),
	}, nil
}

// Submit atomically admits the task into a free slot or enqueues it.
// The task arrives with ID, Owner, Tier, PayloadRef, and SubmittedAt set;
// Submit fills in Seq, Status, and StartedAt on direct admission. The
// caller keeps ownership of the passed task; the scheduler tracks a copy.
func (s *Scheduler) Submit(ctx context.Context, task *Task) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return "", ErrHalted
	}

	if len(s.running) < s.capacity {
		started := time.Now()
		task.Status = StatusRunning
		task.StartedAt = &started
		if err := s.store.InsertTask(ctx, task); err != nil {
			task.Status = ""
			task.StartedAt = nil
			return "", fmt.Errorf("%w: inserting task %s: %v", ErrPersistence, task.ID, err)
		}
		s.running[task.ID] = task.Clone()
		if err := s.verifyCapacityLocked(); err != nil {
			return "", err
		}
		return StatusRunning, nil
	}

	task.Status = StatusQueued
	if err := s.store.InsertTask(ctx, task); err != nil {
		task.Status = ""
		return "", fmt.Errorf("%w: inserting task %s: %v", ErrPersistence, task.ID, err)
	}
	s.queued[task.ID] = task.Clone()
	s.queue.Enqueue(QueueEntry{
		TaskID:      task.ID,
		Tier:        task.Tier,
		SubmittedAt: task.SubmittedAt,
		Seq:         task.Seq,
	})
	return StatusQueued, nil
}

// Complete records the outcome of a running task: the terminal store write,
// the slot release, and the dispatch of freed capacity happen in one
// critical section. outcome must be StatusCompleted or StatusFailed.
//
// Returns the finished task and any tasks promoted into the freed slot.
// Terminal targets return ErrAlreadyTerminal, unknown ids ErrUnknownTask,
// and queued tasks ErrNotRunning.
func (s *Scheduler) Complete(ctx context.Context, id string, outcome Status, errMsg string) (*Task, []*Task, error) {
	if outcome != StatusCompleted && outcome != StatusFailed {
		return nil, nil, fmt.Errorf("invalid completion outcome %q", outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.running[id]
	if !ok {
		if _, isQueued := s.queued[id]; isQueued {
			return nil, nil, fmt.Errorf("task %s: %w", id, ErrNotRunning)
		}
		return nil, nil, s.classifyMissingLocked(ctx, id)
	}

	finished := time.Now()
	if err := s.store.MarkTerminal(ctx, id, outcome, errMsg, finished); err != nil {
		return nil, nil, fmt.Errorf("%w: finishing task %s: %v", ErrPersistence, id, err)
	}
	delete(s.running, id)
	task.Status = outcome
	task.Error = errMsg
	task.FinishedAt = &finished

	promoted, err := s.dispatchLocked(ctx)
	return task.Clone(), promoted, err
}

// CancelOutcome reports what Cancel did.
type CancelOutcome struct {
	Cancelled  bool
	WasRunning bool
	Task       *Task   // populated when Cancelled
	Promoted   []*Task // promotions triggered by a freed slot
}

// Cancel removes a task from the queue or the running set and records the
// cancelled status. Terminal targets yield Cancelled=false with no error
// (duplicate cancellations are tolerated); unknown ids return
// ErrUnknownTask. Cancelling a running task frees its slot and dispatches;
// signalling the executor is the caller's follow-up.
func (s *Scheduler) Cancel(ctx context.Context, id string) (CancelOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(ctx, id, true)
}

// CancelQueued removes a task from the priority queue only: it returns
// false when the task is running or terminal, without touching it.
func (s *Scheduler) CancelQueued(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.cancelLocked(ctx, id, false)
	if err != nil {
		return false, err
	}
	return out.Cancelled, nil
}

func (s *Scheduler) cancelLocked(ctx context.Context, id string, allowRunning bool) (CancelOutcome, error) {
	finished := time.Now()

	if task, ok := s.queued[id]; ok {
		if err := s.store.MarkTerminal(ctx, id, StatusCancelled, "", finished); err != nil {
			return CancelOutcome{}, fmt.Errorf("%w: cancelling task %s: %v", ErrPersistence, id, err)
		}
		s.queue.Remove(id)
		delete(s.queued, id)
		task.Status = StatusCancelled
		task.FinishedAt = &finished
		return CancelOutcome{Cancelled: true, Task: task.Clone()}, nil
	}

	task, ok := s.running[id]
	if !ok {
		err := s.classifyMissingLocked(ctx, id)
		if errors.Is(err, ErrAlreadyTerminal) {
			return CancelOutcome{}, nil
		}
		return CancelOutcome{}, err
	}
	if !allowRunning {
		return CancelOutcome{}, nil
	}

	if err := s.store.MarkTerminal(ctx, id, StatusCancelled, "", finished); err != nil {
		return CancelOutcome{}, fmt.Errorf("%w: cancelling task %s: %v", ErrPersistence, id, err)
	}
	delete(s.running, id)
	task.Status = StatusCancelled
	task.FinishedAt = &finished

	promoted, err := s.dispatchLocked(ctx)
	return CancelOutcome{Cancelled: true, WasRunning: true, Task: task.Clone(), Promoted: promoted}, err
}

// classifyMissingLocked distinguishes unknown ids from terminal tasks for
// operations that found no live entry.
func (s *Scheduler) classifyMissingLocked(ctx context.Context, id string) error {
	stored, err := s.store.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUnknownTask) {
			return fmt.Errorf("task %s: %w", id, ErrUnknownTask)
		}
		return fmt.Errorf("%w: loading task %s: %v", ErrPersistence, id, err)
	}
	if stored.Status.Terminal() {
		return fmt.Errorf("task %s: %w", id, ErrAlreadyTerminal)
	}
	return fmt.Errorf("task %s stored as %s but not tracked by scheduler", id, stored.Status)
}

// dispatchLocked promotes queued tasks while free slots remain. Each store
// write precedes the in-memory move; on a store failure the entry is
// requeued and dispatch stops, leaving the slot free for the next attempt.
func (s *Scheduler) dispatchLocked(ctx context.Context) ([]*Task, error) {
	if s.halted {
		return nil, nil
	}

	var promoted []*Task
	for len(s.running) < s.capacity {
		entry, ok := s.queue.PopHighest()
		if !ok {
			break
		}
		task := s.queued[entry.TaskID]
		if task == nil {
			return promoted, fmt.Errorf("queue entry %s has no tracked task", entry.TaskID)
		}

		started := time.Now()
		if err := s.store.MarkRunning(ctx, entry.TaskID, started); err != nil {
			s.queue.Enqueue(entry)
			return promoted, fmt.Errorf("%w: promoting task %s: %v", ErrPersistence, entry.TaskID, err)
		}
		delete(s.queued, entry.TaskID)
		task.Status = StatusRunning
		task.StartedAt = &started
		s.running[task.ID] = task
		if err := s.verifyCapacityLocked(); err != nil {
			return promoted, err
		}
		promoted = append(promoted, task.Clone())
	}
	return promoted, nil
}

// verifyCapacityLocked halts the scheduler if the running set ever exceeds
// capacity. All mutations hold the lock, so tripping this means corrupted
// accounting; admissions stop until the operator reconciles.
func (s *Scheduler) verifyCapacityLocked() error {
	if len(s.running) <= s.capacity {
		return nil
	}
	s.halted = true
	return fmt.Errorf("%w: running=%d capacity=%d", ErrCapacityViolated, len(s.running), s.capacity)
}

// SetCapacity changes the slot count. Raising it dispatches queued tasks
// immediately; lowering it never evicts running tasks, the excess drains as
// they finish.
func (s *Scheduler) SetCapacity(ctx context.Context, capacity int) ([]*Task, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = capacity
	return s.dispatchLocked(ctx)
}

// DispatchFree fills any free slots from the queue. Used after restart
// recovery rebuilds the queue.
func (s *Scheduler) DispatchFree(ctx context.Context) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchLocked(ctx)
}

// Restore seeds the queue with recovered tasks already persisted as queued.
// No store writes happen; call DispatchFree afterwards to fill free slots.
func (s *Scheduler) Restore(tasks []*Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range tasks {
		if task.Status != StatusQueued {
			return fmt.Errorf("restore: task %s has status %s, want %s", task.ID, task.Status, StatusQueued)
		}
		if s.queue.Contains(task.ID) || s.running[task.ID] != nil {
			return fmt.Errorf("restore: task %s already tracked", task.ID)
		}
		s.queued[task.ID] = task.Clone()
		s.queue.Enqueue(QueueEntry{
			TaskID:      task.ID,
			Tier:        task.Tier,
			SubmittedAt: task.SubmittedAt,
			Seq:         task.Seq,
		})
	}
	return nil
}

// Snapshot is a consistent view of scheduler state for status reporting.
type Snapshot struct {
	Capacity int
	Halted   bool
	Running  []Task // ordered by start time
	Queued   []Task // dispatch order, rank 1 first
}

// Snapshot captures the running set and queue under the same lock as
// mutations: a task can never appear in both within one snapshot.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Capacity: s.capacity, Halted: s.halted}

	snap.Running = make([]Task, 0, len(s.running))
	for _, task := range s.running {
		snap.Running = append(snap.Running, *task.Clone())
	}
	sort.Slice(snap.Running, func(i, j int) bool {
		a, b := snap.Running[i], snap.Running[j]
		if a.StartedAt != nil && b.StartedAt != nil && !a.StartedAt.Equal(*b.StartedAt) {
			return a.StartedAt.Before(*b.StartedAt)
		}
		return a.Seq < b.Seq
	})

	entries := s.queue.Snapshot()
	snap.Queued = make([]Task, 0, len(entries))
	for _, e := range entries {
		if task := s.queued[e.TaskID]; task != nil {
			snap.Queued = append(snap.Queued, *task.Clone())
		}
	}
	return snap
}

// Counts returns the current running and queued totals.
func (s *Scheduler) Counts() (running, queued int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running), s.queue.Len()
}

// Capacity returns the current slot count.
func (s *Scheduler) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// Halted reports whether admissions are refused pending reconciliation.
func (s *Scheduler) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}
