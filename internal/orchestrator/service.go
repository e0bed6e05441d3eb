package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/YingxueSec/AI-Code-Sec/internal/analyzer"
	"github.com/YingxueSec/AI-Code-Sec/internal/config"
	"github.com/YingxueSec/AI-Code-Sec/internal/events"
	"github.com/YingxueSec/AI-Code-Sec/internal/observability"
	"github.com/YingxueSec/AI-Code-Sec/internal/persistence"
	"github.com/YingxueSec/AI-Code-Sec/internal/scheduler"
	"github.com/YingxueSec/AI-Code-Sec/internal/workspace"
)

// ErrInvalidRequest flags malformed caller input: missing owner or payload,
// non-positive tiers, unknown completion outcomes.
var ErrInvalidRequest = errors.New("invalid request")

// ServiceConfig wires the orchestration service's collaborators.
type ServiceConfig struct {
	Settings   *config.SchedulerConfig // validated daemon settings
	Store      *persistence.SQLiteStore
	Analyzer   analyzer.Analyzer  // nil disables in-process execution; completions arrive via ReportCompletion
	Workspaces *workspace.Manager // created from Settings when nil
	Bus        *events.EventBus   // created when nil
}

// Service is the orchestration layer above the admission gate: it assigns
// task ids, launches the analyzer for admitted and promoted tasks, reports
// completions back to the scheduler, and publishes lifecycle events.
//
// All scheduling decisions live in scheduler.Scheduler; the service only
// reacts to them, so the admission invariants hold no matter how its
// goroutines interleave.
type Service struct {
	store      *persistence.SQLiteStore
	sched      *scheduler.Scheduler
	workspaces *workspace.Manager
	analyzer   analyzer.Analyzer
	bus        *events.EventBus

	cfgMu sync.RWMutex
	cfg   *config.SchedulerConfig

	mu     sync.Mutex
	active map[string]context.CancelFunc // running task id -> executor cancel

	wg sync.WaitGroup // outstanding executor goroutines

	// rootCtx parents every executor context, so analyzer lifetimes follow
	// the service rather than the submitting HTTP request.
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewService creates the orchestration service. Settings must validate;
// the workspace manager and event bus are created when not supplied.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Settings == nil {
		return nil, errors.New("orchestrator: settings are required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if cfg.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}

	sched, err := scheduler.NewScheduler(cfg.Store, cfg.Settings.MaxConcurrency)
	if err != nil {
		return nil, err
	}

	workspaces := cfg.Workspaces
	if workspaces == nil {
		workspaces, err = workspace.NewManager(workspace.Config{
			Root: cfg.Settings.WorkspaceRoot,
			Keep: cfg.Settings.KeepWorkspaces,
		})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
	}

	bus := cfg.Bus
	if bus == nil {
		bus = events.NewEventBus()
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	s := &Service{
		store:      cfg.Store,
		sched:      sched,
		workspaces: workspaces,
		analyzer:   cfg.Analyzer,
		bus:        bus,
		cfg:        cfg.Settings,
		active:     make(map[string]context.CancelFunc),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
	}
	s.updateGauges()
	return s, nil
}

// Events returns the lifecycle event bus.
func (s *Service) Events() *events.EventBus {
	return s.bus
}

// settings returns the current configuration. The pointer is replaced
// wholesale on reload and never mutated, so reads are safe to keep.
func (s *Service) settings() *config.SchedulerConfig {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// SubmitRequest carries one task submission. Tier takes precedence when
// positive; otherwise Role is resolved through the configured tier table.
type SubmitRequest struct {
	Owner      string
	Role       string
	Tier       int
	PayloadRef string
}

// SubmitTask validates the request, assigns a task id, and admits or
// enqueues the task. Admitted tasks start executing immediately; queued
// tasks start when the dispatcher promotes them. Never blocks on capacity.
func (s *Service) SubmitTask(ctx context.Context, req SubmitRequest) (*scheduler.Task, error) {
	if req.Owner == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	if req.PayloadRef == "" {
		return nil, fmt.Errorf("%w: payload_ref is required", ErrInvalidRequest)
	}
	if req.Tier < 0 {
		return nil, fmt.Errorf("%w: tier must be positive, got %d", ErrInvalidRequest, req.Tier)
	}
	tier := req.Tier
	if tier == 0 {
		tier = s.settings().TierFor(req.Role)
	}
	if tier < 1 {
		return nil, fmt.Errorf("%w: no positive tier for role %q", ErrInvalidRequest, req.Role)
	}

	task := &scheduler.Task{
		ID:          uuid.NewString(),
		Owner:       req.Owner,
		Tier:        tier,
		PayloadRef:  req.PayloadRef,
		SubmittedAt: time.Now(),
	}

	ctx, span := observability.StartSpan(ctx, "scheduler.submit",
		attribute.String("task.id", task.ID),
		attribute.Int("task.tier", tier))
	defer span.End()

	status, err := s.sched.Submit(ctx, task)
	if err != nil {
		s.noteHalt(err)
		return nil, err
	}

	now := time.Now()
	observability.Default.IncCounter("tasks_submitted_total", map[string]string{"tier": strconv.Itoa(tier)}, 1)
	s.bus.Publish(events.TopicTask, events.TaskSubmittedEvent{
		ID:        task.ID,
		Owner:     task.Owner,
		Tier:      task.Tier,
		Queued:    status == scheduler.StatusQueued,
		Timestamp: now,
	})
	if status == scheduler.StatusRunning {
		observability.Default.IncCounter("tasks_admitted_total", nil, 1)
		s.bus.Publish(events.TopicTask, events.TaskAdmittedEvent{ID: task.ID, Tier: task.Tier, Timestamp: now})
		s.launch(task.Clone())
	}
	s.updateGauges()
	return task, nil
}

// RequestStart acknowledges a start request: dispatch is automatic, so a
// queued or running task just reports its current status. Terminal tasks
// return ErrAlreadyTerminal and unknown ids ErrUnknownTask.
func (s *Service) RequestStart(ctx context.Context, id string) (scheduler.Status, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return "", err
	}
	if task.Status.Terminal() {
		return task.Status, fmt.Errorf("task %s: %w", id, scheduler.ErrAlreadyTerminal)
	}
	return task.Status, nil
}

// Cancel cancels a queued or running task. Running tasks get their analyzer
// process stopped and the freed slot dispatched in the same operation.
// Returns false without error for tasks already terminal; unknown ids
// return ErrUnknownTask.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	ctx, span := observability.StartSpan(ctx, "scheduler.cancel", attribute.String("task.id", id))
	defer span.End()

	out, err := s.sched.Cancel(ctx, id)
	if !out.Cancelled {
		if err != nil {
			s.noteHalt(err)
			return false, err
		}
		return false, nil
	}

	if out.WasRunning {
		s.stopExecutor(id)
	}
	observability.Default.IncCounter("tasks_cancelled_total", nil, 1)
	s.bus.Publish(events.TopicTask, events.TaskCancelledEvent{
		ID:         id,
		WasRunning: out.WasRunning,
		Timestamp:  time.Now(),
	})
	s.afterPromotion(out.Promoted)
	if err != nil {
		// The cancellation committed; only the follow-up dispatch failed.
		// The slot stays free for the next dispatch opportunity.
		s.noteHalt(err)
		log.Printf("WARNING: dispatch after cancelling task %s: %v", id, err)
	}
	s.updateGauges()
	return true, nil
}

// ReportCompletion records the outcome of a running task and dispatches the
// freed slot. Reports for already-terminal tasks return ErrAlreadyTerminal,
// which callers treat as an idempotent acknowledgement; reports for queued
// tasks return ErrNotRunning.
func (s *Service) ReportCompletion(ctx context.Context, id string, outcome scheduler.Status, errMsg string) error {
	if outcome != scheduler.StatusCompleted && outcome != scheduler.StatusFailed {
		return fmt.Errorf("%w: outcome must be %s or %s, got %q",
			ErrInvalidRequest, scheduler.StatusCompleted, scheduler.StatusFailed, outcome)
	}

	ctx, span := observability.StartSpan(ctx, "scheduler.complete",
		attribute.String("task.id", id),
		attribute.String("task.outcome", string(outcome)))
	defer span.End()

	finished, promoted, err := s.sched.Complete(ctx, id, outcome, errMsg)
	if finished == nil {
		s.noteHalt(err)
		return err
	}

	// An external report may race an in-process analyzer; stop it, its own
	// completion report will be acknowledged as already terminal.
	s.stopExecutor(id)

	now := time.Now()
	var duration time.Duration
	if finished.StartedAt != nil && finished.FinishedAt != nil {
		duration = finished.FinishedAt.Sub(*finished.StartedAt)
	}
	switch outcome {
	case scheduler.StatusCompleted:
		observability.Default.IncCounter("tasks_completed_total", nil, 1)
		s.bus.Publish(events.TopicTask, events.TaskCompletedEvent{ID: id, Duration: duration, Timestamp: now})
	case scheduler.StatusFailed:
		observability.Default.IncCounter("tasks_failed_total", nil, 1)
		s.bus.Publish(events.TopicTask, events.TaskFailedEvent{ID: id, Reason: errMsg, Duration: duration, Timestamp: now})
	}
	observability.Default.ObserveDuration("audit_duration", map[string]string{"outcome": string(outcome)}, duration)

	s.afterPromotion(promoted)
	if err != nil {
		s.noteHalt(err)
		log.Printf("WARNING: dispatch after completing task %s: %v", id, err)
	}
	s.updateGauges()
	return nil
}

// ApplyConfig installs a reloaded configuration. Capacity changes take
// effect immediately: raising dispatches queued tasks into the new slots,
// lowering evicts nothing and drains as running tasks finish.
func (s *Service) ApplyConfig(ctx context.Context, next *config.SchedulerConfig) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.cfgMu.Lock()
	prev := s.cfg
	s.cfg = next
	s.cfgMu.Unlock()

	if next.MaxConcurrency != prev.MaxConcurrency {
		promoted, err := s.sched.SetCapacity(ctx, next.MaxConcurrency)
		s.afterPromotion(promoted)
		if err != nil {
			s.noteHalt(err)
			log.Printf("WARNING: dispatch after capacity change: %v", err)
		}
		log.Printf("event=capacity_changed from=%d to=%d promoted=%d",
			prev.MaxConcurrency, next.MaxConcurrency, len(promoted))
		s.updateGauges()
	}
	return nil
}

// Healthy reports liveness: the store must answer and the scheduler must
// not be halted.
func (s *Service) Healthy(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", scheduler.ErrPersistence, err)
	}
	if s.sched.Halted() {
		return scheduler.ErrHalted
	}
	return nil
}

// Shutdown stops accepting executor work and waits for in-flight analyzer
// goroutines to finish, up to the context deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	s.rootCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// launch starts the analyzer for a task that just entered the running set.
// With no analyzer configured the task stays running until an external
// ReportCompletion arrives.
func (s *Service) launch(task *scheduler.Task) {
	if s.analyzer == nil {
		return
	}

	ctx, cancel := context.WithCancel(s.rootCtx)
	s.mu.Lock()
	s.active[task.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.execute(ctx, cancel, task)
}

// execute runs one audit to completion: workspace, analyzer, completion
// report, cleanup. Runs in its own goroutine; the task is this goroutine's
// private copy.
func (s *Service) execute(ctx context.Context, cancel context.CancelFunc, task *scheduler.Task) {
	defer s.wg.Done()
	defer cancel()
	defer func() {
		s.mu.Lock()
		delete(s.active, task.ID)
		s.mu.Unlock()
	}()

	ws, err := s.workspaces.Create(task.ID)
	if err != nil {
		s.reportFromExecutor(task.ID, scheduler.StatusFailed, fmt.Sprintf("creating workspace: %v", err))
		return
	}

	result, err := s.analyzer.Run(ctx, analyzer.Request{
		TaskID:     task.ID,
		PayloadRef: task.PayloadRef,
		WorkDir:    ws.Path,
	})

	outcome := scheduler.StatusCompleted
	errMsg := ""
	if err != nil {
		outcome = scheduler.StatusFailed
		errMsg = err.Error()
	} else {
		log.Printf("event=audit_summary id=%s findings=%d report=%s", task.ID, result.Findings, result.Report)
	}

	s.reportFromExecutor(task.ID, outcome, errMsg)

	if err := s.workspaces.Cleanup(task.ID); err != nil {
		log.Printf("WARNING: cleaning workspace for task %s: %v", task.ID, err)
	}
}

// reportFromExecutor records an executor outcome, tolerating the task
// having been cancelled or reaped while the analyzer was still running.
// Uses a background context: the executor's own context is already
// cancelled on those paths, and the store write must still happen.
func (s *Service) reportFromExecutor(id string, outcome scheduler.Status, errMsg string) {
	err := s.ReportCompletion(context.Background(), id, outcome, errMsg)
	if err != nil && !errors.Is(err, scheduler.ErrAlreadyTerminal) {
		log.Printf("ERROR: recording %s for task %s: %v", outcome, id, err)
	}
}

// stopExecutor cancels a task's analyzer context, if one is running here.
func (s *Service) stopExecutor(id string) {
	s.mu.Lock()
	cancel := s.active[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// afterPromotion publishes and launches tasks the dispatcher just moved
// into freed slots.
func (s *Service) afterPromotion(promoted []*scheduler.Task) {
	now := time.Now()
	for _, task := range promoted {
		var waited time.Duration
		if task.StartedAt != nil {
			waited = task.StartedAt.Sub(task.SubmittedAt)
		}
		observability.Default.IncCounter("tasks_promoted_total", nil, 1)
		s.bus.Publish(events.TopicTask, events.TaskPromotedEvent{
			ID:        task.ID,
			Tier:      task.Tier,
			Waited:    waited,
			Timestamp: now,
		})
		s.launch(task.Clone())
	}
}

// noteHalt publishes the halt event when a mutation tripped the capacity
// self-check. Everything else already surfaced through the returned error.
func (s *Service) noteHalt(err error) {
	if err == nil || !errors.Is(err, scheduler.ErrCapacityViolated) {
		return
	}
	running, _ := s.sched.Counts()
	log.Printf("ERROR: capacity invariant violated, scheduler halted: %v", err)
	s.bus.Publish(events.TopicScheduler, events.HaltedEvent{
		RunningCount: running,
		Capacity:     s.sched.Capacity(),
		Timestamp:    time.Now(),
	})
}

// updateGauges refreshes the occupancy gauges after a mutation.
func (s *Service) updateGauges() {
	running, queued := s.sched.Counts()
	free := s.sched.Capacity() - running
	if free < 0 {
		free = 0
	}
	observability.Default.SetGauge("queue_length", nil, float64(queued))
	observability.Default.SetGauge("running_count", nil, float64(running))
	observability.Default.SetGauge("free_slots", nil, float64(free))
}
