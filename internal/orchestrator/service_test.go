package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/YingxueSec/AI-Code-Sec/internal/analyzer"
	"github.com/YingxueSec/AI-Code-Sec/internal/config"
	"github.com/YingxueSec/AI-Code-Sec/internal/persistence"
	"github.com/YingxueSec/AI-Code-Sec/internal/scheduler"
)

// fakeAnalyzer records started tasks and delegates to run, completing
// immediately when run is nil.
type fakeAnalyzer struct {
	mu      sync.Mutex
	started []string
	run     func(ctx context.Context, req analyzer.Request) (analyzer.Result, error)
}

func (f *fakeAnalyzer) Run(ctx context.Context, req analyzer.Request) (analyzer.Result, error) {
	f.mu.Lock()
	f.started = append(f.started, req.TaskID)
	f.mu.Unlock()
	if f.run != nil {
		return f.run(ctx, req)
	}
	return analyzer.Result{}, nil
}

// blockingAnalyzer signals each started task and then blocks until its
// context is cancelled.
type blockingAnalyzer struct {
	startedC chan string
}

func newBlockingAnalyzer() *blockingAnalyzer {
	return &blockingAnalyzer{startedC: make(chan string, 16)}
}

func (b *blockingAnalyzer) Run(ctx context.Context, req analyzer.Request) (analyzer.Result, error) {
	b.startedC <- req.TaskID
	<-ctx.Done()
	return analyzer.Result{}, ctx.Err()
}

func (b *blockingAnalyzer) waitStarted(t *testing.T) string {
	t.Helper()
	select {
	case id := <-b.startedC:
		return id
	case <-time.After(5 * time.Second):
		t.Fatalf("analyzer never started")
		return ""
	}
}

func testConfig(t *testing.T) *config.SchedulerConfig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.MaxConcurrency = 1
	cfg.WorkspaceRoot = filepath.Join(t.TempDir(), "workspaces")
	return cfg
}

func testService(t *testing.T, cfg *config.SchedulerConfig, a analyzer.Analyzer) *Service {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}

	store, err := persistence.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc, err := NewService(ServiceConfig{Settings: cfg, Store: store, Analyzer: a})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return svc
}

func mustSubmit(t *testing.T, svc *Service, owner string, tier int) *scheduler.Task {
	t.Helper()
	task, err := svc.SubmitTask(context.Background(), SubmitRequest{
		Owner:      owner,
		Tier:       tier,
		PayloadRef: "/repos/" + owner,
	})
	if err != nil {
		t.Fatalf("SubmitTask(%s): %v", owner, err)
	}
	return task
}

func waitForStatus(t *testing.T, svc *Service, id string, want scheduler.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := svc.GetTask(context.Background(), id)
		if err == nil && task.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	task, err := svc.GetTask(context.Background(), id)
	t.Fatalf("task %s never reached %s (task=%+v err=%v)", id, want, task, err)
}

func runningIDs(report StatusReport) []string {
	ids := make([]string, len(report.Running))
	for i, rt := range report.Running {
		ids[i] = rt.ID
	}
	return ids
}

func queuedIDs(report StatusReport) []string {
	ids := make([]string, len(report.Queued))
	for i, qt := range report.Queued {
		ids[i] = qt.ID
	}
	return ids
}

func TestSubmitTaskValidation(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing owner", SubmitRequest{PayloadRef: "/repos/x"}},
		{"missing payload", SubmitRequest{Owner: "u1"}},
		{"negative tier", SubmitRequest{Owner: "u1", Tier: -1, PayloadRef: "/repos/x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SubmitTask(ctx, tc.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestSubmitTaskAdmitsAndQueues(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrency = 2
	svc := testService(t, cfg, nil)

	a := mustSubmit(t, svc, "u1", 1)
	b := mustSubmit(t, svc, "u2", 1)
	c := mustSubmit(t, svc, "u3", 1)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected unique non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if a.Status != scheduler.StatusRunning || b.Status != scheduler.StatusRunning {
		t.Errorf("first two tasks should run, got %s and %s", a.Status, b.Status)
	}
	if a.StartedAt == nil {
		t.Error("admitted task should have a start time")
	}
	if c.Status != scheduler.StatusQueued {
		t.Errorf("third task should queue, got %s", c.Status)
	}

	report := svc.QueueStatus()
	if len(report.Running) != 2 || report.QueuedTotal != 1 {
		t.Errorf("expected 2 running / 1 queued, got %d/%d", len(report.Running), report.QueuedTotal)
	}
	if report.FreeSlots != 0 {
		t.Errorf("expected no free slots, got %d", report.FreeSlots)
	}
}

func TestSubmitTaskResolvesRoleTier(t *testing.T) {
	cfg := testConfig(t)
	svc := testService(t, cfg, nil)
	ctx := context.Background()

	byRole, err := svc.SubmitTask(ctx, SubmitRequest{Owner: "ops", Role: "admin", PayloadRef: "/repos/a"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if byRole.Tier != 4 {
		t.Errorf("admin role should map to tier 4, got %d", byRole.Tier)
	}

	explicit, err := svc.SubmitTask(ctx, SubmitRequest{Owner: "ops", Role: "admin", Tier: 2, PayloadRef: "/repos/b"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if explicit.Tier != 2 {
		t.Errorf("explicit tier should win over role, got %d", explicit.Tier)
	}

	unknown, err := svc.SubmitTask(ctx, SubmitRequest{Owner: "guest", Role: "mystery", PayloadRef: "/repos/c"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}
	if unknown.Tier != cfg.DefaultTier {
		t.Errorf("unknown role should fall back to default tier %d, got %d", cfg.DefaultTier, unknown.Tier)
	}
}

// A premium submission jumps ahead of earlier standard submissions but
// never preempts anything already running.
func TestPriorityJumpsQueueNotRunning(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrency = 2
	svc := testService(t, cfg, nil)
	ctx := context.Background()

	u1 := mustSubmit(t, svc, "u1", 1)
	u2 := mustSubmit(t, svc, "u2", 1)
	u3 := mustSubmit(t, svc, "u3", 1)
	a1, err := svc.SubmitTask(ctx, SubmitRequest{Owner: "admin", Role: "admin", PayloadRef: "/repos/admin"})
	if err != nil {
		t.Fatalf("SubmitTask: %v", err)
	}

	report := svc.QueueStatus()
	wantQueue := []string{a1.ID, u3.ID}
	if got := queuedIDs(report); !equalStrings(got, wantQueue) {
		t.Fatalf("queue order: got %v, want %v", got, wantQueue)
	}

	if err := svc.ReportCompletion(ctx, u1.ID, scheduler.StatusCompleted, ""); err != nil {
		t.Fatalf("ReportCompletion: %v", err)
	}

	report = svc.QueueStatus()
	if got := runningIDs(report); !equalStrings(got, []string{u2.ID, a1.ID}) {
		t.Errorf("running after completion: got %v, want [%s %s]", got, u2.ID, a1.ID)
	}
	if got := queuedIDs(report); !equalStrings(got, []string{u3.ID}) {
		t.Errorf("u3 should stay at rank 1, got %v", got)
	}
}

func TestCancelRunningFreesSlot(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()

	x := mustSubmit(t, svc, "u1", 1)
	ok, err := svc.Cancel(ctx, x.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = (%t, %v), want (true, nil)", ok, err)
	}

	stored, err := svc.GetTask(ctx, x.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != scheduler.StatusCancelled {
		t.Errorf("expected cancelled, got %s", stored.Status)
	}

	report := svc.QueueStatus()
	if len(report.Running) != 0 || report.FreeSlots != 1 {
		t.Errorf("slot should be free, got %d running / %d free", len(report.Running), report.FreeSlots)
	}
}

func TestFailurePromotesNext(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()

	y := mustSubmit(t, svc, "u1", 1)
	z := mustSubmit(t, svc, "u2", 1)

	if err := svc.ReportCompletion(ctx, y.ID, scheduler.StatusFailed, "analyzer crashed"); err != nil {
		t.Fatalf("ReportCompletion: %v", err)
	}

	stored, err := svc.GetTask(ctx, y.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != scheduler.StatusFailed || stored.Error != "analyzer crashed" {
		t.Errorf("got %s/%q, want failed with recorded reason", stored.Status, stored.Error)
	}

	report := svc.QueueStatus()
	if got := runningIDs(report); !equalStrings(got, []string{z.ID}) {
		t.Errorf("z should be promoted, running=%v", got)
	}
}

func TestConcurrentSubmissionsHoldCapacity(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConcurrency = 5
	svc := testService(t, cfg, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.SubmitTask(context.Background(), SubmitRequest{
				Owner:      fmt.Sprintf("user-%d", n),
				Tier:       1 + n%4,
				PayloadRef: fmt.Sprintf("/repos/user-%d", n),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("SubmitTask: %v", err)
		}
	}

	report := svc.QueueStatus()
	if len(report.Running) != 5 || report.QueuedTotal != 45 {
		t.Errorf("expected 5 running / 45 queued, got %d/%d", len(report.Running), report.QueuedTotal)
	}
	if report.Halted {
		t.Error("scheduler should not be halted")
	}

	counts, err := svc.store.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[scheduler.StatusRunning] != 5 || counts[scheduler.StatusQueued] != 45 {
		t.Errorf("store counts: %v", counts)
	}
}

func TestReportCompletionValidation(t *testing.T) {
	svc := testService(t, nil, nil)
	task := mustSubmit(t, svc, "u1", 1)

	err := svc.ReportCompletion(context.Background(), task.ID, scheduler.StatusCancelled, "")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for cancelled outcome, got %v", err)
	}
}

func TestReportCompletionIdempotent(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()
	task := mustSubmit(t, svc, "u1", 1)

	if err := svc.ReportCompletion(ctx, task.ID, scheduler.StatusCompleted, ""); err != nil {
		t.Fatalf("first ReportCompletion: %v", err)
	}
	err := svc.ReportCompletion(ctx, task.ID, scheduler.StatusCompleted, "")
	if !errors.Is(err, scheduler.ErrAlreadyTerminal) {
		t.Errorf("duplicate report should return ErrAlreadyTerminal, got %v", err)
	}
}

func TestReportCompletionQueuedTask(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()

	mustSubmit(t, svc, "u1", 1)
	queued := mustSubmit(t, svc, "u2", 1)

	err := svc.ReportCompletion(ctx, queued.ID, scheduler.StatusCompleted, "")
	if !errors.Is(err, scheduler.ErrNotRunning) {
		t.Errorf("completing a queued task should return ErrNotRunning, got %v", err)
	}
}

func TestCancelQueuedTask(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()

	running := mustSubmit(t, svc, "u1", 1)
	queued := mustSubmit(t, svc, "u2", 1)

	ok, err := svc.Cancel(ctx, queued.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = (%t, %v), want (true, nil)", ok, err)
	}

	report := svc.QueueStatus()
	if report.QueuedTotal != 0 {
		t.Errorf("queue should be empty, got %d", report.QueuedTotal)
	}
	if got := runningIDs(report); !equalStrings(got, []string{running.ID}) {
		t.Errorf("running task should be untouched, got %v", got)
	}
}

func TestCancelUnknownTask(t *testing.T) {
	svc := testService(t, nil, nil)

	ok, err := svc.Cancel(context.Background(), "no-such-task")
	if ok || !errors.Is(err, scheduler.ErrUnknownTask) {
		t.Errorf("Cancel = (%t, %v), want (false, ErrUnknownTask)", ok, err)
	}
}

func TestCancelTerminalTolerated(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()
	task := mustSubmit(t, svc, "u1", 1)

	if err := svc.ReportCompletion(ctx, task.ID, scheduler.StatusCompleted, ""); err != nil {
		t.Fatalf("ReportCompletion: %v", err)
	}
	ok, err := svc.Cancel(ctx, task.ID)
	if ok || err != nil {
		t.Errorf("cancelling a terminal task = (%t, %v), want (false, nil)", ok, err)
	}
}

func TestRequestStart(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()

	running := mustSubmit(t, svc, "u1", 1)
	queued := mustSubmit(t, svc, "u2", 1)

	if status, err := svc.RequestStart(ctx, running.ID); err != nil || status != scheduler.StatusRunning {
		t.Errorf("running task: got (%s, %v)", status, err)
	}
	if status, err := svc.RequestStart(ctx, queued.ID); err != nil || status != scheduler.StatusQueued {
		t.Errorf("queued task: got (%s, %v)", status, err)
	}

	if _, err := svc.RequestStart(ctx, "no-such-task"); !errors.Is(err, scheduler.ErrUnknownTask) {
		t.Errorf("unknown task: got %v", err)
	}

	if err := svc.ReportCompletion(ctx, running.ID, scheduler.StatusCompleted, ""); err != nil {
		t.Fatalf("ReportCompletion: %v", err)
	}
	status, err := svc.RequestStart(ctx, running.ID)
	if !errors.Is(err, scheduler.ErrAlreadyTerminal) {
		t.Errorf("terminal task: got %v", err)
	}
	if status != scheduler.StatusCompleted {
		t.Errorf("terminal task should still report its status, got %s", status)
	}
}

func TestExecutorRunsAdmittedTask(t *testing.T) {
	fa := &fakeAnalyzer{run: func(ctx context.Context, req analyzer.Request) (analyzer.Result, error) {
		if req.WorkDir == "" || req.PayloadRef == "" {
			t.Errorf("analyzer request incomplete: %+v", req)
		}
		return analyzer.Result{Findings: 3}, nil
	}}
	svc := testService(t, nil, fa)

	task := mustSubmit(t, svc, "u1", 1)
	waitForStatus(t, svc, task.ID, scheduler.StatusCompleted)

	fa.mu.Lock()
	started := len(fa.started)
	fa.mu.Unlock()
	if started != 1 {
		t.Errorf("analyzer should run once, ran %d times", started)
	}
}

func TestExecutorFailureRecordsErrorAndPromotes(t *testing.T) {
	release := make(chan struct{})
	fa := &fakeAnalyzer{run: func(ctx context.Context, req analyzer.Request) (analyzer.Result, error) {
		<-release
		return analyzer.Result{}, errors.New("rule pack corrupt")
	}}
	svc := testService(t, nil, fa)

	first := mustSubmit(t, svc, "u1", 1)
	second := mustSubmit(t, svc, "u2", 1)
	close(release)

	waitForStatus(t, svc, first.ID, scheduler.StatusFailed)

	stored, err := svc.GetTask(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if !strings.Contains(stored.Error, "rule pack corrupt") {
		t.Errorf("failure reason not recorded: %q", stored.Error)
	}

	// The freed slot promotes the queued task, whose run also fails.
	waitForStatus(t, svc, second.ID, scheduler.StatusFailed)
}

func TestCancelStopsRunningAnalyzer(t *testing.T) {
	ba := newBlockingAnalyzer()
	svc := testService(t, nil, ba)
	ctx := context.Background()

	task := mustSubmit(t, svc, "u1", 1)
	if got := ba.waitStarted(t); got != task.ID {
		t.Fatalf("analyzer started %s, want %s", got, task.ID)
	}

	ok, err := svc.Cancel(ctx, task.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = (%t, %v), want (true, nil)", ok, err)
	}

	// The executor's own failure report must not overwrite the cancellation.
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown after cancel: %v", err)
	}

	stored, err := svc.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != scheduler.StatusCancelled {
		t.Errorf("status = %s, want cancelled", stored.Status)
	}
}

func TestShutdownStopsExecutors(t *testing.T) {
	ba := newBlockingAnalyzer()
	svc := testService(t, nil, ba)

	task := mustSubmit(t, svc, "u1", 1)
	ba.waitStarted(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// The interrupted run is recorded as a failure; the next boot's
	// recovery has nothing to reconcile for it.
	stored, err := svc.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stored.Status != scheduler.StatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
}

func TestApplyConfigRaisesCapacity(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()

	a := mustSubmit(t, svc, "u1", 1)
	b := mustSubmit(t, svc, "u2", 1)

	next := testConfig(t)
	next.MaxConcurrency = 2
	if err := svc.ApplyConfig(ctx, next); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}

	report := svc.QueueStatus()
	if got := runningIDs(report); !equalStrings(got, []string{a.ID, b.ID}) {
		t.Errorf("raising capacity should promote b, running=%v", got)
	}
	if report.Capacity != 2 {
		t.Errorf("capacity = %d, want 2", report.Capacity)
	}
}

func TestApplyConfigRejectsInvalid(t *testing.T) {
	svc := testService(t, nil, nil)

	next := testConfig(t)
	next.MaxConcurrency = 0
	if err := svc.ApplyConfig(context.Background(), next); err == nil {
		t.Fatal("expected validation error")
	}
	if got := svc.settings().MaxConcurrency; got != 1 {
		t.Errorf("rejected config must not apply, max_concurrency = %d", got)
	}
}

func TestOwnerStatus(t *testing.T) {
	cfg := testConfig(t)
	svc := testService(t, cfg, nil)

	running := mustSubmit(t, svc, "activeowner", 1)
	first := mustSubmit(t, svc, "waiter", 1)
	second := mustSubmit(t, svc, "latecomer", 1)

	got := svc.OwnerStatus("activeowner")
	if got.State != OwnerStateRunning || got.TaskID != running.ID {
		t.Errorf("running owner: %+v", got)
	}

	got = svc.OwnerStatus("waiter")
	if got.State != OwnerStateQueued || got.TaskID != first.ID || got.Rank != 1 {
		t.Errorf("queued owner: %+v", got)
	}
	if got.EstimatedWait != 0 {
		t.Errorf("rank 1 is within the first free round, got wait %s", got.EstimatedWait)
	}

	got = svc.OwnerStatus("latecomer")
	if got.State != OwnerStateQueued || got.TaskID != second.ID || got.Rank != 2 {
		t.Errorf("second queued owner: %+v", got)
	}
	if got.EstimatedWait != cfg.AvgAuditDuration() {
		t.Errorf("rank 2 behind 1 slot should wait one round, got %s", got.EstimatedWait)
	}

	got = svc.OwnerStatus("stranger")
	if got.State != OwnerStateNone {
		t.Errorf("unknown owner: %+v", got)
	}
}

func TestQueueStatusLimitsEntries(t *testing.T) {
	cfg := testConfig(t)
	cfg.QueueStatusLimit = 2
	svc := testService(t, cfg, nil)

	mustSubmit(t, svc, "u0", 1)
	for i := 1; i <= 3; i++ {
		mustSubmit(t, svc, fmt.Sprintf("u%d", i), 1)
	}

	report := svc.QueueStatus()
	if report.QueuedTotal != 3 {
		t.Errorf("QueuedTotal = %d, want 3", report.QueuedTotal)
	}
	if len(report.Queued) != 2 {
		t.Errorf("entries shown = %d, want 2", len(report.Queued))
	}
	if report.Queued[0].Rank != 1 || report.Queued[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", report.Queued[0].Rank, report.Queued[1].Rank)
	}
}

func TestEstimateWait(t *testing.T) {
	avg := 5 * time.Minute
	cases := []struct {
		rank, slots int
		want        time.Duration
	}{
		{1, 2, 0},
		{2, 2, 0},
		{3, 2, avg},
		{4, 2, avg},
		{5, 2, 2 * avg},
		{1, 1, 0},
		{2, 1, avg},
		{4, 1, 3 * avg},
		{3, 0, 2 * avg}, // zero slots treated as one
	}
	for _, tc := range cases {
		if got := estimateWait(tc.rank, tc.slots, avg); got != tc.want {
			t.Errorf("estimateWait(%d, %d) = %s, want %s", tc.rank, tc.slots, got, tc.want)
		}
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	svc := testService(t, nil, nil)
	ctx := context.Background()

	a := mustSubmit(t, svc, "u1", 1)
	b := mustSubmit(t, svc, "u2", 1)
	if ok, err := svc.Cancel(ctx, b.ID); err != nil || !ok {
		t.Fatalf("Cancel: (%t, %v)", ok, err)
	}
	if err := svc.ReportCompletion(ctx, a.ID, scheduler.StatusCompleted, ""); err != nil {
		t.Fatalf("ReportCompletion: %v", err)
	}

	recent := svc.RecentEvents(0)
	var got []string
	for i := len(recent) - 1; i >= 0; i-- { // oldest first
		got = append(got, recent[i].EventType()+":"+recent[i].TaskID())
	}
	want := []string{
		"task.submitted:" + a.ID,
		"task.admitted:" + a.ID,
		"task.submitted:" + b.ID,
		"task.cancelled:" + b.ID,
		"task.completed:" + a.ID,
	}
	if !equalStrings(got, want) {
		t.Errorf("event sequence:\n got %v\nwant %v", got, want)
	}
}

func TestHealthy(t *testing.T) {
	svc := testService(t, nil, nil)
	if err := svc.Healthy(context.Background()); err != nil {
		t.Errorf("fresh service should be healthy: %v", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
