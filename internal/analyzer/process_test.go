package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// TestRunCommand_BasicExecution verifies basic command execution
func TestRunCommand_BasicExecution(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "echo", "hello")

	stdout, stderr, err := runCommand(ctx, cmd, nil)

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(string(stdout), "hello") {
		t.Errorf("Expected stdout to contain 'hello', got: %s", stdout)
	}
	if len(stderr) > 0 {
		t.Errorf("Expected empty stderr, got: %s", stderr)
	}
}

// TestRunCommand_ConcurrentPipeReading_LargeOutput verifies no deadlock when
// analyzer output exceeds the 64KB pipe buffer
func TestRunCommand_ConcurrentPipeReading_LargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Generate well above 64KB of output
	script := `i=0; while [ $i -lt 12000 ]; do echo "finding line $i: suspicious pattern detected"; i=$((i+1)); done`
	cmd := newCommand(ctx, "sh", "-c", script)

	start := time.Now()
	stdout, _, err := runCommand(ctx, cmd, nil)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Expected no error, got: %v (took %v)", err, duration)
	}

	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	if len(lines) != 12000 {
		t.Errorf("Expected 12000 lines of output, got %d", len(lines))
	}
	if duration > 5*time.Second {
		t.Errorf("Command took too long (%v), possible deadlock", duration)
	}
}

// TestRunCommand_StderrCapture verifies both stdout and stderr are captured
func TestRunCommand_StderrCapture(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "echo error >&2; echo ok")

	stdout, stderr, err := runCommand(ctx, cmd, nil)

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(string(stdout), "ok") {
		t.Errorf("Expected stdout to contain 'ok', got: %s", stdout)
	}
	if !strings.Contains(string(stderr), "error") {
		t.Errorf("Expected stderr to contain 'error', got: %s", stderr)
	}
}

// TestRunCommand_NonZeroExit verifies exit failures carry stderr context and
// are not classified as spawn failures
func TestRunCommand_NonZeroExit(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "sh", "-c", "echo broken >&2; exit 3")

	_, stderr, err := runCommand(ctx, cmd, nil)

	if err == nil {
		t.Fatal("Expected error for non-zero exit, got nil")
	}
	if errors.Is(err, ErrSpawn) {
		t.Errorf("Exit failure classified as spawn failure: %v", err)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("Expected error to carry stderr, got: %v", err)
	}
	if !strings.Contains(string(stderr), "broken") {
		t.Errorf("Expected stderr to contain 'broken', got: %s", stderr)
	}
}

// TestRunCommand_SpawnFailure verifies a missing binary maps to ErrSpawn
func TestRunCommand_SpawnFailure(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "/nonexistent/analyzer-binary")

	_, _, err := runCommand(ctx, cmd, nil)

	if err == nil {
		t.Fatal("Expected error for missing binary, got nil")
	}
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("Expected ErrSpawn, got: %v", err)
	}
}

// TestRunCommand_ContextCancellation verifies subprocess termination on context cancel
func TestRunCommand_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	cmd := newCommand(ctx, "sh", "-c", "sleep 30")

	start := time.Now()
	_, _, err := runCommand(ctx, cmd, nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected error due to context cancellation, got nil")
	}
	if elapsed > 5*time.Second {
		t.Errorf("Cancellation took %v, subprocess not terminated promptly", elapsed)
	}

	errMsg := err.Error()
	isContextError := strings.Contains(errMsg, "context deadline exceeded") ||
		strings.Contains(errMsg, "killed") ||
		strings.Contains(errMsg, "signal")
	if !isContextError {
		t.Errorf("Expected context/signal error, got: %v", err)
	}
}

// TestProcessManager_TrackUntrack verifies subprocess bookkeeping around a run
func TestProcessManager_TrackUntrack(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()

	if pm.Count() != 0 {
		t.Fatalf("Expected 0 tracked processes, got %d", pm.Count())
	}

	cmd := newCommand(ctx, "echo", "tracked")
	if _, _, err := runCommand(ctx, cmd, pm); err != nil {
		t.Fatalf("runCommand failed: %v", err)
	}

	// Untrack happens before runCommand returns
	if pm.Count() != 0 {
		t.Errorf("Expected 0 tracked processes after completion, got %d", pm.Count())
	}
}

// TestProcessManager_KillAll verifies shutdown terminates tracked subprocesses
func TestProcessManager_KillAll(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		cmd := newCommand(ctx, "sh", "-c", "sleep 30")
		_, _, err := runCommand(ctx, cmd, pm)
		done <- err
	}()

	// Wait for the subprocess to register
	deadline := time.Now().Add(5 * time.Second)
	for pm.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subprocess never registered with ProcessManager")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll failed: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error after KillAll, got nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subprocess did not exit after KillAll")
	}

	if pm.Count() != 0 {
		t.Errorf("Expected 0 tracked processes after KillAll, got %d", pm.Count())
	}
}
