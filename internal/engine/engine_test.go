package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/cinder/internal/engine"
	"github.com/seantiz/cinder/internal/model"
	"github.com/seantiz/cinder/internal/script"
	"github.com/seantiz/cinder/internal/store"
	"github.com/seantiz/cinder/internal/vm"
	"github.com/seantiz/cinder/internal/vm/gojavm"
)

func newTestEngine(t *testing.T, cfg script.Config) (*engine.Engine, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	factory := gojavm.New(vm.Limits{}, true)
	runner := script.NewRunner(factory, cfg, logger)
	eng := engine.NewEngine(s, runner, logger)
	t.Cleanup(eng.Wait)
	return eng, s
}

func defaultConfig() script.Config {
	return script.Config{
		Timeout:         5 * time.Second,
		CacheMaxCount:   16,
		CacheExpiration: time.Minute,
	}
}

func makeExecution(scriptID, source string) *model.Execution {
	return &model.Execution{
		ID:        model.NewID(),
		ScriptID:  scriptID,
		Status:    model.StatusPending,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// waitForStatus polls the store until the execution reaches the expected status.
func waitForStatus(t *testing.T, s store.Store, id, expected string, timeout time.Duration) *model.Execution {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ex, err := s.GetExecution(context.Background(), id)
		if err != nil {
			t.Fatalf("GetExecution: %v", err)
		}
		if ex.Status == expected {
			return ex
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %s did not reach status %q within %v", id, expected, timeout)
	return nil
}

func TestSubmitHappyPath(t *testing.T) {
	eng, s := newTestEngine(t, defaultConfig())

	ex := makeExecution("greeter", `var x = 1 + 1;`)
	if err := eng.Submit(context.Background(), ex, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	completed := waitForStatus(t, s, ex.ID, model.StatusCompleted, 5*time.Second)
	if completed.Error != "" {
		t.Errorf("error = %q, want empty", completed.Error)
	}
	if completed.CacheHit {
		t.Error("first execution should not be a cache hit")
	}
	if completed.DurationMS == nil {
		t.Error("duration_ms not recorded")
	}
	if completed.StartedAt == nil || completed.FinishedAt == nil {
		t.Error("started_at and finished_at should both be set")
	}
}

func TestExecuteSyncReturnsFinalRecord(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())

	ex := makeExecution("sync", `var n = 40 + 2;`)
	final, err := eng.ExecuteSync(context.Background(), ex, true)
	if err != nil {
		t.Fatalf("ExecuteSync: %v", err)
	}
	if final.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", final.Status)
	}
}

func TestSecondRunIsCacheHit(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())

	first, err := eng.ExecuteSync(context.Background(), makeExecution("cached", `var a = 1;`), true)
	if err != nil {
		t.Fatalf("ExecuteSync: %v", err)
	}
	if first.CacheHit {
		t.Error("first run should be a cache miss")
	}

	second, err := eng.ExecuteSync(context.Background(), makeExecution("cached", `var a = 1;`), true)
	if err != nil {
		t.Fatalf("ExecuteSync: %v", err)
	}
	if !second.CacheHit {
		t.Error("second run of the same script should be a cache hit")
	}
}

func TestCompileErrorMarksFailed(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())

	final, err := eng.ExecuteSync(context.Background(), makeExecution("broken", `function (`), true)
	if err != nil {
		t.Fatalf("ExecuteSync: %v", err)
	}
	if final.Status != model.StatusFailed {
		t.Errorf("status = %q, want failed", final.Status)
	}
	if final.Error == "" {
		t.Error("compile failure should carry an error message")
	}
}

func TestRuntimeErrorMarksFailed(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())

	final, err := eng.ExecuteSync(context.Background(), makeExecution("thrower", `throw new Error("boom");`), true)
	if err != nil {
		t.Fatalf("ExecuteSync: %v", err)
	}
	if final.Status != model.StatusFailed {
		t.Errorf("status = %q, want failed", final.Status)
	}
	if !strings.Contains(final.Error, "boom") {
		t.Errorf("error = %q, want it to mention boom", final.Error)
	}
}

func TestTimeoutMarksTimedOut(t *testing.T) {
	cfg := defaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	eng, _ := newTestEngine(t, cfg)

	final, err := eng.ExecuteSync(context.Background(), makeExecution("spinner", `for (;;) {}`), true)
	if err != nil {
		t.Fatalf("ExecuteSync: %v", err)
	}
	if final.Status != model.StatusTimedOut {
		t.Errorf("status = %q, want timed_out", final.Status)
	}
	if final.Error == "" {
		t.Error("timeout should carry an error message")
	}
}

func TestKillRunningExecution(t *testing.T) {
	eng, s := newTestEngine(t, defaultConfig())

	ex := makeExecution("longrun", `for (;;) {}`)
	if err := eng.Submit(context.Background(), ex, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitForStatus(t, s, ex.ID, model.StatusRunning, 5*time.Second)
	if err := eng.Kill(ex.ID); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	waitForStatus(t, s, ex.ID, model.StatusKilled, 5*time.Second)
}

func TestKillUnknownExecution(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())

	if err := eng.Kill("no-such-id"); !errors.Is(err, engine.ErrNotRunning) {
		t.Errorf("Kill = %v, want ErrNotRunning", err)
	}
}

func TestKillAfterCompletion(t *testing.T) {
	eng, _ := newTestEngine(t, defaultConfig())

	ex := makeExecution("done", `var ok = true;`)
	if _, err := eng.ExecuteSync(context.Background(), ex, true); err != nil {
		t.Fatalf("ExecuteSync: %v", err)
	}
	if err := eng.Kill(ex.ID); !errors.Is(err, engine.ErrNotRunning) {
		t.Errorf("Kill after completion = %v, want ErrNotRunning", err)
	}
}

func TestConsoleLinesPersistedAndPublished(t *testing.T) {
	eng, s := newTestEngine(t, defaultConfig())

	ex := makeExecution("chatty", `console.log("one"); console.log("two");`)
	ch, unsubscribe := eng.Broker().Subscribe(ex.ID)
	defer unsubscribe()

	if err := eng.Submit(context.Background(), ex, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	var streamed []string
	timeout := time.After(5 * time.Second)
	for len(streamed) < 2 {
		select {
		case line, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed after %d lines, want 2", len(streamed))
			}
			streamed = append(streamed, line)
		case <-timeout:
			t.Fatalf("timed out after %d streamed lines, want 2", len(streamed))
		}
	}
	if streamed[0] != "one" || streamed[1] != "two" {
		t.Errorf("streamed = %v, want [one two]", streamed)
	}

	waitForStatus(t, s, ex.ID, model.StatusCompleted, 5*time.Second)
	lines, err := s.GetLogLines(context.Background(), ex.ID)
	if err != nil {
		t.Fatalf("GetLogLines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("persisted %d log lines, want 2", len(lines))
	}
	if lines[0].Line != "one" || lines[1].Line != "two" {
		t.Errorf("persisted lines = %q, %q, want one, two", lines[0].Line, lines[1].Line)
	}
}

func TestBrokerStreamClosedOnFinish(t *testing.T) {
	eng, s := newTestEngine(t, defaultConfig())

	ex := makeExecution("quiet", `var q = 0;`)
	ch, unsubscribe := eng.Broker().Subscribe(ex.ID)
	defer unsubscribe()

	if err := eng.Submit(context.Background(), ex, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitForStatus(t, s, ex.ID, model.StatusCompleted, 5*time.Second)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel close, got a line")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber channel not closed after execution finished")
	}
}
