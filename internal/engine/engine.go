package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/cinder/internal/model"
	"github.com/seantiz/cinder/internal/script"
	"github.com/seantiz/cinder/internal/store"
)

// ErrNotRunning is returned by Kill when the execution has no in-flight run.
var ErrNotRunning = errors.New("execution is not running")

// Engine orchestrates script execution lifecycles around the runner: it
// persists status transitions, streams console output through the log
// broker, and keeps a cancel handle per in-flight execution so runs can be
// killed from the API.
type Engine struct {
	store  store.Store
	runner *script.Runner
	logger *slog.Logger
	wg     sync.WaitGroup
	broker *LogBroker

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewEngine creates a new execution engine.
func NewEngine(s store.Store, r *script.Runner, logger *slog.Logger) *Engine {
	return &Engine{
		store:   s,
		runner:  r,
		logger:  logger,
		broker:  NewLogBroker(),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Broker returns the engine's log broker for SSE subscription.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// Runner returns the underlying execution core, for cache pre-warming and
// diagnostics.
func (e *Engine) Runner() *script.Runner {
	return e.runner
}

// Submit creates an execution record and launches asynchronous execution in
// a goroutine. The execution is stored with status "pending" before
// returning. The goroutine operates on a copy of the record to avoid data
// races with the caller.
func (e *Engine) Submit(ctx context.Context, ex *model.Execution, addToCache bool) error {
	if err := e.store.CreateExecution(ctx, ex); err != nil {
		return fmt.Errorf("create execution: %w", err)
	}

	exCopy := *ex
	e.wg.Go(func() {
		e.execute(&exCopy, addToCache)
	})

	return nil
}

// ExecuteSync creates an execution record, runs it to completion inline, and
// returns the final record.
func (e *Engine) ExecuteSync(ctx context.Context, ex *model.Execution, addToCache bool) (*model.Execution, error) {
	if err := e.store.CreateExecution(ctx, ex); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	exCopy := *ex
	e.execute(&exCopy, addToCache)

	return e.store.GetExecution(context.Background(), ex.ID)
}

// Kill interrupts an in-flight execution. Returns ErrNotRunning when the
// execution has already finished or was never submitted.
func (e *Engine) Kill(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancel, ok := e.cancels[id]
	if !ok {
		return ErrNotRunning
	}
	cancel()
	return nil
}

// Wait blocks until all in-flight execution goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// execute runs one execution lifecycle: pending → compiling → running →
// completed/timed_out/failed/killed. A cache hit skips the compiling stage.
func (e *Engine) execute(ex *model.Execution, addToCache bool) {
	// Close the log stream when execution finishes, regardless of outcome.
	defer e.broker.Close(ex.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.mu.Lock()
	e.cancels[ex.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, ex.ID)
		e.mu.Unlock()
	}()

	// Only surface the compiling stage when no fresh artifact is cached;
	// a hit short-circuits straight to running.
	if _, cached := e.runner.TryGetCached(ex.ScriptID); !cached {
		if err := e.store.UpdateExecutionStatus(context.Background(), ex.ID, model.StatusCompiling); err != nil {
			e.logger.Error("failed to transition to compiling", "execution_id", ex.ID, "error", err)
			e.finish(ex, nil, model.StatusFailed, fmt.Sprintf("failed to start: %v", err))
			return
		}
	}

	prog, hit, err := e.runner.Compile(ex.ScriptID, ex.Source, addToCache, nil)
	if err != nil {
		e.finish(ex, nil, model.StatusFailed, err.Error())
		return
	}
	ex.CacheHit = hit

	if err := e.store.UpdateExecutionStatus(context.Background(), ex.ID, model.StatusRunning); err != nil {
		e.logger.Error("failed to transition to running", "execution_id", ex.ID, "error", err)
		e.finish(ex, nil, model.StatusFailed, fmt.Sprintf("failed to start: %v", err))
		return
	}

	// Capture start time after the running transition so started_at stays
	// consistent across success, timeout, and failure paths.
	start := time.Now()

	// Console lines dual-write: persist to SQLite for historical viewing,
	// then publish to the broker for real-time SSE.
	var seq atomic.Int32
	logWriter := func(line string) {
		currentSeq := int(seq.Add(1) - 1)
		if err := e.store.InsertLogLine(context.Background(), ex.ID, currentSeq, line); err != nil {
			e.logger.Error("failed to persist log line", "execution_id", ex.ID, "seq", currentSeq, "error", err)
		}
		e.broker.Publish(ex.ID, line)
	}

	runErr := e.runner.Run(ctx, ex.ScriptID, prog, script.RunOptions{LogWriter: logWriter})

	status := model.StatusCompleted
	errMsg := ""
	var te *script.TimeoutError
	switch {
	case runErr == nil:
	case errors.As(runErr, &te):
		status = model.StatusTimedOut
		errMsg = runErr.Error()
	case errors.Is(runErr, context.Canceled):
		status = model.StatusKilled
		errMsg = runErr.Error()
	default:
		status = model.StatusFailed
		errMsg = runErr.Error()
	}

	e.finish(ex, &start, status, errMsg)
}

// finish writes the terminal record for an execution. startedAt may be nil
// if evaluation never started.
func (e *Engine) finish(ex *model.Execution, startedAt *time.Time, status, errMsg string) {
	now := time.Now().UTC()
	var durationMS int
	if startedAt != nil {
		durationMS = int(time.Since(*startedAt).Milliseconds())
	}

	final := &model.Execution{
		ID:         ex.ID,
		Status:     status,
		CacheHit:   ex.CacheHit,
		Error:      errMsg,
		DurationMS: &durationMS,
		StartedAt:  startedAt,
		FinishedAt: &now,
	}

	if err := e.store.UpdateExecution(context.Background(), final); err != nil {
		e.logger.Error("failed to update finished execution", "execution_id", ex.ID, "status", status, "error", err)
	}
}
