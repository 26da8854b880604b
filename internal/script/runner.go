package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/seantiz/cinder/internal/cache"
	"github.com/seantiz/cinder/internal/model"
	"github.com/seantiz/cinder/internal/vm"
)

// Configurator is given exclusive, synchronous access to a fresh engine
// instance before any script runs on it.
type Configurator func(vm.Instance) error

// HostObject names a Go value to expose in the script's global scope.
// ExposeExtensions is honored by engines that distinguish extension methods
// from instance members; goja exposes methods on bound values regardless.
type HostObject struct {
	Name             string
	Value            any
	ExposeExtensions bool
}

// HostType names a Go type to expose in the script's global scope, either as
// a direct type (constructor function, reflect.Type) or a pre-built type
// collection value.
type HostType struct {
	Name string
	Type any
}

// RunOptions carries per-execution settings for Run.
type RunOptions struct {
	Configure Configurator
	LogWriter func(line string)
}

// Config holds the runner's process-wide settings, fixed at construction.
type Config struct {
	// Timeout bounds each execution, measured from the start of engine
	// evaluation, not from compile start.
	Timeout time.Duration
	// CacheMaxCount bounds the compiled-script cache. Zero or negative
	// disables caching.
	CacheMaxCount int
	// CacheExpiration is the default freshness window for cached artifacts.
	CacheExpiration time.Duration
}

// Runner is the execution core: it resolves compiled artifacts through the
// bounded cache and runs them on isolated engine instances under a timeout
// watchdog. The cache is the only state shared between concurrent
// executions.
type Runner struct {
	factory vm.Factory
	cache   *cache.Cache[string, *Artifact]
	timeout time.Duration
	ttl     time.Duration
	logger  *slog.Logger
}

// NewRunner creates a Runner backed by the given engine factory.
func NewRunner(factory vm.Factory, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{
		factory: factory,
		cache:   cache.New[string, *Artifact](cfg.CacheMaxCount),
		timeout: cfg.Timeout,
		ttl:     cfg.CacheExpiration,
		logger:  logger,
	}
}

// Timeout returns the configured per-execution timeout.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Compile returns a reusable compiled program for scriptID, serving a fresh
// cached artifact when one exists and compiling source otherwise. The bool
// result reports whether the program came from the cache.
//
// When addToCache is set, a successful compile is stored under scriptID with
// an expiration of ttlOverride when non-nil, else the process-wide default;
// a resolved window of zero or less skips caching. The stored artifact
// unconditionally replaces any prior entry, even a still-fresh one: the last
// compile wins.
func (r *Runner) Compile(scriptID, source string, addToCache bool, ttlOverride *time.Duration) (vm.Program, bool, error) {
	if art, ok := r.lookup(scriptID); ok {
		art.hit()
		cacheHits.Inc()
		return art.Program, true, nil
	}
	cacheMisses.Inc()

	prog, err := r.factory.Compile(scriptID, source)
	if err != nil {
		compilesTotal.WithLabelValues(resultError).Inc()
		return nil, false, &CompileError{ScriptID: scriptID, Err: err}
	}
	compilesTotal.WithLabelValues(resultOK).Inc()

	if addToCache {
		ttl := r.ttl
		if ttlOverride != nil {
			ttl = *ttlOverride
		}
		if ttl > 0 {
			r.cache.Put(scriptID, newArtifact(prog, time.Now().Add(ttl)))
		}
	}

	return prog, false, nil
}

// TryGetCached returns the cached artifact for scriptID if one exists and is
// still fresh. A stale entry is purged and reported as a miss.
func (r *Runner) TryGetCached(scriptID string) (*Artifact, bool) {
	return r.lookup(scriptID)
}

// RemoveCached drops the cache entry for scriptID, reporting whether one
// existed.
func (r *Runner) RemoveCached(scriptID string) bool {
	_, ok := r.cache.Remove(scriptID)
	return ok
}

// lookup layers the freshness check above the raw LRU: expired entries are
// removed and treated as misses, so a stale artifact is never handed back.
func (r *Runner) lookup(scriptID string) (*Artifact, bool) {
	art, ok := r.cache.Get(scriptID)
	if !ok {
		return nil, false
	}
	if !art.Fresh(time.Now()) {
		r.cache.Remove(scriptID)
		return nil, false
	}
	return art, true
}

// Run evaluates a compiled program on a fresh, isolated engine instance.
// The instance is configured (console binding, then the caller's
// configurator) before the script runs, a watchdog armed with the
// process-wide timeout interrupts the engine exactly once if evaluation runs
// long, and the instance is closed on every exit path.
//
// A watchdog interruption surfaces as *TimeoutError, cancellation of ctx as
// the context's error, and any other fault as *RuntimeError.
func (r *Runner) Run(ctx context.Context, scriptID string, prog vm.Program, opts RunOptions) error {
	inst, err := r.factory.New(vm.InstanceConfig{LogWriter: opts.LogWriter})
	if err != nil {
		executionsTotal.WithLabelValues(model.StatusFailed).Inc()
		return &RuntimeError{ScriptID: scriptID, Err: fmt.Errorf("create engine instance: %w", err)}
	}
	defer inst.Close()

	if opts.Configure != nil {
		if err := opts.Configure(inst); err != nil {
			executionsTotal.WithLabelValues(model.StatusFailed).Inc()
			return &RuntimeError{ScriptID: scriptID, Err: fmt.Errorf("configure engine: %w", err)}
		}
	}

	var timedOut atomic.Bool
	watchdog := time.AfterFunc(r.timeout, func() {
		timedOut.Store(true)
		inst.Interrupt("script timeout")
	})
	defer watchdog.Stop()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- inst.Run(prog) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		inst.Interrupt("execution canceled")
		runErr = <-done
	}
	executionDuration.Observe(time.Since(start).Seconds())

	switch {
	case runErr == nil:
		executionsTotal.WithLabelValues(model.StatusCompleted).Inc()
		return nil
	case errors.Is(runErr, vm.ErrInterrupted) && timedOut.Load():
		executionsTotal.WithLabelValues(model.StatusTimedOut).Inc()
		r.logger.Warn("script timed out", "script_id", scriptID, "timeout_ms", r.timeout.Milliseconds())
		return &TimeoutError{ScriptID: scriptID, Timeout: r.timeout, Err: runErr}
	case errors.Is(runErr, vm.ErrInterrupted) && ctx.Err() != nil:
		executionsTotal.WithLabelValues(model.StatusKilled).Inc()
		return fmt.Errorf("script %q canceled: %w", scriptID, ctx.Err())
	default:
		executionsTotal.WithLabelValues(model.StatusFailed).Inc()
		return &RuntimeError{ScriptID: scriptID, Err: runErr}
	}
}

// Execute compiles (or reuses) the script and runs it to completion. It is
// the synchronous entry point combining the compilation gate and the
// execution coordinator.
func (r *Runner) Execute(ctx context.Context, scriptID, source string, configure Configurator, addToCache bool) error {
	prog, _, err := r.Compile(scriptID, source, addToCache, nil)
	if err != nil {
		return err
	}
	return r.Run(ctx, scriptID, prog, RunOptions{Configure: configure})
}

// ExecuteBindings runs the script with the given named host objects and host
// types bound into its global scope. The lists are translated into a
// configurator applied before the script runs.
func (r *Runner) ExecuteBindings(ctx context.Context, scriptID, source string, objects []HostObject, types []HostType, addToCache bool) error {
	configure := func(inst vm.Instance) error {
		for _, o := range objects {
			if err := inst.Bind(o.Name, o.Value); err != nil {
				return fmt.Errorf("bind host object %q: %w", o.Name, err)
			}
		}
		for _, ht := range types {
			if err := inst.Bind(ht.Name, ht.Type); err != nil {
				return fmt.Errorf("bind host type %q: %w", ht.Name, err)
			}
		}
		return nil
	}
	return r.Execute(ctx, scriptID, source, configure, addToCache)
}
