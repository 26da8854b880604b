package vm

import "errors"

// ErrInterrupted reports that script execution was aborted from outside the
// running script, by the timeout watchdog or by caller cancellation.
// Implementations wrap it so callers can distinguish forced interruption
// from ordinary script faults with errors.Is.
var ErrInterrupted = errors.New("script execution interrupted")

// Program is an opaque compiled-script handle. A Program is only runnable on
// instances produced by the factory that compiled it.
type Program interface {
	// ID returns the script id the program was compiled under.
	ID() string
}

// Limits holds per-instance resource ceilings, set once at factory
// construction and shared read-only by all instances. Engines apply the
// ceilings they support; heap fields are carried for engines that meter
// memory.
type Limits struct {
	MaxExecutableBytes int64
	MaxOldSpaceBytes   int64
	MaxNewSpaceBytes   int64
	MaxCallStackSize   int
}

// InstanceConfig carries per-execution settings for a fresh instance.
type InstanceConfig struct {
	// LogWriter receives console output lines emitted by the running script.
	// May be nil, in which case console output goes to the engine's default
	// sink.
	LogWriter func(line string)
}

// Factory compiles scripts and produces isolated engine instances. A factory
// is safe for concurrent use; instances are not, and must never be shared
// across concurrent executions.
type Factory interface {
	// Compile turns source text into a reusable Program. The returned error
	// carries the engine's diagnostic for the failing script.
	Compile(scriptID, source string) (Program, error)

	// New creates a fresh, isolated instance scoped to a single execution.
	New(cfg InstanceConfig) (Instance, error)
}

// Instance is a single-execution engine instance.
type Instance interface {
	// Bind exposes a host value in the script's global scope under name.
	Bind(name string, value any) error

	// Run evaluates a compiled program to completion. When the instance is
	// interrupted mid-run, the returned error wraps ErrInterrupted.
	Run(p Program) error

	// Interrupt forces an asynchronous abort of in-progress execution.
	// Safe to call from any goroutine, including after Run has returned.
	Interrupt(reason string)

	// Close releases the instance. Callers must close every instance on
	// every exit path.
	Close()
}
