package gojavm

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"

	"github.com/seantiz/cinder/internal/vm"
)

// Factory produces goja runtimes configured with the process-wide resource
// limits. goja does not meter heap usage, so only the call stack bound from
// vm.Limits is enforced here; time limiting is the coordinator's job via
// Interrupt.
type Factory struct {
	limits  vm.Limits
	console bool
}

var _ vm.Factory = (*Factory)(nil)

// New creates a goja engine factory. When enableConsole is set, every
// instance gets a console binding in its global scope before any script runs.
func New(limits vm.Limits, enableConsole bool) *Factory {
	return &Factory{limits: limits, console: enableConsole}
}

// Compile parses and compiles source in strict mode under the given script id.
func (f *Factory) Compile(scriptID, source string) (vm.Program, error) {
	p, err := goja.Compile(scriptID, source, true)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", scriptID, err)
	}
	return &program{id: scriptID, prog: p}, nil
}

// New creates a fresh runtime for a single execution.
func (f *Factory) New(cfg vm.InstanceConfig) (vm.Instance, error) {
	rt := goja.New()
	if f.limits.MaxCallStackSize > 0 {
		rt.SetMaxCallStackSize(f.limits.MaxCallStackSize)
	}

	if f.console {
		registry := require.NewRegistry()
		if cfg.LogWriter != nil {
			registry.RegisterNativeModule(console.ModuleName,
				console.RequireWithPrinter(printer{write: cfg.LogWriter}))
		}
		registry.Enable(rt)
		console.Enable(rt)
	}

	activeInstances.Inc()
	return &instance{rt: rt}, nil
}

type program struct {
	id   string
	prog *goja.Program
}

func (p *program) ID() string { return p.id }

type instance struct {
	rt *goja.Runtime
}

func (i *instance) Bind(name string, value any) error {
	if err := i.rt.Set(name, value); err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	return nil
}

func (i *instance) Run(p vm.Program) error {
	gp, ok := p.(*program)
	if !ok {
		return fmt.Errorf("program %q was not compiled by this engine", p.ID())
	}

	_, err := i.rt.RunProgram(gp.prog)
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		interruptsTotal.Inc()
		return fmt.Errorf("%s: %w: %v", gp.id, vm.ErrInterrupted, interrupted.Value())
	}
	return fmt.Errorf("run %s: %w", gp.id, err)
}

func (i *instance) Interrupt(reason string) {
	i.rt.Interrupt(reason)
}

func (i *instance) Close() {
	// Lift any pending interrupt so the runtime is collectable even if the
	// watchdog fired after Run returned.
	i.rt.ClearInterrupt()
	activeInstances.Dec()
}

// printer routes script console output to the per-execution log sink.
type printer struct {
	write func(string)
}

func (p printer) Log(s string)   { p.write(s) }
func (p printer) Warn(s string)  { p.write(s) }
func (p printer) Error(s string) { p.write(s) }
