package script

import (
	"fmt"
	"time"
)

// CompileError reports that a script's source failed to compile. The failure
// is surfaced synchronously, never cached and never retried.
type CompileError struct {
	ScriptID string
	Err      error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile script %q: %v", e.ScriptID, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// TimeoutError reports that the watchdog interrupted an execution that ran
// past the configured timeout. It wraps the raw interruption cause.
type TimeoutError struct {
	ScriptID string
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("script %q timed out after %s: %v", e.ScriptID, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// RuntimeError reports any other failure during evaluation: an uncaught
// script exception, a host-binding fault, or an engine fault.
type RuntimeError struct {
	ScriptID string
	Err      error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("script %q failed: %v", e.ScriptID, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
