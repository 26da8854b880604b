// Package vm defines the contract between the execution core and the
// embedded script engine. Each engine implementation (goja today) provides a
// Factory that compiles source text into opaque Programs and mints one
// disposable Instance per execution, so that interruption is always precise
// to a single script run.
package vm
