// Package engine provides the script execution orchestrator. It drives each
// execution through its lifecycle (compiling, running, terminal states),
// persists transitions to the store, streams console output to subscribers,
// and exposes kill handles for in-flight runs.
package engine
