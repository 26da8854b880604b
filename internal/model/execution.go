package model

import "time"

// Execution status constants.
const (
	StatusPending   = "pending"
	StatusCompiling = "compiling"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusTimedOut  = "timed_out"
	StatusFailed    = "failed"
	StatusKilled    = "killed"
)

// validTransitions maps each status to the set of statuses it may transition to.
// A cache hit skips the compiling stage, so pending may go straight to running.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusCompiling: true,
		StatusRunning:   true,
		StatusFailed:    true,
		StatusKilled:    true,
	},
	StatusCompiling: {
		StatusRunning: true,
		StatusFailed:  true,
		StatusKilled:  true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusTimedOut:  true,
		StatusFailed:    true,
		StatusKilled:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether the given status is a terminal execution state.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusTimedOut, StatusFailed, StatusKilled:
		return true
	}
	return false
}

// LogLine represents a single persisted console line from a script execution.
type LogLine struct {
	ID          int64     `json:"id"`
	ExecutionID string    `json:"execution_id"`
	Seq         int       `json:"seq"`
	Line        string    `json:"line"`
	CreatedAt   time.Time `json:"created_at"`
}

// Execution represents a single script run submitted to the service.
// ScriptID identifies the logical script and doubles as its cache key;
// it stays stable across recompiles of the same script.
type Execution struct {
	ID         string     `json:"id"`
	ScriptID   string     `json:"script_id"`
	Status     string     `json:"status"`
	Source     string     `json:"source,omitempty"`
	CacheHit   bool       `json:"cache_hit"`
	Error      string     `json:"error,omitempty"`
	TimeoutMS  *int       `json:"timeout_ms,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
