package store

import (
	"context"

	"github.com/seantiz/cinder/internal/model"
)

// ExecutionStats holds aggregate execution statistics.
type ExecutionStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CacheHits     int            `json:"cache_hits"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for script executions.
type Store interface {
	CreateExecution(ctx context.Context, ex *model.Execution) error
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	ListExecutions(ctx context.Context, limit, offset int) ([]*model.Execution, int, error)
	UpdateExecutionStatus(ctx context.Context, id, status string) error
	UpdateExecution(ctx context.Context, ex *model.Execution) error
	GetExecutionStats(ctx context.Context) (*ExecutionStats, error)
	InsertLogLine(ctx context.Context, executionID string, seq int, line string) error
	GetLogLines(ctx context.Context, executionID string) ([]model.LogLine, error)
	Close() error
}
