package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/cinder/internal/model"

	_ "modernc.org/sqlite"
)

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
    id          TEXT PRIMARY KEY,
    script_id   TEXT NOT NULL,
    status      TEXT NOT NULL,
    source      TEXT NOT NULL,
    cache_hit   INTEGER NOT NULL DEFAULT 0,
    error       TEXT,
    timeout_ms  INTEGER,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createLogLinesTable = `
CREATE TABLE IF NOT EXISTS execution_logs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    execution_id TEXT NOT NULL,
    seq          INTEGER NOT NULL,
    line         TEXT NOT NULL,
    created_at   DATETIME NOT NULL
)`

// ErrNotFound is returned when an execution is not found.
var ErrNotFound = errors.New("execution not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single pooled connection keeps every caller on the same database;
	// in-memory databases exist per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createExecutionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create executions table: %w", err)
	}

	if _, err := db.Exec(createLogLinesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create execution_logs table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateExecution inserts a new execution record.
func (s *SQLiteStore) CreateExecution(ctx context.Context, ex *model.Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (
			id, script_id, status, source, cache_hit, error,
			timeout_ms, duration_ms, created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.ScriptID, ex.Status, ex.Source, ex.CacheHit, ex.Error,
		ex.TimeoutMS, ex.DurationMS, ex.CreatedAt, ex.StartedAt, ex.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	ex := &model.Execution{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, script_id, status, source, cache_hit, error,
			timeout_ms, duration_ms, created_at, started_at, finished_at
		FROM executions WHERE id = ?`, id,
	).Scan(
		&ex.ID, &ex.ScriptID, &ex.Status, &ex.Source, &ex.CacheHit, &ex.Error,
		&ex.TimeoutMS, &ex.DurationMS, &ex.CreatedAt, &ex.StartedAt, &ex.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return ex, nil
}

// ListExecutions returns a paginated list of executions ordered by
// created_at DESC, along with the total count of all executions.
func (s *SQLiteStore) ListExecutions(ctx context.Context, limit, offset int) ([]*model.Execution, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, script_id, status, source, cache_hit, error,
			timeout_ms, duration_ms, created_at, started_at, finished_at
		FROM executions ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []*model.Execution
	for rows.Next() {
		ex := &model.Execution{}
		if err := rows.Scan(
			&ex.ID, &ex.ScriptID, &ex.Status, &ex.Source, &ex.CacheHit, &ex.Error,
			&ex.TimeoutMS, &ex.DurationMS, &ex.CreatedAt, &ex.StartedAt, &ex.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate executions: %w", err)
	}

	return executions, total, nil
}

// UpdateExecutionStatus updates the status of an execution. Terminal
// statuses also set finished_at; running sets started_at.
func (s *SQLiteStore) UpdateExecutionStatus(ctx context.Context, id, status string) error {
	var result sql.Result
	var err error

	switch {
	case model.Terminal(status):
		result, err = s.db.ExecContext(ctx,
			"UPDATE executions SET status = ?, finished_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	case status == model.StatusRunning:
		result, err = s.db.ExecContext(ctx,
			"UPDATE executions SET status = ?, started_at = ? WHERE id = ?",
			status, time.Now().UTC(), id,
		)
	default:
		result, err = s.db.ExecContext(ctx,
			"UPDATE executions SET status = ? WHERE id = ?",
			status, id,
		)
	}

	if err != nil {
		return fmt.Errorf("update execution status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateExecution writes the terminal fields of an execution record.
func (s *SQLiteStore) UpdateExecution(ctx context.Context, ex *model.Execution) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE executions SET
			status = ?, cache_hit = ?, error = ?, duration_ms = ?,
			started_at = COALESCE(?, started_at), finished_at = ?
		WHERE id = ?`,
		ex.Status, ex.CacheHit, ex.Error, ex.DurationMS,
		ex.StartedAt, ex.FinishedAt, ex.ID,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// GetExecutionStats aggregates counts by status, cache-hit total, and the
// average duration across finished executions.
func (s *SQLiteStore) GetExecutionStats(ctx context.Context) (*ExecutionStats, error) {
	stats := &ExecutionStats{CountByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM executions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM executions WHERE cache_hit = 1",
	).Scan(&stats.CacheHits); err != nil {
		return nil, fmt.Errorf("count cache hits: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM executions WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}

// InsertLogLine persists one console line for an execution.
func (s *SQLiteStore) InsertLogLine(ctx context.Context, executionID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO execution_logs (execution_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		executionID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns all persisted console lines for an execution in
// sequence order.
func (s *SQLiteStore) GetLogLines(ctx context.Context, executionID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, seq, line, created_at
		FROM execution_logs WHERE execution_id = ? ORDER BY seq ASC`, executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	var lines []model.LogLine
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.ExecutionID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}

	return lines, nil
}
