package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/crucible/internal/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    suite       TEXT NOT NULL,
    status      TEXT NOT NULL,
    attempts    INTEGER NOT NULL DEFAULT 0,
    passes      INTEGER NOT NULL DEFAULT 0,
    failures    INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
);
CREATE TABLE IF NOT EXISTS attempts (
    id          TEXT PRIMARY KEY,
    run_id      TEXT NOT NULL,
    test_name   TEXT NOT NULL,
    status      TEXT NOT NULL,
    error_count INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
);
CREATE TABLE IF NOT EXISTS attempt_errors (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    attempt_id TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    phase      TEXT NOT NULL,
    message    TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS log_lines (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

// ErrNotFound is returned when a run or attempt is not found.
var ErrNotFound = errors.New("not found")

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

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, suite, status, attempts, passes, failures, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Suite, r.Status, r.Attempts, r.Passes, r.Failures, r.CreatedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r := &model.Run{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, suite, status, attempts, passes, failures, created_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Suite, &r.Status, &r.Attempts, &r.Passes, &r.Failures, &r.CreatedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// along with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, suite, status, attempts, passes, failures, created_at, finished_at
		FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r := &model.Run{}
		if err := rows.Scan(&r.ID, &r.Suite, &r.Status, &r.Attempts, &r.Passes, &r.Failures, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// FinishRun marks a run as finished with its final counters.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, attempts, passes, failures int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, attempts = ?, passes = ?, failures = ?, finished_at = ?
		WHERE id = ?`,
		model.RunFinished, attempts, passes, failures, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return checkAffected(result)
}

// CreateAttempt inserts a new attempt record.
func (s *SQLiteStore) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, run_id, test_name, status, error_count, duration_ms, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.TestName, a.Status, a.ErrorCount, a.DurationMS, a.CreatedAt, a.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// FinishAttempt settles an attempt with its final status and duration. The
// transition from the current status must be valid. The error count is
// maintained by AppendAttemptError, not here.
func (s *SQLiteStore) FinishAttempt(ctx context.Context, id, status string, durationMS int) error {
	var current string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM attempts WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get attempt status: %w", err)
	}
	if !model.ValidTransition(current, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET status = ?, duration_ms = ?, finished_at = ?
		WHERE id = ?`,
		status, durationMS, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finish attempt: %w", err)
	}
	return checkAffected(result)
}

// ListAttempts returns all attempts of a run in creation order.
func (s *SQLiteStore) ListAttempts(ctx context.Context, runID string) ([]*model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, test_name, status, error_count, duration_ms, created_at, finished_at
		FROM attempts WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.Attempt
	for rows.Next() {
		a := &model.Attempt{}
		if err := rows.Scan(&a.ID, &a.RunID, &a.TestName, &a.Status, &a.ErrorCount, &a.DurationMS, &a.CreatedAt, &a.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return attempts, nil
}

// AppendAttemptError records one captured phase failure for an attempt and
// bumps the attempt's error count.
func (s *SQLiteStore) AppendAttemptError(ctx context.Context, e *model.AttemptError) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempt_errors (attempt_id, seq, phase, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.AttemptID, e.Seq, e.Phase, e.Message, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt error: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE attempts SET error_count = error_count + 1 WHERE id = ?", e.AttemptID,
	); err != nil {
		return fmt.Errorf("bump attempt error count: %w", err)
	}
	return nil
}

// GetAttemptErrors returns the captured errors of an attempt ordered by seq.
func (s *SQLiteStore) GetAttemptErrors(ctx context.Context, attemptID string) ([]model.AttemptError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt_id, seq, phase, message, created_at
		FROM attempt_errors WHERE attempt_id = ? ORDER BY seq ASC`, attemptID,
	)
	if err != nil {
		return nil, fmt.Errorf("get attempt errors: %w", err)
	}
	defer rows.Close()

	var errs []model.AttemptError
	for rows.Next() {
		var e model.AttemptError
		if err := rows.Scan(&e.AttemptID, &e.Seq, &e.Phase, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt error: %w", err)
		}
		errs = append(errs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt errors: %w", err)
	}

	return errs, nil
}

// InsertLogLine persists a single run log line.
func (s *SQLiteStore) InsertLogLine(ctx context.Context, runID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO log_lines (run_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		runID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns all log lines of a run ordered by seq.
func (s *SQLiteStore) GetLogLines(ctx context.Context, runID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, seq, line, created_at
		FROM log_lines WHERE run_id = ? ORDER BY seq ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	var lines []model.LogLine
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.RunID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}

	return lines, nil
}

// GetRunStats computes aggregate statistics across all runs and attempts.
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{AttemptsByStatus: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&stats.TotalRuns); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM attempts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count attempts by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan attempt count: %w", err)
		}
		stats.AttemptsByStatus[status] = count
		stats.TotalAttempts += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt counts: %w", err)
	}

	settled := stats.AttemptsByStatus[model.StatusPassed] + stats.AttemptsByStatus[model.StatusFailed]
	if settled > 0 {
		stats.PassRate = float64(stats.AttemptsByStatus[model.StatusPassed]) / float64(settled)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM attempts WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average attempt duration: %w", err)
	}
	if avg.Valid {
		stats.AvgAttemptMS = avg.Float64
	}

	return stats, nil
}

// checkAffected converts a zero-row update into ErrNotFound.
func checkAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
