// Package store persists suite runs, test attempts, captured phase errors,
// and run log lines.
package store

import (
	"context"
	"errors"

	"github.com/seantiz/crucible/internal/model"
)

// ErrInvalidTransition is returned when an attempt status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// RunStats holds aggregate harness statistics.
type RunStats struct {
	TotalRuns        int            `json:"total_runs"`
	TotalAttempts    int            `json:"total_attempts"`
	AttemptsByStatus map[string]int `json:"attempts_by_status"`
	PassRate         float64        `json:"pass_rate"`
	AvgAttemptMS     float64        `json:"avg_attempt_ms"`
}

// Store defines the persistence operations for runs and attempts.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	FinishRun(ctx context.Context, id string, attempts, passes, failures int) error

	CreateAttempt(ctx context.Context, a *model.Attempt) error
	FinishAttempt(ctx context.Context, id, status string, durationMS int) error
	ListAttempts(ctx context.Context, runID string) ([]*model.Attempt, error)

	AppendAttemptError(ctx context.Context, e *model.AttemptError) error
	GetAttemptErrors(ctx context.Context, attemptID string) ([]model.AttemptError, error)

	InsertLogLine(ctx context.Context, runID string, seq int, line string) error
	GetLogLines(ctx context.Context, runID string) ([]model.LogLine, error)

	GetRunStats(ctx context.Context) (*RunStats, error)
	Close() error
}
