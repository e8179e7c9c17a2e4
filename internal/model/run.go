package model

import "time"

// Run status constants.
const (
	RunRunning  = "running"
	RunFinished = "finished"
)

// Attempt status constants.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
)

// Phase name constants.
const (
	PhaseSetUp    = "setUp"
	PhaseBody     = "body"
	PhaseTearDown = "tearDown"
)

// validTransitions maps each attempt status to the set of statuses it may
// transition to. Attempts are terminal once passed or failed.
var validTransitions = map[string]map[string]bool{
	StatusRunning: {
		StatusPassed: true,
		StatusFailed: true,
	},
}

// ValidTransition reports whether transitioning from one attempt status to
// another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// PhaseError tags a captured failure with the phase that raised it. The
// underlying value is preserved unmodified and reachable via Unwrap; phases
// are the only distinction between error kinds.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return e.Phase + ": " + e.Err.Error()
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Run represents one pass of the driver over a registered suite.
type Run struct {
	ID         string     `json:"id"`
	Suite      string     `json:"suite"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	Passes     int        `json:"passes"`
	Failures   int        `json:"failures"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Attempt represents one test cycle within a run: a single walk through
// setUp, body, and tearDown for one descriptor.
type Attempt struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	TestName   string     `json:"test_name"`
	Status     string     `json:"status"`
	ErrorCount int        `json:"error_count"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// AttemptError is a single captured phase failure, ordered by Seq within its
// attempt. An attempt holds at most two: one from setUp or body, one from
// tearDown.
type AttemptError struct {
	AttemptID string    `json:"attempt_id"`
	Seq       int       `json:"seq"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// LogLine represents a single persisted log line from a run.
type LogLine struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}
