// Package registry holds the registered tests of a suite and implements the
// capability set the phase driver depends on: iteration, logging, attempt
// counting, and the reporting sinks. Outcomes are persisted to the store and
// log lines are fanned out through the event broker.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/crucible/internal/event"
	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/store"
)

// ErrAlreadyBegun is returned when tests are registered after Begin.
var ErrAlreadyBegun = errors.New("suite already begun")

// Suite is a concrete test registry. Its iterator is finite and one-shot;
// restarting a suite means building a fresh Suite.
type Suite struct {
	name   string
	store  store.Store
	broker *event.Broker
	logger *slog.Logger

	mu       sync.Mutex
	tests    []*model.Test
	idx      int
	run      *model.Run
	attempts int
	passes   int
	failures int
	logSeq   int

	current      *model.Attempt
	currentStart time.Time
	currentErrs  int
}

// New creates an empty suite with the given display name.
func New(name string, s store.Store, b *event.Broker, logger *slog.Logger) *Suite {
	return &Suite{
		name:   name,
		store:  s,
		broker: b,
		logger: logger,
	}
}

// Register adds a test descriptor to the suite. Registration is closed once
// Begin has been called.
func (s *Suite) Register(t *model.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return ErrAlreadyBegun
	}
	s.tests = append(s.tests, t)
	return nil
}

// RegisterFunc is a convenience wrapper around Register.
func (s *Suite) RegisterFunc(name string, scope any, setUp, body, tearDown model.PhaseFunc) error {
	return s.Register(&model.Test{
		Name:     name,
		Scope:    scope,
		SetUp:    setUp,
		Body:     body,
		TearDown: tearDown,
	})
}

// Begin opens a persisted run for this suite. It must be called once, before
// the driver starts cycling.
func (s *Suite) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return ErrAlreadyBegun
	}
	r := &model.Run{
		ID:        model.NewID(),
		Suite:     s.name,
		Status:    model.RunRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, r); err != nil {
		return err
	}
	s.run = r
	return nil
}

// RunID returns the persisted run identifier, or "" before Begin.
func (s *Suite) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return ""
	}
	return s.run.ID
}

// Len returns the number of registered tests.
func (s *Suite) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tests)
}

// Next advances the iterator over registered tests.
func (s *Suite) Next() (*model.Test, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.tests) {
		return nil, false
	}
	t := s.tests[s.idx]
	s.idx++
	return t, true
}

// Log emits one suite log line: structured log, persisted line, and broker
// fan-out. Store failures are logged and otherwise ignored; reporting must
// never fail a cycle.
func (s *Suite) Log(msg string) {
	s.mu.Lock()
	seq := s.logSeq
	s.logSeq++
	run := s.run
	s.mu.Unlock()

	s.logger.Info(msg, "suite", s.name)
	if run == nil {
		return
	}
	if err := s.store.InsertLogLine(context.Background(), run.ID, seq, msg); err != nil {
		s.logger.Error("persist log line", "run_id", run.ID, "seq", seq, "error", err)
	}
	s.broker.Publish(run.ID, msg)
}

// RecordStart increments the attempt counter and opens a persisted attempt
// for the test. Called by the driver before the test's first phase.
func (s *Suite) RecordStart(t *model.Test) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	a := &model.Attempt{
		ID:        model.NewID(),
		RunID:     s.runID(),
		TestName:  t.Name,
		Status:    model.StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	s.current = a
	s.currentStart = time.Now()
	s.currentErrs = 0

	if s.run == nil {
		return
	}
	if err := s.store.CreateAttempt(context.Background(), a); err != nil {
		s.logger.Error("persist attempt", "test", t.Name, "error", err)
	}
}

// Success reports a clean cycle for the test: exactly one call per test with
// zero recorded errors.
func (s *Suite) Success(t *model.Test) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passes++
	s.logger.Info("test passed", "suite", s.name, "test", t.Name)
	s.settleCurrent(model.StatusPassed)
}

// Error reports one captured phase failure for the test. A cycle can report
// up to two (body and tearDown); the first marks the attempt failed, later
// ones are recorded additively.
func (s *Suite) Error(t *model.Test, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase := ""
	var pe *model.PhaseError
	if errors.As(err, &pe) {
		phase = pe.Phase
	}
	s.logger.Warn("test failed", "suite", s.name, "test", t.Name, "phase", phase, "error", err)

	seq := s.currentErrs
	s.currentErrs++
	if seq == 0 {
		s.failures++
		s.settleCurrent(model.StatusFailed)
	}

	if s.run == nil || s.current == nil {
		return
	}
	ae := &model.AttemptError{
		AttemptID: s.current.ID,
		Seq:       seq,
		Phase:     phase,
		Message:   err.Error(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendAttemptError(context.Background(), ae); err != nil {
		s.logger.Error("persist attempt error", "test", t.Name, "error", err)
	}
}

// Finalize closes the run: summary log line, persisted final counters, and
// the broker topic. Called exactly once, when the iterator is exhausted.
func (s *Suite) Finalize() {
	s.mu.Lock()
	run := s.run
	attempts, passes, failures := s.attempts, s.passes, s.failures
	s.mu.Unlock()

	s.logger.Info("suite finished",
		"suite", s.name,
		"attempts", attempts,
		"passes", passes,
		"failures", failures,
	)

	if run == nil {
		return
	}
	if err := s.store.FinishRun(context.Background(), run.ID, attempts, passes, failures); err != nil {
		s.logger.Error("finish run", "run_id", run.ID, "error", err)
	}
	s.broker.Close(run.ID)
}

// After exposes the inter-cycle timer to the driver.
func (s *Suite) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Counters returns the live attempt/pass/failure counters.
func (s *Suite) Counters() (attempts, passes, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, s.passes, s.failures
}

// settleCurrent finishes the open attempt with the given terminal status.
// Caller holds s.mu.
func (s *Suite) settleCurrent(status string) {
	if s.run == nil || s.current == nil {
		return
	}
	durMS := int(time.Since(s.currentStart).Milliseconds())
	if err := s.store.FinishAttempt(context.Background(), s.current.ID, status, durMS); err != nil {
		s.logger.Error("settle attempt", "attempt_id", s.current.ID, "status", status, "error", err)
	}
}

// runID returns the current run ID. Caller holds s.mu.
func (s *Suite) runID() string {
	if s.run == nil {
		return ""
	}
	return s.run.ID
}
