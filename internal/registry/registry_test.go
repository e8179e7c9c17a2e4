package registry_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/seantiz/crucible/internal/event"
	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/registry"
	"github.com/seantiz/crucible/internal/run"
	"github.com/seantiz/crucible/internal/store"
	"github.com/seantiz/crucible/internal/taskq"
)

func newTestSuite(t *testing.T, name string) (*registry.Suite, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return registry.New(name, s, event.NewBroker(), logger), s
}

func TestRegisterAfterBeginRejected(t *testing.T) {
	suite, _ := newTestSuite(t, "smoke")

	if err := suite.RegisterFunc("t1", nil, nil, nil, nil); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := suite.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if err := suite.RegisterFunc("t2", nil, nil, nil, nil); !errors.Is(err, registry.ErrAlreadyBegun) {
		t.Errorf("RegisterFunc after Begin = %v, want ErrAlreadyBegun", err)
	}
	if err := suite.Begin(context.Background()); !errors.Is(err, registry.ErrAlreadyBegun) {
		t.Errorf("second Begin = %v, want ErrAlreadyBegun", err)
	}
}

func TestIteratorIsFiniteAndOneShot(t *testing.T) {
	suite, _ := newTestSuite(t, "smoke")
	for _, name := range []string{"a", "b"} {
		if err := suite.RegisterFunc(name, nil, nil, nil, nil); err != nil {
			t.Fatalf("RegisterFunc: %v", err)
		}
	}

	var names []string
	for {
		test, ok := suite.Next()
		if !ok {
			break
		}
		names = append(names, test.Name)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("iterated %v, want [a b]", names)
	}

	if _, ok := suite.Next(); ok {
		t.Error("exhausted iterator yielded another test")
	}
}

func TestSuitePersistsOutcomes(t *testing.T) {
	suite, st := newTestSuite(t, "persisted")
	ctx := context.Background()

	boom := errors.New("boom")
	cleanup := errors.New("cleanup failed")
	tests := []*model.Test{
		{Name: "passes"},
		{Name: "fails_twice",
			Body:     func(context.Context, any) error { return boom },
			TearDown: func(context.Context, any) error { return cleanup },
		},
	}
	for _, tc := range tests {
		if err := suite.Register(tc); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := suite.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	loop := taskq.NewLoop(logger)
	t.Cleanup(loop.Close)

	d := run.New("persisted", suite, loop, logger)
	d.Delay = 0
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	attempts, passes, failures := suite.Counters()
	if attempts != 2 || passes != 1 || failures != 1 {
		t.Errorf("counters = %d/%d/%d, want 2/1/1", attempts, passes, failures)
	}

	r, err := st.GetRun(ctx, suite.RunID())
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != model.RunFinished || r.Attempts != 2 || r.Passes != 1 || r.Failures != 1 {
		t.Errorf("run = %+v, want finished 2/1/1", r)
	}

	persisted, err := st.ListAttempts(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("got %d attempts, want 2", len(persisted))
	}
	if persisted[0].TestName != "passes" || persisted[0].Status != model.StatusPassed {
		t.Errorf("attempt[0] = %+v, want passed", persisted[0])
	}
	if persisted[1].TestName != "fails_twice" || persisted[1].Status != model.StatusFailed || persisted[1].ErrorCount != 2 {
		t.Errorf("attempt[1] = %+v, want failed with 2 errors", persisted[1])
	}

	attemptErrs, err := st.GetAttemptErrors(ctx, persisted[1].ID)
	if err != nil {
		t.Fatalf("GetAttemptErrors: %v", err)
	}
	if len(attemptErrs) != 2 {
		t.Fatalf("got %d attempt errors, want 2", len(attemptErrs))
	}
	if attemptErrs[0].Phase != model.PhaseBody || attemptErrs[1].Phase != model.PhaseTearDown {
		t.Errorf("error phases = [%s, %s], want [body, tearDown]", attemptErrs[0].Phase, attemptErrs[1].Phase)
	}
}

func TestSuiteLogPersistsAndStreams(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	broker := event.NewBroker()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	suite := registry.New("logging", st, broker, logger)

	if err := suite.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	ch, unsub := broker.Subscribe(suite.RunID())
	defer unsub()

	suite.Log("Running test: t1")

	select {
	case line := <-ch:
		if line != "Running test: t1" {
			t.Errorf("streamed line = %q, want %q", line, "Running test: t1")
		}
	default:
		t.Fatal("no line streamed to subscriber")
	}

	lines, err := st.GetLogLines(context.Background(), suite.RunID())
	if err != nil {
		t.Fatalf("GetLogLines: %v", err)
	}
	if len(lines) != 1 || lines[0].Line != "Running test: t1" {
		t.Errorf("persisted lines = %+v, want one line", lines)
	}
}

func TestLateSubscriberAfterFinalize(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	broker := event.NewBroker()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	suite := registry.New("smoke", st, broker, logger)

	if err := suite.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	suite.Finalize()

	ch, unsub := broker.Subscribe(suite.RunID())
	defer unsub()
	if _, ok := <-ch; ok {
		t.Error("subscriber to finalized run should get a closed channel")
	}
}
