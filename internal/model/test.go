package model

import "context"

// PhaseFunc is one lifecycle phase of a test, bound to the test's scope at
// invocation time. A nil PhaseFunc is treated as a no-op phase.
type PhaseFunc func(ctx context.Context, scope any) error

// Test describes a registered test: a name, an opaque receiver shared by all
// three phases, and the phase functions themselves. Descriptors are immutable
// once registered; the driver only reads them.
type Test struct {
	Name     string
	Scope    any
	SetUp    PhaseFunc
	Body     PhaseFunc
	TearDown PhaseFunc
}

// Task is a single phase bound to its scope, ready for submission to the
// task loop. Created fresh for every phase invocation.
type Task struct {
	Description string
	Fn          PhaseFunc
	Scope       any
}

// Run invokes the bound phase function. Nil functions succeed immediately.
func (t Task) Run(ctx context.Context) error {
	if t.Fn == nil {
		return nil
	}
	return t.Fn(ctx, t.Scope)
}

// Outcome accumulates the captured errors of one test cycle. A cycle can
// record zero, one, or two errors (body and tearDown can both fail). It is
// consumed exactly once when the cycle settles.
type Outcome struct {
	TestName string
	Errors   []error
}

// NewOutcome creates an empty outcome for the named test.
func NewOutcome(name string) *Outcome {
	return &Outcome{TestName: name}
}
