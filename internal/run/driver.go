package run

import (
	"context"
	"log/slog"
	"time"

	"github.com/seantiz/crucible/internal/model"
	"github.com/seantiz/crucible/internal/taskq"
)

// DefaultCycleDelay is the quiescence pause between consecutive test cycles.
// It gives registry-level reporting a chance to settle before the next
// test's logging begins; it is not needed for phase ordering.
const DefaultCycleDelay = 100 * time.Millisecond

// DefaultSuiteName is used when the driver is constructed without a display
// name.
const DefaultSuiteName = "test suite"

// Registry is the capability set the driver requires from the suite
// registry: test iteration, logging, attempt counting, reporting sinks, and
// the inter-cycle timer.
type Registry interface {
	Next() (*model.Test, bool)
	Log(msg string)
	RecordStart(t *model.Test)
	Success(t *model.Test)
	Error(t *model.Test, err error)
	Finalize()
	After(d time.Duration) <-chan time.Time
}

// Scheduler is the contract the driver requires from the shared task loop:
// run the submitted task plus everything it transitively spawns until the
// loop drains, then settle with the first captured error.
type Scheduler interface {
	RunToIdle(ctx context.Context, desc string, fn taskq.TaskFunc) error
}

// Driver walks each test from the registry through setUp, body, and
// tearDown on the shared loop. Phases never overlap: the next phase is only
// submitted after the previous one's settlement is observed, and the next
// test only starts after the current one settles and the cycle delay
// elapses.
type Driver struct {
	name   string
	reg    Registry
	sched  Scheduler
	logger *slog.Logger

	// Delay is the pause between test cycles. Defaults to DefaultCycleDelay.
	Delay time.Duration

	finalized bool
}

// New creates a driver for the given registry and scheduler. An empty name
// falls back to DefaultSuiteName.
func New(name string, reg Registry, sched Scheduler, logger *slog.Logger) *Driver {
	if name == "" {
		name = DefaultSuiteName
	}
	return &Driver{
		name:   name,
		reg:    reg,
		sched:  sched,
		logger: logger,
		Delay:  DefaultCycleDelay,
	}
}

// Name returns the suite display name.
func (d *Driver) Name() string {
	return d.name
}

// Run cycles through the registry until the iterator is exhausted, pausing
// Delay between cycles. Test failures never stop the run; only context
// cancellation does.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info("suite started", "suite", d.name)
	for {
		more, err := d.RunCycle(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		select {
		case <-d.reg.After(d.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunCycle runs a single test cycle. It reports false once the registry's
// iterator is exhausted, after invoking Finalize exactly once.
func (d *Driver) RunCycle(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	t, ok := d.reg.Next()
	if !ok {
		if !d.finalized {
			d.finalized = true
			d.reg.Finalize()
		}
		return false, nil
	}

	start := time.Now()
	d.cycle(ctx, t)
	cycleDuration.Observe(time.Since(start).Seconds())

	return true, ctx.Err()
}

// cycle walks one test through its three phases and settles the outcome.
// tearDown is unconditional; body runs only when setUp succeeded. A failing
// body does not mask a failing tearDown: both errors are reported.
func (d *Driver) cycle(ctx context.Context, t *model.Test) {
	d.reg.RecordStart(t)
	d.reg.Log("Running test: " + t.Name)

	col := NewCollector(t.Name)
	if err := d.runPhase(ctx, t, model.PhaseSetUp, t.SetUp); err != nil {
		col.Record(err)
	} else if err := d.runPhase(ctx, t, model.PhaseBody, t.Body); err != nil {
		col.Record(err)
	}
	if err := d.runPhase(ctx, t, model.PhaseTearDown, t.TearDown); err != nil {
		col.Record(err)
	}

	if !col.HasErrors() {
		d.reg.Success(t)
		attemptsTotal.WithLabelValues(model.StatusPassed).Inc()
		return
	}
	for _, err := range col.Drain() {
		d.reg.Error(t, err)
	}
	attemptsTotal.WithLabelValues(model.StatusFailed).Inc()
}
