package run

import (
	"context"

	"github.com/seantiz/crucible/internal/model"
)

// runPhase submits one phase of a test to the shared loop and blocks until
// the loop drains everything the phase triggered, directly or transitively.
// The returned error is the phase's settlement: nil on success, otherwise
// the captured failure tagged with the phase that raised it (panics arrive
// wrapped in taskq.PanicError with the thrown value intact underneath). A
// failing phase leaves the loop usable.
func (d *Driver) runPhase(ctx context.Context, t *model.Test, phase string, fn model.PhaseFunc) error {
	task := model.Task{
		Description: t.Name + "." + phase,
		Fn:          fn,
		Scope:       t.Scope,
	}

	d.logger.Debug("phase submitted", "test", t.Name, "phase", phase)

	err := d.sched.RunToIdle(ctx, task.Description, task.Run)
	if err != nil {
		phaseFailuresTotal.WithLabelValues(phase).Inc()
		return &model.PhaseError{Phase: phase, Err: err}
	}
	return nil
}
