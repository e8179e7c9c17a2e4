package run

import "github.com/seantiz/crucible/internal/model"

// Collector accumulates phase failures for one test cycle. Errors are kept
// in arrival order with no deduplication; a cycle records at most two (one
// from setUp or body, one from tearDown).
type Collector struct {
	outcome *model.Outcome
}

// NewCollector creates an empty collector for the named test.
func NewCollector(testName string) *Collector {
	return &Collector{outcome: model.NewOutcome(testName)}
}

// Record appends a captured phase error.
func (c *Collector) Record(err error) {
	c.outcome.Errors = append(c.outcome.Errors, err)
}

// HasErrors reports whether any phase failed so far.
func (c *Collector) HasErrors() bool {
	return len(c.outcome.Errors) > 0
}

// Drain returns the collected errors in arrival order and resets the
// collector. The outcome is consumed exactly once per cycle.
func (c *Collector) Drain() []error {
	errs := c.outcome.Errors
	c.outcome.Errors = nil
	return errs
}
