package run_test

import (
	"errors"
	"testing"

	"github.com/seantiz/crucible/internal/run"
)

func TestCollectorOrderPreserved(t *testing.T) {
	c := run.NewCollector("t1")
	if c.HasErrors() {
		t.Error("fresh collector reports errors")
	}

	e1 := errors.New("first")
	e2 := errors.New("second")
	c.Record(e1)
	c.Record(e2)

	if !c.HasErrors() {
		t.Error("collector with records reports no errors")
	}

	errs := c.Drain()
	if len(errs) != 2 || !errors.Is(errs[0], e1) || !errors.Is(errs[1], e2) {
		t.Errorf("Drain() = %v, want [first, second]", errs)
	}
}

func TestCollectorDrainConsumes(t *testing.T) {
	c := run.NewCollector("t1")
	c.Record(errors.New("only"))

	if got := len(c.Drain()); got != 1 {
		t.Fatalf("first Drain() returned %d errors, want 1", got)
	}
	if c.HasErrors() {
		t.Error("collector still reports errors after Drain")
	}
	if got := len(c.Drain()); got != 0 {
		t.Errorf("second Drain() returned %d errors, want 0", got)
	}
}

func TestCollectorNoDeduplication(t *testing.T) {
	c := run.NewCollector("t1")
	same := errors.New("dup")
	c.Record(same)
	c.Record(same)

	if got := len(c.Drain()); got != 2 {
		t.Errorf("Drain() returned %d errors, want 2", got)
	}
}
