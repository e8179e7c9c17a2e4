package model

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusRunning, StatusPassed, true},
		{StatusRunning, StatusFailed, true},
		{StatusPassed, StatusRunning, false},
		{StatusPassed, StatusFailed, false},
		{StatusFailed, StatusPassed, false},
		{StatusRunning, StatusRunning, false},
		{"bogus", StatusPassed, false},
	}
	for _, c := range cases {
		if got := ValidTransition(c.from, c.to); got != c.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTaskRunNilFn(t *testing.T) {
	task := Task{Description: "t.setUp"}
	if err := task.Run(context.Background()); err != nil {
		t.Errorf("nil phase returned error: %v", err)
	}
}

func TestTaskRunBindsScope(t *testing.T) {
	type fixture struct{ touched bool }
	f := &fixture{}
	task := Task{
		Description: "t.body",
		Scope:       f,
		Fn: func(_ context.Context, scope any) error {
			scope.(*fixture).touched = true
			return nil
		},
	}
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !f.touched {
		t.Error("phase did not receive the bound scope")
	}
}

func TestTaskRunPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	task := Task{
		Description: "t.body",
		Fn:          func(context.Context, any) error { return boom },
	}
	if err := task.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run error = %v, want %v", err, boom)
	}
}
