// Package taskq provides the shared single-goroutine task loop that the
// phase driver submits work to. Tasks run one at a time in FIFO order; a
// running task may spawn follow-up tasks, and a submitter can wait for the
// loop to drain everything before observing the outcome.
package taskq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrClosed is returned when submitting to a loop that has been closed.
var ErrClosed = errors.New("task loop closed")

// TaskFunc is a unit of work executed by the loop.
type TaskFunc func(ctx context.Context) error

// PanicError wraps a value recovered from a panicking task so the original
// thrown value survives the trip through the error return.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// settlement records the first failure observed in a task's spawn tree.
type settlement struct {
	err error
}

type task struct {
	ctx  context.Context
	desc string
	fn   TaskFunc
	st   *settlement
}

// Loop is a cooperative single-threaded task scheduler. All tasks, including
// ones spawned transitively from running tasks, execute on one goroutine in
// submission order. The loop is shared: multiple submitters may have tasks
// pending at once, and idle means every one of them has drained.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   []*task
	pending int // queued + currently executing
	current *task
	closed  bool
	waiters []chan struct{}

	wake chan struct{}
	done chan struct{}
}

// NewLoop creates a loop and starts its worker goroutine.
func NewLoop(logger *slog.Logger) *Loop {
	l := &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.work()
	return l
}

// RunToIdle submits fn to the loop and blocks until the loop has drained all
// pending work, then reports the first error attributed to fn's spawn tree.
// A panicking task does not take the loop down; the recovered value is
// returned wrapped in a PanicError and the loop keeps serving later tasks.
func (l *Loop) RunToIdle(ctx context.Context, desc string, fn TaskFunc) error {
	st := &settlement{}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, &task{ctx: ctx, desc: desc, fn: fn, st: st})
	l.pending++
	idle := make(chan struct{})
	l.waiters = append(l.waiters, idle)
	l.mu.Unlock()

	l.logger.Debug("task scheduled", "desc", desc)
	l.signal()

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return st.err
}

// Spawn enqueues a follow-up task without waiting for it. When called from
// inside a running task, failures of the spawned task settle against that
// task's submitter; otherwise they are not attributed to anyone.
func (l *Loop) Spawn(desc string, fn TaskFunc) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	st := &settlement{}
	ctx := context.Background()
	if l.current != nil {
		st = l.current.st
		ctx = l.current.ctx
	}
	l.queue = append(l.queue, &task{ctx: ctx, desc: desc, fn: fn, st: st})
	l.pending++
	l.mu.Unlock()

	l.logger.Debug("task spawned", "desc", desc)
	l.signal()
	return nil
}

// Close stops the loop after the queue drains. Safe to call once.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.signal()
	<-l.done
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// work is the single worker goroutine. It pops tasks in FIFO order, recovers
// panics, records first-error settlements, and notifies idle waiters whenever
// the pending count returns to zero.
func (l *Loop) work() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			if l.closed {
				l.mu.Unlock()
				close(l.done)
				return
			}
			l.mu.Unlock()
			<-l.wake
			continue
		}
		t := l.queue[0]
		l.queue = l.queue[1:]
		l.current = t
		l.mu.Unlock()

		err := l.execute(t)

		l.mu.Lock()
		l.current = nil
		if err != nil {
			l.logger.Debug("task failed", "desc", t.desc, "error", err)
			if t.st.err == nil {
				t.st.err = err
			}
		}
		l.pending--
		if l.pending == 0 {
			for _, ch := range l.waiters {
				close(ch)
			}
			l.waiters = nil
		}
		l.mu.Unlock()
	}
}

// execute runs one task, converting panics into PanicError values.
func (l *Loop) execute(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return t.fn(t.ctx)
}
