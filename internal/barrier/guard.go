package barrier

import (
	"fmt"
	"sync"
)

// Task names the mutually-exclusive maintenance operations a Guard
// arbitrates (spec.md §4.14 "at most one of {compact, split,
// relinquish, purge_memory} runs at a time on a range").
type Task string

const (
	TaskCompact     Task = "compact"
	TaskSplit       Task = "split"
	TaskRelinquish  Task = "relinquish"
	TaskPurgeMemory Task = "purge_memory"
)

// ErrBusy is returned by Guard.Start when another task is already
// running on the range.
var ErrBusy = fmt.Errorf("barrier: range maintenance task already running")

// ErrDropped is returned by Guard.Start once the range has been
// dropped; no further maintenance tasks may start.
var ErrDropped = fmt.Errorf("barrier: range dropped")

// Guard is a per-range activator: at most one maintenance task runs at
// a time, and Drop cancels whatever is in flight and blocks all future
// tasks.
type Guard struct {
	mu      sync.Mutex
	running Task
	cancel  func()
	dropped bool
}

// NewGuard returns an idle Guard.
func NewGuard() *Guard { return &Guard{} }

// Start begins task unless another task is running or the range has
// been dropped. cancel, if non-nil, is invoked by Drop to cancel the
// task's in-flight work. The caller must call Finish when the task
// completes (successfully or not).
func (g *Guard) Start(task Task, cancel func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dropped {
		return ErrDropped
	}
	if g.running != "" {
		return fmt.Errorf("%w: %s running, requested %s", ErrBusy, g.running, task)
	}
	g.running = task
	g.cancel = cancel
	return nil
}

// Finish clears the running task, whatever it was. Safe to call even if
// no task is running.
func (g *Guard) Finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.running = ""
	g.cancel = nil
}

// Running reports the currently running task, or "" if idle.
func (g *Guard) Running() Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Drop cancels any in-flight task and permanently blocks future ones
// (spec.md §4.14 "drop_range cancels any in-progress task").
func (g *Guard) Drop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropped = true
	if g.cancel != nil {
		g.cancel()
	}
	g.running = ""
	g.cancel = nil
}
