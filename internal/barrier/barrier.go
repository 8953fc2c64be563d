// Package barrier implements the reader/exclusive gate a Range uses to
// keep structural mutations (split, relinquish, compaction boundaries)
// from racing ordinary adds and scans (spec.md §4.14).
//
// It is the same shape as hivekit's hive/tx sequencing: many readers
// proceed concurrently against a stable generation; a writer that needs
// exclusive access waits for the in-flight generation to drain, then
// holds the gate alone until it releases.
package barrier

import "sync"

// Barrier excludes new "entrants" (ordinary operations) while an
// exclusive holder is active, and lets an exclusive holder wait for
// already-admitted entrants to finish before it proceeds.
type Barrier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	entrants int
	held     bool
}

// New returns a ready-to-use Barrier.
func New() *Barrier {
	b := &Barrier{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Enter blocks while the barrier is held exclusively, then registers the
// caller as an entrant. Callers must call Exit when done.
func (b *Barrier) Enter() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.held {
		b.cond.Wait()
	}
	b.entrants++
}

// Exit unregisters an entrant admitted by Enter.
func (b *Barrier) Exit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entrants--
	if b.entrants == 0 {
		b.cond.Broadcast()
	}
}

// ScopedActivator blocks new entrants, waits for in-flight entrants to
// drain, then returns a release function that must be called to reopen
// the barrier to new entrants. Only one exclusive holder is permitted at
// a time; concurrent callers serialize on acquiring it.
func (b *Barrier) ScopedActivator() func() {
	b.mu.Lock()
	for b.held {
		b.cond.Wait()
	}
	b.held = true
	for b.entrants > 0 {
		b.cond.Wait()
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.held = false
			b.cond.Broadcast()
			b.mu.Unlock()
		})
	}
}
