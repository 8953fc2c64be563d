package recovery

import (
	"sync"

	"github.com/rangekit/rangekit/pkg/schema"
)

// RangeBit is one stage of a range's recovery progress.
type RangeBit uint8

const (
	BitLoaded RangeBit = 1 << iota
	BitReplayed
	BitPrepared
	BitCommitted
)

// PhantomRangeMap tracks every range's recovery progress as a set of
// monotonic bits (spec.md §4.13 "a per-range PhantomRangeMap whose
// bits ... are monotonic"). BeginGeneration resets the whole map when
// the plan generation advances, discarding a superseded plan's
// in-flight progress (spec.md §4.13 "Idempotence... receivers reset
// their phantom maps").
type PhantomRangeMap struct {
	mu         sync.Mutex
	generation uint64
	bits       map[schema.QualifiedRange]RangeBit
}

// NewPhantomRangeMap constructs an empty map at generation 0.
func NewPhantomRangeMap() *PhantomRangeMap {
	return &PhantomRangeMap{bits: make(map[schema.QualifiedRange]RangeBit)}
}

// BeginGeneration resets every range's bits if generation differs from
// the map's current one, reporting whether a reset occurred.
func (m *PhantomRangeMap) BeginGeneration(generation uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if generation == m.generation {
		return false
	}
	m.generation = generation
	m.bits = make(map[schema.QualifiedRange]RangeBit)
	return true
}

// Mark sets bit on qr, in addition to any bits already set.
func (m *PhantomRangeMap) Mark(qr schema.QualifiedRange, bit RangeBit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bits[qr] |= bit
}

// Has reports whether qr has bit set.
func (m *PhantomRangeMap) Has(qr schema.QualifiedRange, bit RangeBit) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bits[qr]&bit == bit
}

// Live reports whether qr has reached BitCommitted — the only point
// at which a receiver may serve traffic for it (spec.md §4.13 "Only
// after COMMITTED does the receiver make the range live").
func (m *PhantomRangeMap) Live(qr schema.QualifiedRange) bool {
	return m.Has(qr, BitCommitted)
}
