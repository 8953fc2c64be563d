package recovery

import (
	"sync"

	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
)

// ReplayBuffer batches decoded cells per destination range, flushing a
// range's pending batch once its own bytes cross perRangeLimit, or
// every pending range once the buffer's aggregate bytes cross
// aggregateLimit (spec.md §4.13 "route each cell to the receiver
// owning its range via a size-bounded ReplayBuffer (flush at per-range
// or aggregate limit)"). A zero limit disables that trigger.
type ReplayBuffer struct {
	perRangeLimit  int
	aggregateLimit int
	flush          func(qr schema.QualifiedRange, cells []cell.Cell) error

	mu           sync.Mutex
	pending      map[schema.QualifiedRange][]cell.Cell
	pendingBytes map[schema.QualifiedRange]int
	totalBytes   int
}

// NewReplayBuffer constructs a ReplayBuffer that calls flush whenever a
// range's (or the aggregate's) pending bytes cross their limit.
func NewReplayBuffer(perRangeLimit, aggregateLimit int, flush func(schema.QualifiedRange, []cell.Cell) error) *ReplayBuffer {
	return &ReplayBuffer{
		perRangeLimit:  perRangeLimit,
		aggregateLimit: aggregateLimit,
		flush:          flush,
		pending:        make(map[schema.QualifiedRange][]cell.Cell),
		pendingBytes:   make(map[schema.QualifiedRange]int),
	}
}

// Add appends c to qr's pending batch.
func (b *ReplayBuffer) Add(qr schema.QualifiedRange, c cell.Cell) error {
	size := cell.EncodedLen(c.Key, c.Value)

	b.mu.Lock()
	b.pending[qr] = append(b.pending[qr], c)
	b.pendingBytes[qr] += size
	b.totalBytes += size
	overRange := b.perRangeLimit > 0 && b.pendingBytes[qr] >= b.perRangeLimit
	overAggregate := b.aggregateLimit > 0 && b.totalBytes >= b.aggregateLimit
	b.mu.Unlock()

	if overRange {
		return b.flushRange(qr)
	}
	if overAggregate {
		return b.FlushAll()
	}
	return nil
}

func (b *ReplayBuffer) flushRange(qr schema.QualifiedRange) error {
	b.mu.Lock()
	cells := b.pending[qr]
	delete(b.pending, qr)
	b.totalBytes -= b.pendingBytes[qr]
	delete(b.pendingBytes, qr)
	b.mu.Unlock()

	if len(cells) == 0 {
		return nil
	}
	return b.flush(qr, cells)
}

// FlushAll flushes every range with pending cells.
func (b *ReplayBuffer) FlushAll() error {
	b.mu.Lock()
	ranges := make([]schema.QualifiedRange, 0, len(b.pending))
	for qr := range b.pending {
		ranges = append(ranges, qr)
	}
	b.mu.Unlock()

	for _, qr := range ranges {
		if err := b.flushRange(qr); err != nil {
			return err
		}
	}
	return nil
}
