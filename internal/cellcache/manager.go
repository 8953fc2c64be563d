package cellcache

import "sync"

// Manager owns one access group's writable cache plus the frozen
// snapshots queued behind it awaiting compaction into cell stores. It is
// the Go analogue of hivekit's dirty-page generation counter: Freeze cuts
// a new generation without blocking writers or in-flight scanners.
type Manager struct {
	mu     sync.Mutex
	writer *Cache
	frozen []*Snapshot
}

// NewManager returns a Manager with an empty writable cache and no
// frozen snapshots.
func NewManager() *Manager {
	return &Manager{writer: New()}
}

// Writer returns the current writable cache.
func (m *Manager) Writer() *Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer
}

// Freeze moves the current writer's contents into a new frozen snapshot,
// appends it to the pending queue, and installs a fresh empty writer. The
// returned snapshot is what a minor compaction should drain next.
func (m *Manager) Freeze() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.writer.freeze()
	m.frozen = append(m.frozen, snap)
	m.writer = New()
	return snap
}

// Frozen returns the snapshots currently queued for compaction, oldest
// first.
func (m *Manager) Frozen() []*Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Snapshot, len(m.frozen))
	copy(out, m.frozen)
	return out
}

// Release removes snap from the frozen queue once its cells have been
// durably written into a cell store. It is a no-op if snap is not
// present, which happens if it was already released.
func (m *Manager) Release(snap *Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.frozen {
		if s == snap {
			m.frozen = append(m.frozen[:i], m.frozen[i+1:]...)
			return
		}
	}
}

// Unfreeze reverts a Freeze: snap's cells are re-added to the current
// writer and snap is removed from the pending queue. Used by
// unstage_compaction when a compaction aborts after staging (spec.md
// §4.5).
func (m *Manager) Unfreeze(snap *Snapshot) {
	m.mu.Lock()
	writer := m.writer
	for i, s := range m.frozen {
		if s == snap {
			m.frozen = append(m.frozen[:i], m.frozen[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	for _, c := range snap.cells {
		writer.Add(c.Key, c.Value)
	}
}

// Bytes reports the combined memory footprint of the writable cache and
// every frozen snapshot still queued.
func (m *Manager) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.writer.Bytes()
	for _, s := range m.frozen {
		total += s.Bytes()
	}
	return total
}
