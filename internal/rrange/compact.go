package rrange

import (
	"fmt"

	"github.com/rangekit/rangekit/internal/barrier"
)

// CompactKind selects which compaction the maintenance scheduler or
// request surface asked for: minor, major or merging. There is no move
// kind; accessgroup.Group.Move is called directly instead.
type CompactKind int

const (
	CompactMinor CompactKind = iota
	CompactMajor
	CompactMerging
)

// defaultMergingThreshold bounds the combined size of the small-store
// run a merging compaction folds together when the caller doesn't name
// one explicitly.
const defaultMergingThreshold = 64 << 20

// Compact runs one compaction pass over every access group in the
// range, holding the range's maintenance guard for its duration so it
// cannot race a concurrent split or relinquish (spec.md §4.14 "at most
// one of {compact, split, relinquish, purge_memory} runs at a time").
func (r *Range) Compact(kind CompactKind) error {
	if err := r.guard.Start(barrier.TaskCompact, nil); err != nil {
		return err
	}
	defer r.guard.Finish()

	for name, g := range r.groups {
		switch kind {
		case CompactMinor:
			if _, err := g.StageCompaction(r.updateBarrier); err != nil {
				return fmt.Errorf("rrange: stage minor compaction for %s: %w", name, err)
			}
			if err := g.MinorCompact(); err != nil {
				return fmt.Errorf("rrange: minor compact %s: %w", name, err)
			}
		case CompactMajor:
			if _, err := g.StageCompaction(r.updateBarrier); err != nil {
				return fmt.Errorf("rrange: stage major compaction for %s: %w", name, err)
			}
			if err := g.MajorCompact(); err != nil {
				return fmt.Errorf("rrange: major compact %s: %w", name, err)
			}
		case CompactMerging:
			if err := g.MergingCompact(defaultMergingThreshold); err != nil {
				return fmt.Errorf("rrange: merging compact %s: %w", name, err)
			}
		}
	}
	return nil
}

// Drop cancels any in-flight maintenance task and permanently blocks
// future ones (spec.md §4.10 "drop_range removes range from working
// set"). The caller is still responsible for removing the range from
// its own working set and scheduling file removal.
func (r *Range) Drop() {
	r.guard.Drop()
}
