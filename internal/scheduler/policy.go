package scheduler

// Priority is the maintenance action the policy selects for a range.
// PriorityNone means no action is due this sweep.
type Priority int

const (
	PriorityNone Priority = iota
	PriorityPurgeMemory
	PriorityMergingCompact
	PriorityMajorCompact
	PriorityMinorCompact
	PrioritySplit
)

// String renders the priority the way spec.md names the corresponding
// action.
func (p Priority) String() string {
	switch p {
	case PrioritySplit:
		return "SPLIT"
	case PriorityMinorCompact:
		return "MINOR_COMPACT"
	case PriorityMajorCompact:
		return "MAJOR_COMPACT"
	case PriorityMergingCompact:
		return "MERGING_COMPACT"
	case PriorityPurgeMemory:
		return "PURGE_MEMORY"
	default:
		return "NONE"
	}
}

// Thresholds configures the policy's per-rule cutoffs (spec.md §4.14).
type Thresholds struct {
	// RangeSplitSizeBytes is range-split-size: a range at or above this
	// logical size (in-memory plus on-disk) that isn't already
	// splitting is due for SPLIT.
	RangeSplitSizeBytes int64
	// AccessGroupMaxMemBytes is access-group-max-mem, applied here
	// against the range's aggregate in-memory footprint: at or above
	// it, a minor compaction is due.
	AccessGroupMaxMemBytes int64
	// GarbageRatio is the fraction of reclaimable bytes (spec.md §4.9
	// "GC-driven ... garbage tracker estimates reclaimable bytes above
	// threshold") above which a major compaction is due. This module
	// carries no standalone garbage tracker (see Estimates.Garbage), so
	// the ratio only matters when a caller supplies a real estimate.
	GarbageRatio float64
	// MergeStoreCount is the cell-store count per access group at or
	// above which a merging compaction is due.
	MergeStoreCount int
}

// Estimates is the per-range, per-sweep input the policy scores against
// Thresholds. Everything here is read from the range itself except
// Garbage and MemoryPressure, which name concerns this pack has no
// standalone tracker for; callers that have one wire it in, callers
// that don't simply leave those at their zero value and those two
// rules never fire.
type Estimates struct {
	Splitting     bool  // a split is already in progress on this range
	TotalBytes    int64 // in-memory plus on-disk
	InMemoryBytes int64
	MaxStoreCount int
	// Garbage is the estimated reclaimable-byte ratio (0..1). Left at
	// its zero value unless a caller supplies a real garbage tracker.
	Garbage float64
	// MemoryPressure reports whether the node as a whole is under
	// memory pressure, driving PURGE independent of any one range's
	// own metrics. Node-wide, not per-range, so every range scored in
	// the same sweep sees the same value.
	MemoryPressure bool
}

// Evaluate scores one range's estimates against th, returning the
// single highest-precedence action due (spec.md §4.14 lists the rules
// in priority order: split first, purge last).
func Evaluate(e Estimates, th Thresholds) Priority {
	if th.RangeSplitSizeBytes > 0 && e.TotalBytes >= th.RangeSplitSizeBytes && !e.Splitting {
		return PrioritySplit
	}
	if th.AccessGroupMaxMemBytes > 0 && e.InMemoryBytes >= th.AccessGroupMaxMemBytes {
		return PriorityMinorCompact
	}
	if th.GarbageRatio > 0 && e.Garbage >= th.GarbageRatio {
		return PriorityMajorCompact
	}
	if th.MergeStoreCount > 0 && e.MaxStoreCount >= th.MergeStoreCount {
		return PriorityMergingCompact
	}
	if e.MemoryPressure {
		return PriorityPurgeMemory
	}
	return PriorityNone
}
