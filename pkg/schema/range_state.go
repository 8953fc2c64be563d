package schema

// RangeState is the persisted lifecycle state of a range (spec.md §3,
// §4.6 state machine).
type RangeState uint8

const (
	// StateSteady is the normal serving state.
	StateSteady RangeState = iota
	// StateSplitLogInstalled means a transfer log has been installed and a
	// split is in progress.
	StateSplitLogInstalled
	// StateSplitShrunk means the range has been shrunk to its new
	// boundary and awaits master acknowledgement.
	StateSplitShrunk
	// StateRelinquishLogInstalled means a transfer log has been installed
	// and the range is being relinquished.
	StateRelinquishLogInstalled
)

func (s RangeState) String() string {
	switch s {
	case StateSteady:
		return "STEADY"
	case StateSplitLogInstalled:
		return "SPLIT_LOG_INSTALLED"
	case StateSplitShrunk:
		return "SPLIT_SHRUNK"
	case StateRelinquishLogInstalled:
		return "RELINQUISH_LOG_INSTALLED"
	default:
		return "UNKNOWN"
	}
}

// RangeMeta is the persisted, non-data state of a range: everything the
// RSML needs to reconstruct a Range entity on replay.
type RangeMeta struct {
	Table             TableIdentifier
	Spec              RangeSpec
	State             RangeState
	Phantom           bool
	Timestamp         int64
	SoftLimitBytes    uint64
	TransferLog       string // log directory URI, empty if none
	SplitPoint        []byte
	OldBoundaryRow    []byte
	Source            string // originating server, for recovery bookkeeping
	LoadAcknowledged  bool
	NeedsCompaction   bool
	OriginalTransferLog string // carried by RANGE2 entities only
}
