package recovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
)

// CellApplier is the local range-server operation a Receiver drives:
// applying replayed cells to a phantom range, and making a range live
// once it has committed.
type CellApplier interface {
	ApplyReplayedCells(qr schema.QualifiedRange, cells []cell.Cell) error
	MakeRangeLive(qr schema.QualifiedRange, state schema.RangeState) error
}

// Receiver implements ReceiverClient against a local CellApplier,
// enforcing spec.md §4.13's phase ordering (load before replay,
// replay before prepare, prepare before commit) through a shared
// PhantomRangeMap. Only Commit ever calls MakeRangeLive.
type Receiver struct {
	applier  CellApplier
	phantoms *PhantomRangeMap
	log      *slog.Logger
}

// NewReceiver constructs a Receiver.
func NewReceiver(applier CellApplier, log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Receiver{applier: applier, phantoms: NewPhantomRangeMap(), log: log}
}

// BeginGeneration implements ReceiverClient.
func (r *Receiver) BeginGeneration(ctx context.Context, generation uint64) error {
	if r.phantoms.BeginGeneration(generation) {
		r.log.Info("recovery: plan generation changed, phantom map reset", "generation", generation)
	}
	return nil
}

// LoadPhantom implements ReceiverClient.
func (r *Receiver) LoadPhantom(ctx context.Context, qr schema.QualifiedRange, state schema.RangeState) error {
	r.phantoms.Mark(qr, BitLoaded)
	return nil
}

// ReplayCells implements ReceiverClient. It may be called any number
// of times (once per ReplayBuffer flush) between load and FinishReplay.
func (r *Receiver) ReplayCells(ctx context.Context, qr schema.QualifiedRange, cells []cell.Cell) error {
	if !r.phantoms.Has(qr, BitLoaded) {
		return fmt.Errorf("recovery: range %s replayed before load", qr)
	}
	if err := r.applier.ApplyReplayedCells(qr, cells); err != nil {
		return fmt.Errorf("recovery: apply replayed cells for %s: %w", qr, err)
	}
	return nil
}

// FinishReplay implements ReceiverClient, marking qr replayed once its
// replayer(s) have exhausted their assigned fragments — independent of
// how many cells, if any, ReplayCells delivered for it.
func (r *Receiver) FinishReplay(ctx context.Context, qr schema.QualifiedRange) error {
	if !r.phantoms.Has(qr, BitLoaded) {
		return fmt.Errorf("recovery: range %s finished replay before load", qr)
	}
	r.phantoms.Mark(qr, BitReplayed)
	return nil
}

// Prepare implements ReceiverClient.
func (r *Receiver) Prepare(ctx context.Context, qr schema.QualifiedRange) error {
	if !r.phantoms.Has(qr, BitReplayed) {
		return fmt.Errorf("recovery: range %s prepared before replay", qr)
	}
	r.phantoms.Mark(qr, BitPrepared)
	return nil
}

// Commit implements ReceiverClient, making qr live only once it has
// reached BitPrepared (spec.md §4.13 "Only after COMMITTED does the
// receiver make the range live").
func (r *Receiver) Commit(ctx context.Context, qr schema.QualifiedRange, state schema.RangeState) error {
	if !r.phantoms.Has(qr, BitPrepared) {
		return fmt.Errorf("recovery: range %s committed before prepare", qr)
	}
	if err := r.applier.MakeRangeLive(qr, state); err != nil {
		return fmt.Errorf("recovery: make range %s live: %w", qr, err)
	}
	r.phantoms.Mark(qr, BitCommitted)
	return nil
}

// Live reports whether qr has completed recovery.
func (r *Receiver) Live(qr schema.QualifiedRange) bool {
	return r.phantoms.Live(qr)
}
