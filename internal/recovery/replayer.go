package recovery

import (
	"context"
	"fmt"

	"github.com/rangekit/rangekit/internal/commitlog"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
)

const (
	defaultPerRangeLimit  = 4 << 20  // 4 MiB
	defaultAggregateLimit = 32 << 20 // 32 MiB
)

// ReceiverClient is the subset of receiver RPCs the coordinator and a
// replayer call during recovery (spec.md §4.13 "Phases").
type ReceiverClient interface {
	BeginGeneration(ctx context.Context, generation uint64) error
	LoadPhantom(ctx context.Context, qr schema.QualifiedRange, state schema.RangeState) error
	ReplayCells(ctx context.Context, qr schema.QualifiedRange, cells []cell.Cell) error
	FinishReplay(ctx context.Context, qr schema.QualifiedRange) error
	Prepare(ctx context.Context, qr schema.QualifiedRange) error
	Commit(ctx context.Context, qr schema.QualifiedRange, state schema.RangeState) error
}

// ReplayerClient is what the coordinator calls to hand a replayer its
// assigned fragments.
type ReplayerClient interface {
	Replay(ctx context.Context, plan *Plan, fragments []FragmentID) error
}

// Replayer reads the fragments a recovery plan assigned to it and
// routes their cells to the receivers owning each fragment's range
// (spec.md §4.13 "Replayer duties").
type Replayer struct {
	fs             storagefs.FS
	receivers      func(host string) (ReceiverClient, error)
	perRangeLimit  int
	aggregateLimit int
}

// NewReplayer constructs a Replayer. A non-positive limit falls back
// to the package default.
func NewReplayer(fs storagefs.FS, receivers func(string) (ReceiverClient, error), perRangeLimit, aggregateLimit int) *Replayer {
	if perRangeLimit <= 0 {
		perRangeLimit = defaultPerRangeLimit
	}
	if aggregateLimit <= 0 {
		aggregateLimit = defaultAggregateLimit
	}
	return &Replayer{fs: fs, receivers: receivers, perRangeLimit: perRangeLimit, aggregateLimit: aggregateLimit}
}

// Replay implements ReplayerClient: decode every assigned fragment in
// order and dispatch their cells through a ReplayBuffer. Link blocks
// (written by commitlog.Log.LinkLog across a split or merge handoff)
// are not followed here — the dead server's linked-to directory is
// itself recovered as its own range's fragment set, named directly in
// the plan, rather than discovered by chasing link blocks.
func (r *Replayer) Replay(ctx context.Context, plan *Plan, fragments []FragmentID) error {
	buf := NewReplayBuffer(r.perRangeLimit, r.aggregateLimit, func(qr schema.QualifiedRange, cells []cell.Cell) error {
		return r.dispatch(ctx, plan, qr, cells)
	})

	for _, fid := range fragments {
		blocks, err := commitlog.ReadFragment(r.fs, commitlog.FragmentPath(fid.LogDir, fid.Num))
		if err != nil {
			return fmt.Errorf("recovery: read fragment %s/%d: %w", fid.LogDir, fid.Num, err)
		}
		for _, block := range blocks {
			if block.IsLink {
				continue
			}
			for _, c := range block.Cells {
				if err := buf.Add(fid.Range, c); err != nil {
					return err
				}
			}
		}
	}
	return buf.FlushAll()
}

func (r *Replayer) dispatch(ctx context.Context, plan *Plan, qr schema.QualifiedRange, cells []cell.Cell) error {
	assignment, ok := plan.Receivers[qr]
	if !ok {
		return fmt.Errorf("recovery: no receiver assigned for range %s", qr)
	}
	client, err := r.receivers(assignment.Host)
	if err != nil {
		return fmt.Errorf("recovery: resolve receiver %s: %w", assignment.Host, err)
	}
	return client.ReplayCells(ctx, qr, cells)
}
