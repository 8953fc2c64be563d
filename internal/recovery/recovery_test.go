package recovery

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rangekit/rangekit/internal/commitlog"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
)

func writeFragment(t *testing.T, fs storagefs.FS, dir string, cells []cell.Cell) commitlog.FragmentDescriptor {
	t.Helper()
	log, err := commitlog.Open(commitlog.Options{FS: fs, Dir: dir})
	require.NoError(t, err)
	_, err = log.Append(cells, commitlog.AppendOptions{Sync: true})
	require.NoError(t, err)
	require.NoError(t, log.Roll()) // closes the fragment holding cells into the fragment queue
	require.NoError(t, log.Close())

	fragments := log.Fragments()
	require.Len(t, fragments, 1)
	return fragments[0]
}

func testCell(row string, value string) cell.Cell {
	return cell.Cell{
		Key:   cell.Key{Row: []byte(row), ColumnFamilyID: 1, ColumnQualifier: []byte("q"), Timestamp: 1, Revision: 1},
		Value: []byte(value),
	}
}

func TestReplayerRoutesFragmentCellsToAssignedReceiver(t *testing.T) {
	fs := storagefs.NewMem()
	table := schema.TableIdentifier{ID: "t1"}
	qr := schema.QualifiedRange{Table: table, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}

	cells := []cell.Cell{testCell("row1", "v1"), testCell("row2", "v2")}
	frag := writeFragment(t, fs, "/logs/r1", cells)

	recv := newStubReceiver()
	replayer := NewReplayer(fs, func(host string) (ReceiverClient, error) {
		if host != "host-b" {
			return nil, fmt.Errorf("unexpected host %s", host)
		}
		return recv, nil
	}, 0, 0)

	plan := &Plan{
		Generation: 1,
		Type:       RangeTypeUser,
		Receivers: map[schema.QualifiedRange]ReceiverAssignment{
			qr: {Host: "host-b", State: schema.StateSteady},
		},
	}
	fid := FragmentID{Range: qr, LogDir: "/logs/r1", Num: frag.Num}

	err := replayer.Replay(context.Background(), plan, []FragmentID{fid})
	require.NoError(t, err)
	require.Len(t, recv.replayed[qr], 2)
	require.Equal(t, "v1", string(recv.replayed[qr][0].Value))
	require.Equal(t, "v2", string(recv.replayed[qr][1].Value))
}

func TestReplayBufferFlushesAtPerRangeLimit(t *testing.T) {
	var flushed [][]cell.Cell
	qr := schema.QualifiedRange{Table: schema.TableIdentifier{ID: "t1"}, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}

	buf := NewReplayBuffer(1, 0, func(q schema.QualifiedRange, cells []cell.Cell) error {
		flushed = append(flushed, cells)
		return nil
	})
	require.NoError(t, buf.Add(qr, testCell("row1", "v1")))
	require.Len(t, flushed, 1, "a single cell already exceeds a 1-byte per-range limit")
	require.NoError(t, buf.FlushAll())
	require.Len(t, flushed, 1, "FlushAll is a no-op once nothing is pending")
}

type stubReceiver struct {
	mu         sync.Mutex
	generation uint64
	phantoms   *PhantomRangeMap
	replayed   map[schema.QualifiedRange][]cell.Cell
	live       map[schema.QualifiedRange]bool
}

func newStubReceiver() *stubReceiver {
	return &stubReceiver{phantoms: NewPhantomRangeMap(), replayed: make(map[schema.QualifiedRange][]cell.Cell), live: make(map[schema.QualifiedRange]bool)}
}

func (s *stubReceiver) BeginGeneration(ctx context.Context, generation uint64) error {
	s.phantoms.BeginGeneration(generation)
	return nil
}

func (s *stubReceiver) LoadPhantom(ctx context.Context, qr schema.QualifiedRange, state schema.RangeState) error {
	s.phantoms.Mark(qr, BitLoaded)
	return nil
}

func (s *stubReceiver) ReplayCells(ctx context.Context, qr schema.QualifiedRange, cells []cell.Cell) error {
	if !s.phantoms.Has(qr, BitLoaded) {
		return fmt.Errorf("replayed before load")
	}
	s.mu.Lock()
	s.replayed[qr] = append(s.replayed[qr], cells...)
	s.mu.Unlock()
	return nil
}

func (s *stubReceiver) FinishReplay(ctx context.Context, qr schema.QualifiedRange) error {
	s.phantoms.Mark(qr, BitReplayed)
	return nil
}

func (s *stubReceiver) Prepare(ctx context.Context, qr schema.QualifiedRange) error {
	if !s.phantoms.Has(qr, BitReplayed) {
		return fmt.Errorf("prepared before replay")
	}
	s.phantoms.Mark(qr, BitPrepared)
	return nil
}

func (s *stubReceiver) Commit(ctx context.Context, qr schema.QualifiedRange, state schema.RangeState) error {
	if !s.phantoms.Has(qr, BitPrepared) {
		return fmt.Errorf("committed before prepare")
	}
	s.phantoms.Mark(qr, BitCommitted)
	s.mu.Lock()
	s.live[qr] = true
	s.mu.Unlock()
	return nil
}

func TestCoordinatorExecuteCarriesPlanThroughAllPhases(t *testing.T) {
	fs := storagefs.NewMem()
	table := schema.TableIdentifier{ID: "t1"}
	qr := schema.QualifiedRange{Table: table, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}

	cells := []cell.Cell{testCell("row1", "v1")}
	frag := writeFragment(t, fs, "/logs/r1", cells)

	recv := newStubReceiver()
	plan := &Plan{
		Generation: 1,
		Type:       RangeTypeUser,
		Replay:     map[FragmentID]string{{Range: qr, LogDir: "/logs/r1", Num: frag.Num}: "replayer-a"},
		Receivers:  map[schema.QualifiedRange]ReceiverAssignment{qr: {Host: "host-b", State: schema.StateSteady}},
	}

	replayer := NewReplayer(fs, func(host string) (ReceiverClient, error) { return recv, nil }, 0, 0)
	coord := NewCoordinator(
		func(host string) (ReceiverClient, error) { return recv, nil },
		func(host string) (ReplayerClient, error) { return replayer, nil },
		nil,
	)

	require.False(t, recv.phantoms.Live(qr))
	err := coord.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.True(t, recv.phantoms.Live(qr))
	require.True(t, recv.live[qr])
	require.Len(t, recv.replayed[qr], 1)
}

func TestReceiverRejectsOutOfOrderPhases(t *testing.T) {
	qr := schema.QualifiedRange{Table: schema.TableIdentifier{ID: "t1"}, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}
	applier := &stubApplier{}
	recv := NewReceiver(applier, nil)

	require.Error(t, recv.Prepare(context.Background(), qr), "prepare before replay must fail")
	require.Error(t, recv.Commit(context.Background(), qr, schema.StateSteady), "commit before prepare must fail")

	require.NoError(t, recv.LoadPhantom(context.Background(), qr, schema.StateSteady))
	require.NoError(t, recv.ReplayCells(context.Background(), qr, []cell.Cell{testCell("row1", "v1")}))
	require.Error(t, recv.Prepare(context.Background(), qr), "prepare before FinishReplay must still fail")

	require.NoError(t, recv.FinishReplay(context.Background(), qr))
	require.NoError(t, recv.Prepare(context.Background(), qr))
	require.NoError(t, recv.Commit(context.Background(), qr, schema.StateSteady))
	require.True(t, recv.Live(qr))
	require.Len(t, applier.applied[qr], 1)
	require.True(t, applier.liveRanges[qr])
}

type stubApplier struct {
	mu         sync.Mutex
	applied    map[schema.QualifiedRange][]cell.Cell
	liveRanges map[schema.QualifiedRange]bool
}

func (a *stubApplier) ApplyReplayedCells(qr schema.QualifiedRange, cells []cell.Cell) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.applied == nil {
		a.applied = make(map[schema.QualifiedRange][]cell.Cell)
	}
	a.applied[qr] = append(a.applied[qr], cells...)
	return nil
}

func (a *stubApplier) MakeRangeLive(qr schema.QualifiedRange, state schema.RangeState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.liveRanges == nil {
		a.liveRanges = make(map[schema.QualifiedRange]bool)
	}
	a.liveRanges[qr] = true
	return nil
}

func TestPhantomRangeMapResetsOnlyOnGenerationChange(t *testing.T) {
	qr := schema.QualifiedRange{Table: schema.TableIdentifier{ID: "t1"}, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}
	m := NewPhantomRangeMap()
	m.Mark(qr, BitLoaded)
	require.True(t, m.Has(qr, BitLoaded))

	require.False(t, m.BeginGeneration(0), "same generation must not reset")
	require.True(t, m.Has(qr, BitLoaded))

	require.True(t, m.BeginGeneration(2), "generation change must reset")
	require.False(t, m.Has(qr, BitLoaded))
}
