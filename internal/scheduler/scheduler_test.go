package scheduler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rangekit/rangekit/internal/barrier"
	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/pkg/schema"
)

type stubRange struct {
	mu         sync.Mutex
	qr         schema.QualifiedRange
	state      schema.RangeState
	totalBytes int64
	memBytes   int64
	storeCount int

	compacted []rrange.CompactKind
	split     bool
	busy      bool
}

func (r *stubRange) QualifiedRange() schema.QualifiedRange { return r.qr }
func (r *stubRange) State() schema.RangeState              { return r.state }
func (r *stubRange) TotalSizeBytes() int64                 { return r.totalBytes }
func (r *stubRange) BytesInMemory() int64                  { return r.memBytes }
func (r *stubRange) MaxStoreCount() int                    { return r.storeCount }

func (r *stubRange) Compact(kind rrange.CompactKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return barrier.ErrBusy
	}
	r.compacted = append(r.compacted, kind)
	return nil
}

func (r *stubRange) Split(ctx context.Context, logDir string, splitOffHigh bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.split = true
	return nil
}

type stubLister struct {
	handles  []RangeHandle
	pressure bool
}

func (l *stubLister) MaintenanceCandidates() ([]RangeHandle, bool) { return l.handles, l.pressure }

func TestSweepDispatchesHighestPriorityActionPerRange(t *testing.T) {
	qr := schema.QualifiedRange{Table: schema.TableIdentifier{ID: "t1"}, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}
	r := &stubRange{qr: qr, totalBytes: 200, memBytes: 5}

	sched, err := New(Options{
		Lister:         &stubLister{handles: []RangeHandle{r}},
		Thresholds:     Thresholds{RangeSplitSizeBytes: 100, AccessGroupMaxMemBytes: 10},
		TransferLogDir: func(schema.QualifiedRange) string { return "/logs/split" },
	})
	require.NoError(t, err)

	require.NoError(t, sched.Sweep(context.Background()))
	require.True(t, r.split, "range over split size must be split, not compacted")
}

func TestSweepSkipsBusyRangeWithoutError(t *testing.T) {
	qr := schema.QualifiedRange{Table: schema.TableIdentifier{ID: "t1"}, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}
	r := &stubRange{qr: qr, memBytes: 20, busy: true}

	sched, err := New(Options{
		Lister:     &stubLister{handles: []RangeHandle{r}},
		Thresholds: Thresholds{AccessGroupMaxMemBytes: 10},
	})
	require.NoError(t, err)

	require.NoError(t, sched.Sweep(context.Background()))
	require.Empty(t, r.compacted)
}

func TestSweepPurgesSharedCacheAtMostOncePerSweep(t *testing.T) {
	qr1 := schema.QualifiedRange{Table: schema.TableIdentifier{ID: "t1"}, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}
	qr2 := schema.QualifiedRange{Table: schema.TableIdentifier{ID: "t2"}, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}
	r1 := &stubRange{qr: qr1}
	r2 := &stubRange{qr: qr2}

	var purges int
	var mu sync.Mutex
	sched, err := New(Options{
		Lister:   &stubLister{handles: []RangeHandle{r1, r2}, pressure: true},
		Workers:  4,
		PurgeShadowCaches: func() error {
			mu.Lock()
			purges++
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, sched.Sweep(context.Background()))
	require.Equal(t, 1, purges)
}

func TestSweepRunsMinorCompactForOverMemRange(t *testing.T) {
	qr := schema.QualifiedRange{Table: schema.TableIdentifier{ID: "t1"}, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}
	r := &stubRange{qr: qr, memBytes: 50}

	sched, err := New(Options{
		Lister:     &stubLister{handles: []RangeHandle{r}},
		Thresholds: Thresholds{AccessGroupMaxMemBytes: 10},
	})
	require.NoError(t, err)

	require.NoError(t, sched.Sweep(context.Background()))
	require.Equal(t, []rrange.CompactKind{rrange.CompactMinor}, r.compacted)
}
