package pipeline

import (
	"testing"
	"time"

	"github.com/rangekit/rangekit/internal/scan"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestGroupCommitCoalescesUpdatesIntoOneBatch(t *testing.T) {
	target := newTestTarget(t)
	p := newTestPipeline(t, target)

	gc := NewGroupCommit(GroupCommitOptions{
		Pipeline:     p,
		TickInterval: 15 * time.Millisecond,
	})
	gc.Start()

	table := schema.TableIdentifier{ID: "1/users", Generation: 1}
	r1 := make(chan Result, 1)
	r2 := make(chan Result, 1)
	gc.Submit(Update{
		ClusterID: 1,
		Table:     table,
		Mutations: []Mutation{{Key: cell.Key{Row: []byte("a"), ColumnFamilyID: 1}, Value: []byte("v1")}},
		Respond:   func(r Result) { r1 <- r },
	})
	gc.Submit(Update{
		ClusterID: 1,
		Table:     table,
		Mutations: []Mutation{{Key: cell.Key{Row: []byte("b"), ColumnFamilyID: 1}, Value: []byte("v2")}},
		Respond:   func(r Result) { r2 <- r },
	})

	select {
	case r := <-r1:
		require.Empty(t, r.Rejected)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first update's response")
	}
	select {
	case r := <-r2:
		require.Empty(t, r.Rejected)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second update's response")
	}

	gc.Stop()

	s := target.Range.CreateScanner(&scan.Spec{})
	defer s.Close()
	var rows []string
	for {
		c, ok := s.Next()
		if !ok {
			break
		}
		rows = append(rows, string(c.Key.Row))
	}
	require.ElementsMatch(t, []string{"a", "b"}, rows)
}

func TestGroupCommitSplitsRejectionsByOriginalOffset(t *testing.T) {
	target := newTestTarget(t)
	p := newTestPipeline(t, target)

	gc := NewGroupCommit(GroupCommitOptions{
		Pipeline:     p,
		TickInterval: 15 * time.Millisecond,
	})
	gc.Start()

	table := schema.TableIdentifier{ID: "1/users", Generation: 1}
	rGood := make(chan Result, 1)
	rBad := make(chan Result, 1)
	gc.Submit(Update{
		ClusterID: 7,
		Table:     table,
		Mutations: []Mutation{{Key: cell.Key{Row: []byte("ok"), ColumnFamilyID: 1}, Value: []byte("v")}},
		Respond:   func(r Result) { rGood <- r },
	})
	gc.Submit(Update{
		ClusterID: 7,
		Table:     table,
		Mutations: []Mutation{{Key: cell.Key{Row: []byte("bad"), ColumnFamilyID: 99}, Value: []byte("v")}},
		Respond:   func(r Result) { rBad <- r },
	})

	select {
	case r := <-rGood:
		require.Empty(t, r.Rejected)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	select {
	case r := <-rBad:
		require.Len(t, r.Rejected, 1)
		require.Equal(t, 0, r.Rejected[0].Offset)
		require.ErrorIs(t, r.Rejected[0].Err, ErrUnknownColumnFamily)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	gc.Stop()
}

func TestGroupCommitRoundsIntervalUpToTick(t *testing.T) {
	gc := NewGroupCommit(GroupCommitOptions{
		TickInterval: 100 * time.Millisecond,
		IntervalFor: func(schema.TableIdentifier) time.Duration {
			return 150 * time.Millisecond
		},
	})
	require.Equal(t, 200*time.Millisecond, gc.roundedInterval(schema.TableIdentifier{ID: "1/users"}))
}

func TestGroupCommitStopFlushesRemainingPendingGroups(t *testing.T) {
	target := newTestTarget(t)
	p := newTestPipeline(t, target)

	gc := NewGroupCommit(GroupCommitOptions{
		Pipeline:     p,
		TickInterval: time.Hour, // never ticks on its own
	})
	gc.Start()

	done := make(chan Result, 1)
	gc.Submit(Update{
		Table:     schema.TableIdentifier{ID: "1/users", Generation: 1},
		Mutations: []Mutation{{Key: cell.Key{Row: []byte("a"), ColumnFamilyID: 1}, Value: []byte("v")}},
		Respond:   func(r Result) { done <- r },
	})

	gc.Stop()

	select {
	case r := <-done:
		require.Empty(t, r.Rejected)
	case <-time.After(time.Second):
		t.Fatal("expected Stop to flush the pending group")
	}
}
