package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rangekit/rangekit/internal/commitlog"
	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/internal/scan"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
	"github.com/stretchr/testify/require"
)

func testTableSchema() *schema.Schema {
	return &schema.Schema{
		Families: []schema.ColumnFamily{
			{ID: 1, Name: "meta", AccessGroupName: "default"},
			{ID: 2, Name: "data", AccessGroupName: "default"},
		},
		AccessGroups: []schema.AccessGroupSchema{
			{Name: "default", ColumnFamilies: []string{"meta", "data"}},
		},
	}
}

type fakeCatalog struct {
	info TableInfo
	err  error
}

func (c *fakeCatalog) TableInfo(schema.TableIdentifier) (TableInfo, error) { return c.info, c.err }

type fakeRouter struct {
	target *RangeTarget
	err    error
}

func (r *fakeRouter) RouteRange(schema.TableIdentifier, []byte) (*RangeTarget, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.target, nil
}

func newTestTarget(t *testing.T) *RangeTarget {
	t.Helper()
	fs := storagefs.NewMem()
	require.NoError(t, fs.MkdirAll("range"))
	r, err := rrange.New(rrange.Options{
		Table:  schema.TableIdentifier{ID: "1/users", Generation: 1},
		Spec:   schema.RangeSpec{EndRow: schema.EndRowSentinel},
		Schema: testTableSchema(),
		FS:     fs,
		Dir:    "range",
	})
	require.NoError(t, err)
	log, err := commitlog.Open(commitlog.Options{FS: fs, Dir: "log"})
	require.NoError(t, err)
	return &RangeTarget{Range: r, CommitLog: log}
}

func newTestPipeline(t *testing.T, target *RangeTarget) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Catalog: &fakeCatalog{info: TableInfo{Schema: testTableSchema()}},
		Router:  &fakeRouter{target: target},
	})
	require.NoError(t, err)
	p.Start()
	t.Cleanup(func() {
		_ = p.Shutdown(context.Background())
	})
	return p
}

func TestPipelineAppliesMutationAndResponds(t *testing.T) {
	target := newTestTarget(t)
	p := newTestPipeline(t, target)

	resultCh := make(chan Result, 1)
	err := p.Submit(Batch{
		Table: schema.TableIdentifier{ID: "1/users", Generation: 1},
		Mutations: []Mutation{
			{Key: cell.Key{Row: []byte("a"), ColumnFamilyID: 1}, Value: []byte("v1")},
		},
		Respond: func(r Result) { resultCh <- r },
	})
	require.NoError(t, err)

	select {
	case r := <-resultCh:
		require.Empty(t, r.Rejected)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}

	s := target.Range.CreateScanner(&scan.Spec{})
	defer s.Close()
	c, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, []byte("a"), c.Key.Row)
	require.NotZero(t, c.Key.Timestamp)
	require.NotZero(t, c.Key.Revision)
}

func TestPipelineRejectsUnknownColumnFamily(t *testing.T) {
	target := newTestTarget(t)
	p := newTestPipeline(t, target)

	resultCh := make(chan Result, 1)
	err := p.Submit(Batch{
		Table: schema.TableIdentifier{ID: "1/users", Generation: 1},
		Mutations: []Mutation{
			{Key: cell.Key{Row: []byte("a"), ColumnFamilyID: 99}, Value: []byte("v1")},
		},
		Respond: func(r Result) { resultCh <- r },
	})
	require.NoError(t, err)

	select {
	case r := <-resultCh:
		require.Len(t, r.Rejected, 1)
		require.ErrorIs(t, r.Rejected[0].Err, ErrUnknownColumnFamily)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestPipelineUnknownTableRejectsWholeBatch(t *testing.T) {
	target := newTestTarget(t)
	p, err := New(Options{
		Catalog: &fakeCatalog{err: fmt.Errorf("no such table")},
		Router:  &fakeRouter{target: target},
	})
	require.NoError(t, err)
	p.Start()
	defer p.Shutdown(context.Background())

	resultCh := make(chan Result, 1)
	require.NoError(t, p.Submit(Batch{
		Table:     schema.TableIdentifier{ID: "1/ghost"},
		Mutations: []Mutation{{Key: cell.Key{Row: []byte("a"), ColumnFamilyID: 1}}},
		Respond:   func(r Result) { resultCh <- r },
	}))

	select {
	case r := <-resultCh:
		require.Len(t, r.Rejected, 1)
		require.ErrorIs(t, r.Rejected[0].Err, ErrUnknownTable)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestPipelineBackPressureBlocksSubmitUntilDrain(t *testing.T) {
	target := newTestTarget(t)
	p, err := New(Options{
		Catalog:        &fakeCatalog{info: TableInfo{Schema: testTableSchema()}},
		Router:         &fakeRouter{target: target},
		HighWaterBytes: 1, // any batch at all saturates this
	})
	require.NoError(t, err)
	p.Start()
	defer p.Shutdown(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			resultCh := make(chan Result, 1)
			require.NoError(t, p.Submit(Batch{
				Table: schema.TableIdentifier{ID: "1/users", Generation: 1},
				Mutations: []Mutation{
					{Key: cell.Key{Row: []byte(fmt.Sprintf("row-%d", i)), ColumnFamilyID: 1}, Value: []byte("v")},
				},
				Respond: func(r Result) { resultCh <- r },
			}))
			<-resultCh
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submissions never drained")
	}
}

func TestPipelineShutdownDrainsInFlightBatch(t *testing.T) {
	target := newTestTarget(t)
	p, err := New(Options{
		Catalog: &fakeCatalog{info: TableInfo{Schema: testTableSchema()}},
		Router:  &fakeRouter{target: target},
	})
	require.NoError(t, err)
	p.Start()

	resultCh := make(chan Result, 1)
	require.NoError(t, p.Submit(Batch{
		Table: schema.TableIdentifier{ID: "1/users", Generation: 1},
		Mutations: []Mutation{
			{Key: cell.Key{Row: []byte("a"), ColumnFamilyID: 1}, Value: []byte("v")},
		},
		Respond: func(r Result) { resultCh <- r },
	}))

	require.NoError(t, p.Shutdown(context.Background()))

	select {
	case r := <-resultCh:
		require.Empty(t, r.Rejected)
	default:
		t.Fatal("expected the in-flight batch to have completed before Shutdown returned")
	}

	require.ErrorIs(t, p.Submit(Batch{Table: schema.TableIdentifier{ID: "1/users"}}), ErrClosed)
}
