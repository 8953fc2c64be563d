package rrange

import (
	"context"
	"testing"

	"github.com/rangekit/rangekit/internal/rsml"
	"github.com/rangekit/rangekit/internal/scan"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
	"github.com/stretchr/testify/require"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		Families: []schema.ColumnFamily{
			{ID: 1, Name: "meta", AccessGroupName: "default"},
			{ID: 2, Name: "data", AccessGroupName: "default"},
		},
		AccessGroups: []schema.AccessGroupSchema{
			{Name: "default", ColumnFamilies: []string{"meta", "data"}, BlockSizeBytes: 64, Compressor: "snappy", BloomFilterMode: "row"},
		},
	}
}

func newTestRange(t *testing.T) *Range {
	t.Helper()
	fs := storagefs.NewMem()
	require.NoError(t, fs.MkdirAll("r1"))
	r, err := New(Options{
		Table:          schema.TableIdentifier{ID: "1/users", Generation: 1},
		Spec:           schema.RangeSpec{EndRow: schema.EndRowSentinel},
		Schema:         testSchema(),
		FS:             fs,
		Dir:            "r1",
		SoftLimitBytes: 1 << 20,
	})
	require.NoError(t, err)
	return r
}

func TestAddDispatchesToOwningGroup(t *testing.T) {
	r := newTestRange(t)
	require.NoError(t, r.Add(cell.Key{Row: []byte("a"), ColumnFamilyID: 1, Timestamp: 10, Revision: 10}, []byte("v")))
	require.Equal(t, int64(1), r.Counters.Updates.Load())
	require.Equal(t, int64(1), r.Counters.FlagCount(cell.FlagInsert))
}

func TestAddUnknownFamilyErrors(t *testing.T) {
	r := newTestRange(t)
	err := r.Add(cell.Key{Row: []byte("a"), ColumnFamilyID: 99, Timestamp: 10, Revision: 10}, []byte("v"))
	require.ErrorIs(t, err, ErrUnknownFamily)
}

func TestAddAutoAssignsTimestampAndRevision(t *testing.T) {
	r := newTestRange(t)
	require.NoError(t, r.Add(cell.Key{Row: []byte("a"), ColumnFamilyID: 1}, []byte("v")))
	require.NoError(t, r.Add(cell.Key{Row: []byte("b"), ColumnFamilyID: 1}, []byte("v2")))

	s := r.CreateScanner(&scan.Spec{})
	defer s.Close()
	var count int
	for {
		c, ok := s.Next()
		if !ok {
			break
		}
		require.NotZero(t, c.Key.Timestamp)
		require.NotZero(t, c.Key.Revision)
		count++
	}
	require.Equal(t, 2, count)
}

func TestCreateScannerFiltersByColumnSet(t *testing.T) {
	r := newTestRange(t)
	require.NoError(t, r.Add(cell.Key{Row: []byte("a"), ColumnFamilyID: 1, Timestamp: 1, Revision: 1}, []byte("meta-v")))
	require.NoError(t, r.Add(cell.Key{Row: []byte("a"), ColumnFamilyID: 2, Timestamp: 1, Revision: 1}, []byte("data-v")))

	s := r.CreateScanner(&scan.Spec{Columns: map[uint8]bool{1: true}})
	defer s.Close()
	c, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, uint8(1), c.Key.ColumnFamilyID)
	_, ok = s.Next()
	require.False(t, ok)
}

type stubMaster struct {
	moved, acked bool
}

func (s *stubMaster) MoveRange(ctx context.Context, table schema.TableIdentifier, newSpec schema.RangeSpec, splitOffHigh bool) error {
	s.moved = true
	return nil
}

func (s *stubMaster) AckRelinquish(ctx context.Context, table schema.TableIdentifier, spec schema.RangeSpec) error {
	s.acked = true
	return nil
}

type stubMetadata struct {
	updated, rolledBack bool
}

func (s *stubMetadata) UpdateSplitMetadata(ctx context.Context, table schema.TableIdentifier, parent, child schema.RangeSpec, splitOffHigh bool) error {
	s.updated = true
	return nil
}

func (s *stubMetadata) RollbackSplit(ctx context.Context, table schema.TableIdentifier, original schema.RangeSpec) error {
	s.rolledBack = true
	return nil
}

func TestSplitTransitionsToSteadyWithDoubledSoftLimit(t *testing.T) {
	fs := storagefs.NewMem()
	require.NoError(t, fs.MkdirAll("r1"))
	log, err := rsml.Open(fs, "rsml.log")
	require.NoError(t, err)

	master := &stubMaster{}
	meta := &stubMetadata{}
	r, err := New(Options{
		Table:             schema.TableIdentifier{ID: "1/users", Generation: 1},
		Spec:              schema.RangeSpec{EndRow: schema.EndRowSentinel},
		Schema:            testSchema(),
		FS:                fs,
		Dir:               "r1",
		Log:               log,
		EntityID:          1,
		SoftLimitBytes:    100,
		MaxSoftLimitBytes: 150,
		Master:            master,
		Metadata:          meta,
	})
	require.NoError(t, err)

	for _, row := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, r.Add(cell.Key{Row: []byte(row), ColumnFamilyID: 1, Timestamp: 1, Revision: 1}, []byte("v")))
	}

	require.NoError(t, r.Split(context.Background(), "logs", false))
	require.Equal(t, schema.StateSteady, r.State())
	require.True(t, master.moved)
	require.True(t, meta.updated)
	require.Equal(t, uint64(150), r.opts.SoftLimitBytes)

	result, err := rsml.Replay(fs, "rsml.log")
	require.NoError(t, err)
	require.Equal(t, schema.StateSteady, result.Ranges[1].State)
}

func TestRelinquishRemovesRangeAndQueuesTask(t *testing.T) {
	fs := storagefs.NewMem()
	require.NoError(t, fs.MkdirAll("r1"))
	log, err := rsml.Open(fs, "rsml.log")
	require.NoError(t, err)

	master := &stubMaster{}
	r, err := New(Options{
		Table:    schema.TableIdentifier{ID: "1/users", Generation: 1},
		Spec:     schema.RangeSpec{EndRow: schema.EndRowSentinel},
		Schema:   testSchema(),
		FS:       fs,
		Dir:      "r1",
		Log:      log,
		EntityID: 1,
		Master:   master,
	})
	require.NoError(t, err)
	require.NoError(t, r.Add(cell.Key{Row: []byte("a"), ColumnFamilyID: 1, Timestamp: 1, Revision: 1}, []byte("v")))
	require.NoError(t, r.persist())

	removed := false
	require.NoError(t, r.Relinquish(context.Background(), "logs", log, 2, func() { removed = true }))
	require.True(t, removed)
	require.True(t, master.acked)

	result, err := rsml.Replay(fs, "rsml.log")
	require.NoError(t, err)
	require.Empty(t, result.Ranges)
	require.Len(t, result.Tasks, 1)
	require.Equal(t, "remove_transfer_log", result.Tasks[0].Task.Kind)
}
