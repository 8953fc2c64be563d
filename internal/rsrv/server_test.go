package rsrv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rangekit/rangekit/internal/pipeline"
	"github.com/rangekit/rangekit/internal/rsml"
	"github.com/rangekit/rangekit/internal/scan"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		MaxColumnFamilyID: 1,
		Families: []schema.ColumnFamily{
			{ID: 1, Name: "data", AccessGroupName: "default"},
		},
		AccessGroups: []schema.AccessGroupSchema{
			{Name: "default", ColumnFamilies: []string{"data"}},
		},
	}
}

func newTestServer(t *testing.T) (*Server, storagefs.FS) {
	t.Helper()
	fs := storagefs.NewMem()
	rsmlLog, err := rsml.Open(fs, "/rsml/server.log")
	require.NoError(t, err)

	srv, err := New(Options{
		FS:              fs,
		RSML:            rsmlLog,
		QueryCacheBytes: 1 << 20,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, fs
}

func loadSteadyRange(t *testing.T, srv *Server, fs storagefs.FS, table schema.TableIdentifier) {
	t.Helper()
	err := srv.LoadRange(fs, LoadRequest{
		Table:          table,
		Spec:           schema.RangeSpec{EndRow: schema.EndRowSentinel},
		Schema:         testSchema(),
		State:          schema.StateSteady,
		Dir:            "/ranges/r1",
		LogDir:         "/logs/r1",
		SoftLimitBytes: 1 << 20,
	})
	require.NoError(t, err)

	codes := srv.AcknowledgeLoad([]schema.QualifiedRange{{Table: table, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}})
	require.Equal(t, []AckCode{AckOK}, codes)
}

func TestLoadRangeStartsPhantomUntilAcknowledged(t *testing.T) {
	srv, fs := newTestServer(t)
	table := schema.TableIdentifier{ID: "t1"}

	err := srv.LoadRange(fs, LoadRequest{
		Table:          table,
		Spec:           schema.RangeSpec{EndRow: schema.EndRowSentinel},
		Schema:         testSchema(),
		State:          schema.StateSteady,
		Dir:            "/ranges/r1",
		LogDir:         "/logs/r1",
		SoftLimitBytes: 1 << 20,
	})
	require.NoError(t, err)
	require.Equal(t, 1, srv.RangeCount())

	_, err = srv.RouteRange(table, []byte("row1"))
	require.ErrorIs(t, err, pipeline.ErrNoRange, "phantom ranges must not serve traffic")

	codes := srv.AcknowledgeLoad([]schema.QualifiedRange{{Table: table, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}}})
	require.Equal(t, []AckCode{AckOK}, codes)

	target, err := srv.RouteRange(table, []byte("row1"))
	require.NoError(t, err)
	require.NotNil(t, target.Range)
}

func TestAcknowledgeLoadReportsNotFoundAndNotPhantom(t *testing.T) {
	srv, fs := newTestServer(t)
	table := schema.TableIdentifier{ID: "t1"}
	loadSteadyRange(t, srv, fs, table)

	codes := srv.AcknowledgeLoad([]schema.QualifiedRange{
		{Table: table, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}},
		{Table: schema.TableIdentifier{ID: "nope"}, Range: schema.RangeSpec{EndRow: schema.EndRowSentinel}},
	})
	require.Equal(t, []AckCode{AckNotPhantom, AckNotFound}, codes)
}

func TestUpdateThenScanRoundTrips(t *testing.T) {
	srv, fs := newTestServer(t)
	table := schema.TableIdentifier{ID: "t1"}
	loadSteadyRange(t, srv, fs, table)

	rejected, err := srv.Update(UpdateRequest{
		Table: table,
		Mutations: []pipeline.Mutation{
			{Key: cell.Key{Row: []byte("row1"), ColumnFamilyID: 1, ColumnQualifier: []byte("q")}, Value: []byte("v1")},
		},
		Sync: true,
	})
	require.NoError(t, err)
	require.Empty(t, rejected)

	id, block, eos, err := srv.CreateScanner(ScanRequest{
		Table: table,
		Range: schema.RangeSpec{EndRow: schema.EndRowSentinel},
		Spec:  &scan.Spec{},
	})
	require.NoError(t, err)
	require.True(t, eos)
	require.NotEmpty(t, block)

	srv.DestroyScanner(id)
	srv.DestroyScanner(id) // idempotent on missing id
}

func TestUpdateRejectsUnknownColumnFamily(t *testing.T) {
	srv, fs := newTestServer(t)
	table := schema.TableIdentifier{ID: "t1"}
	loadSteadyRange(t, srv, fs, table)

	rejected, err := srv.Update(UpdateRequest{
		Table: table,
		Mutations: []pipeline.Mutation{
			{Key: cell.Key{Row: []byte("row1"), ColumnFamilyID: 99}, Value: []byte("v1")},
		},
	})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	require.ErrorIs(t, rejected[0].Err, pipeline.ErrUnknownColumnFamily)
}

func TestCreateScannerCachesCacheableScan(t *testing.T) {
	srv, fs := newTestServer(t)
	table := schema.TableIdentifier{ID: "t1"}
	loadSteadyRange(t, srv, fs, table)

	_, err := srv.Update(UpdateRequest{
		Table: table,
		Mutations: []pipeline.Mutation{
			{Key: cell.Key{Row: []byte("row1"), ColumnFamilyID: 1, ColumnQualifier: []byte("q")}, Value: []byte("v1")},
		},
		Sync: true,
	})
	require.NoError(t, err)

	req := ScanRequest{
		Table:    table,
		Range:    schema.RangeSpec{EndRow: schema.EndRowSentinel},
		Spec:     &scan.Spec{},
		QueryKey: []byte("scan-spec-bytes"),
	}
	id1, block1, eos1, err := srv.CreateScanner(req)
	require.NoError(t, err)
	require.True(t, eos1)

	id2, block2, eos2, err := srv.CreateScanner(req)
	require.NoError(t, err)
	require.True(t, eos2)
	require.Equal(t, block1, block2, "second call should be served from the query cache")

	srv.DestroyScanner(id1)
	srv.DestroyScanner(id2)
}

func TestCompactAndDropRange(t *testing.T) {
	srv, fs := newTestServer(t)
	table := schema.TableIdentifier{ID: "t1"}
	loadSteadyRange(t, srv, fs, table)

	err := srv.Compact(CompactRequest{Table: table, Flags: CompactFlagMinor})
	require.NoError(t, err)

	err = srv.DropRange(table, schema.RangeSpec{EndRow: schema.EndRowSentinel})
	require.NoError(t, err)
	require.Equal(t, 0, srv.RangeCount())

	err = srv.DropRange(table, schema.RangeSpec{EndRow: schema.EndRowSentinel})
	require.Error(t, err, "dropping an already-dropped range should report range-not-found")
}

func TestRelinquishRangeRemovesFromWorkingSet(t *testing.T) {
	srv, fs := newTestServer(t)
	table := schema.TableIdentifier{ID: "t1"}
	loadSteadyRange(t, srv, fs, table)

	err := srv.RelinquishRange(context.Background(), table, schema.RangeSpec{EndRow: schema.EndRowSentinel}, "/transfer")
	require.NoError(t, err)
	require.Equal(t, 0, srv.RangeCount())
}

func TestStatusReportsRangeAndScannerCounts(t *testing.T) {
	srv, fs := newTestServer(t)
	table := schema.TableIdentifier{ID: "t1"}
	loadSteadyRange(t, srv, fs, table)

	code, msg := srv.Status()
	require.Equal(t, StatusOK, code)
	require.NotEmpty(t, msg)
}
