package accessgroup

import (
	"testing"

	"github.com/rangekit/rangekit/internal/barrier"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/rangekit/rangekit/pkg/schema"
	"github.com/stretchr/testify/require"
)

func newTestGroup(t *testing.T) *Group {
	t.Helper()
	fs := storagefs.NewMem()
	require.NoError(t, fs.MkdirAll("ag"))
	return New(Options{
		FS:  fs,
		Dir: "ag",
		Schema: schema.AccessGroupSchema{
			Name:            "default",
			BlockSizeBytes:  64,
			Compressor:      "snappy",
			BloomFilterMode: "row",
		},
	})
}

func key(row string, ts int64) cell.Key {
	return cell.Key{Row: []byte(row), ColumnFamilyID: 1, Timestamp: ts, Revision: ts}
}

func TestMinorCompactionWritesStore(t *testing.T) {
	g := newTestGroup(t)
	g.Add(key("a", 1), []byte("v1"))
	g.Add(key("b", 1), []byte("v2"))

	ub := barrier.New()
	_, err := g.StageCompaction(ub)
	require.NoError(t, err)
	require.NoError(t, g.MinorCompact())
	require.Equal(t, 1, g.StoreCount())
	require.Equal(t, int64(0), g.Bytes())
}

func TestUnstageCompactionRestoresWriter(t *testing.T) {
	g := newTestGroup(t)
	g.Add(key("a", 1), []byte("v1"))

	ub := barrier.New()
	_, err := g.StageCompaction(ub)
	require.NoError(t, err)
	g.UnstageCompaction(ub)
	require.Equal(t, 0, g.StoreCount())

	s := g.cache.Writer().Scan()
	_, ok := s.Peek()
	require.True(t, ok, "unstaged cells should be back in the writable cache")
}

func TestMajorCompactionMergesStoresAndCache(t *testing.T) {
	g := newTestGroup(t)
	ub := barrier.New()

	g.Add(key("a", 1), []byte("v1"))
	_, err := g.StageCompaction(ub)
	require.NoError(t, err)
	require.NoError(t, g.MinorCompact())

	g.Add(key("b", 2), []byte("v2"))
	_, err = g.StageCompaction(ub)
	require.NoError(t, err)
	require.NoError(t, g.MajorCompact())

	require.Equal(t, 1, g.StoreCount())

	sources := g.Sources(nil, nil)
	var rows []string
	for _, s := range sources {
		for {
			c, ok := s.Peek()
			if !ok {
				break
			}
			rows = append(rows, string(c.Key.Row))
			s.Advance()
		}
	}
	require.ElementsMatch(t, []string{"a", "b"}, rows)
}

func TestSplitRowEstimateFallsBackToCacheMedian(t *testing.T) {
	g := newTestGroup(t)
	g.Add(key("a", 1), []byte("v"))
	g.Add(key("b", 1), []byte("v"))
	g.Add(key("c", 1), []byte("v"))

	row, ok := g.SplitRowEstimate()
	require.True(t, ok)
	require.Equal(t, "b", string(row))
}
