package cellcache

import (
	"testing"

	"github.com/rangekit/rangekit/pkg/cell"
	"github.com/stretchr/testify/require"
)

func key(row string, ts int64) cell.Key {
	return cell.Key{Row: []byte(row), ColumnFamilyID: 1, Timestamp: ts, Revision: ts}
}

func TestCacheAddKeepsSortOrder(t *testing.T) {
	c := New()
	c.Add(key("b", 1), []byte("v1"))
	c.Add(key("a", 1), []byte("v2"))
	c.Add(key("a", 2), []byte("v3"))

	s := c.Scan()
	first, ok := s.Peek()
	require.True(t, ok)
	require.Equal(t, "a", string(first.Key.Row))
	require.Equal(t, int64(2), first.Key.Timestamp, "newer timestamp for row a sorts first")
	s.Advance()

	second, ok := s.Peek()
	require.True(t, ok)
	require.Equal(t, "a", string(second.Key.Row))
	require.Equal(t, int64(1), second.Key.Timestamp)
	s.Advance()

	third, ok := s.Peek()
	require.True(t, ok)
	require.Equal(t, "b", string(third.Key.Row))
	s.Advance()

	_, ok = s.Peek()
	require.False(t, ok)
}

func TestCacheAddCopiesCallerBuffers(t *testing.T) {
	c := New()
	row := []byte("mutable")
	c.Add(cell.Key{Row: row, Timestamp: 1}, []byte("value"))
	row[0] = 'X'

	s := c.Scan()
	got, ok := s.Peek()
	require.True(t, ok)
	require.Equal(t, "mutable", string(got.Key.Row))
}

func TestManagerFreezeStartsEmptyWriter(t *testing.T) {
	m := NewManager()
	m.Writer().Add(key("a", 1), []byte("v"))
	require.Equal(t, 1, m.Writer().Len())

	snap := m.Freeze()
	require.Equal(t, 1, snap.Len())
	require.Equal(t, 0, m.Writer().Len())
	require.Len(t, m.Frozen(), 1)

	m.Writer().Add(key("b", 1), []byte("v2"))
	require.Equal(t, 1, snap.Len(), "frozen snapshot unaffected by new writes")
}

func TestManagerRelease(t *testing.T) {
	m := NewManager()
	m.Writer().Add(key("a", 1), []byte("v"))
	snap := m.Freeze()
	require.Len(t, m.Frozen(), 1)

	m.Release(snap)
	require.Empty(t, m.Frozen())
	m.Release(snap) // idempotent
	require.Empty(t, m.Frozen())
}
