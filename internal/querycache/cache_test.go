package querycache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func entry(table, row string, cols map[string]bool, result []byte) *Entry {
	return &Entry{
		TableName:   table,
		Row:         []byte(row),
		Columns:     cols,
		CellCount:   1,
		ResultBytes: result,
		ResultLen:   len(result),
	}
}

func TestInsertAndLookupHit(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)

	k := Digest([]byte("scan-spec-1"))
	e := entry("t1", "row1", map[string]bool{"cf:a": true}, []byte("result-bytes"))
	require.NoError(t, c.Insert(k, e))

	result, resultLen, cellCount, ok := c.Lookup(k)
	require.True(t, ok)
	require.Equal(t, []byte("result-bytes"), result)
	require.Equal(t, len("result-bytes"), resultLen)
	require.Equal(t, 1, cellCount)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.TotalLookups)
	require.Equal(t, int64(1), stats.TotalHits)
}

func TestLookupMiss(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)

	_, _, _, ok := c.Lookup(Digest([]byte("nope")))
	require.False(t, ok)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.TotalLookups)
	require.Equal(t, int64(0), stats.TotalHits)
}

func TestInsertEvictsOldestWhenOverBudget(t *testing.T) {
	payload := make([]byte, 100)
	// Budget fits roughly two entries (each ~ 100 + overhead + |row|).
	budget := 2 * (int64(len(payload)) + perEntryOverhead + 4)
	c, err := New(budget)
	require.NoError(t, err)

	k1 := Digest([]byte("spec-1"))
	k2 := Digest([]byte("spec-2"))
	k3 := Digest([]byte("spec-3"))

	require.NoError(t, c.Insert(k1, entry("t1", "row1", nil, payload)))
	require.NoError(t, c.Insert(k2, entry("t1", "row2", nil, payload)))
	// Touch k1 so it becomes MRU and k2 becomes the eviction candidate.
	_, _, _, _ = c.Lookup(k1)
	require.NoError(t, c.Insert(k3, entry("t1", "row3", nil, payload)))

	_, _, _, ok1 := c.Lookup(k1)
	_, _, _, ok2 := c.Lookup(k2)
	_, _, _, ok3 := c.Lookup(k3)
	require.True(t, ok1, "most recently used entry should survive eviction")
	require.False(t, ok2, "least recently used entry should be evicted")
	require.True(t, ok3)
}

func TestInsertRejectsEntryLargerThanCapacity(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	err = c.Insert(Digest([]byte("spec")), entry("t1", "row1", nil, make([]byte, 1000)))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestInvalidateRemovesIntersectingColumns(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)

	kA := Digest([]byte("spec-a"))
	kB := Digest([]byte("spec-b"))
	require.NoError(t, c.Insert(kA, entry("t1", "row1", map[string]bool{"cf:x": true}, []byte("a"))))
	require.NoError(t, c.Insert(kB, entry("t1", "row1", map[string]bool{"cf:y": true}, []byte("b"))))

	c.Invalidate("t1", []byte("row1"), map[string]bool{"cf:x": true})

	_, _, _, okA := c.Lookup(kA)
	_, _, _, okB := c.Lookup(kB)
	require.False(t, okA, "entry sharing the invalidated column should be removed")
	require.True(t, okB, "entry with a disjoint column set should survive")
}

func TestInvalidateWithEmptyColumnsRemovesEverythingForRow(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)

	kA := Digest([]byte("spec-a"))
	kB := Digest([]byte("spec-b"))
	require.NoError(t, c.Insert(kA, entry("t1", "row1", map[string]bool{"cf:x": true}, []byte("a"))))
	require.NoError(t, c.Insert(kB, entry("t1", "row1", nil, []byte("b"))))

	c.Invalidate("t1", []byte("row1"), nil)

	_, _, _, okA := c.Lookup(kA)
	_, _, _, okB := c.Lookup(kB)
	require.False(t, okA)
	require.False(t, okB)
}

func TestInvalidateLeavesOtherRowsAlone(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)

	k1 := Digest([]byte("spec-1"))
	k2 := Digest([]byte("spec-2"))
	require.NoError(t, c.Insert(k1, entry("t1", "row1", map[string]bool{"cf:x": true}, []byte("a"))))
	require.NoError(t, c.Insert(k2, entry("t1", "row2", map[string]bool{"cf:x": true}, []byte("b"))))

	c.Invalidate("t1", []byte("row1"), map[string]bool{"cf:x": true})

	_, _, _, ok1 := c.Lookup(k1)
	_, _, _, ok2 := c.Lookup(k2)
	require.False(t, ok1)
	require.True(t, ok2)
}

func TestInsertSameKeyReplacesPriorEntryAccounting(t *testing.T) {
	c, err := New(1 << 20)
	require.NoError(t, err)

	k := Digest([]byte("spec"))
	require.NoError(t, c.Insert(k, entry("t1", "row1", nil, make([]byte, 500))))
	used1 := c.UsedBytes()

	require.NoError(t, c.Insert(k, entry("t1", "row1", nil, make([]byte, 50))))
	used2 := c.UsedBytes()

	require.Less(t, used2, used1, "re-inserting under the same key should not double-count usage")
}
