package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileWriterWriteAllIsAtomicAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dump.json")
	w := &FileWriter{Path: path}

	require.NoError(t, w.WriteAll([]byte("first")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first", string(got))

	require.NoError(t, w.WriteAll([]byte("second, longer payload")))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second, longer payload", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp files after a successful write")
}

func TestMemWriterCapturesLatestPayload(t *testing.T) {
	w := &MemWriter{}
	require.NoError(t, w.WriteAll([]byte("alpha")))
	require.Equal(t, "alpha", string(w.Buf))
	require.NoError(t, w.WriteAll([]byte("b")))
	require.Equal(t, "b", string(w.Buf))
}
