package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanRangeDirsFindsEachRsmlLogOnce(t *testing.T) {
	root := t.TempDir()

	rangeA := filepath.Join(root, "users", "rangeA")
	rangeB := filepath.Join(root, "users", "rangeB")
	require.NoError(t, os.MkdirAll(filepath.Join(rangeA, "default"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(rangeB, "default"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rangeA, "rsml.log"), []byte("abc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rangeA, "default", "store-0"), []byte("12345"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rangeB, "rsml.log"), []byte("a"), 0o644))

	found, err := scanRangeDirs(root)
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, rangeA, found[0].Path)
	require.Equal(t, 2, found[0].Files)
	require.Equal(t, int64(8), found[0].Bytes)
	require.Equal(t, rangeB, found[1].Path)
	require.Equal(t, 1, found[1].Files)
}
