package rangekit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDiscardsLogsWhenDisabled(t *testing.T) {
	ctx, err := New(Config{DataDir: t.TempDir(), LogEnabled: false})
	require.NoError(t, err)
	defer ctx.Close()

	require.NotNil(t, ctx.Log)
	require.NotNil(t, ctx.FS)
}

func TestNewWritesDatedLogFileWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	ctx, err := New(Config{DataDir: dir, LogEnabled: true, LogLevel: "debug"})
	require.NoError(t, err)

	ctx.Log.Info("boot")
	require.NoError(t, ctx.Close())

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
