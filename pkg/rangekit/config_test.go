package rangekit

import (
	"log/slog"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesFlagOverridesOverDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	require.NoError(t, BindFlags(flags, v))
	require.NoError(t, flags.Parse([]string{"--data-dir", "/var/rangekit", "--scheduler-workers", "8"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "/var/rangekit", cfg.DataDir)
	require.Equal(t, 8, cfg.SchedulerWorkers)
	require.Equal(t, int64(64<<20), cfg.QueryCacheBytes, "unset flags keep their default")
}

func TestParseLogLevelRecognizesEachName(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLogLevel("WARN"))
	require.Equal(t, slog.LevelError, parseLogLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLogLevel(""))
	require.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}
