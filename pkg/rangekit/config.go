// Package rangekit holds the ambient, boot-time pieces every rangekit
// binary (rangeserverd, rangectl, rangeexplorer) shares: configuration
// loading and the Context bundle threaded explicitly through the
// range-server internals instead of package globals.
package rangekit

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the user-visible configuration for a range-server process,
// layered from defaults, an optional config file, and flags/environment
// via viper (spec.md §9 "Global mutable state" is replaced by this
// struct, constructed once at boot and threaded explicitly).
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	LogEnabled bool   `mapstructure:"log_enabled"`
	LogDir     string `mapstructure:"log_dir"`
	LogLevel   string `mapstructure:"log_level"`

	QueryCacheBytes     int64 `mapstructure:"query_cache_bytes"`
	MemoryPressureBytes int64 `mapstructure:"memory_pressure_bytes"`
	ScannerTTLSeconds   int64 `mapstructure:"scanner_ttl_seconds"`

	MaintenanceSchedule string `mapstructure:"maintenance_schedule"`
	SchedulerWorkers    int    `mapstructure:"scheduler_workers"`

	RangeSplitSizeBytes    int64   `mapstructure:"range_split_size_bytes"`
	AccessGroupMaxMemBytes int64   `mapstructure:"access_group_max_mem_bytes"`
	GarbageRatio           float64 `mapstructure:"garbage_ratio"`
	MergeStoreCount        int     `mapstructure:"merge_store_count"`
}

// defaults mirrors the zero-config experience hivekit's own CLIs give
// (hivectl needs no config file to run against a hive path); rangekit
// needs one more knob, DataDir, since it owns a whole directory tree
// rather than a single file.
func defaults() Config {
	return Config{
		DataDir:                "./data",
		LogEnabled:             false,
		LogDir:                 "",
		LogLevel:               "info",
		QueryCacheBytes:        64 << 20,
		MemoryPressureBytes:    0,
		ScannerTTLSeconds:      300,
		MaintenanceSchedule:    "*/5 * * * *",
		SchedulerWorkers:       4,
		RangeSplitSizeBytes:    256 << 20,
		AccessGroupMaxMemBytes: 64 << 20,
		GarbageRatio:           0.2,
		MergeStoreCount:        8,
	}
}

// BindFlags registers the persistent flags a rangekit daemon or CLI
// exposes and binds them into v, following the same one-persistent-
// flag-set-per-root-command shape as hivekit's cmd/hivectl/root.go.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	d := defaults()

	flags.String("data-dir", d.DataDir, "root directory holding range storage, commit logs and RSML")
	flags.String("config", "", "path to a rangekit config file (YAML/JSON/TOML)")
	flags.Bool("log-enabled", d.LogEnabled, "write structured logs to --log-dir instead of discarding them")
	flags.String("log-dir", d.LogDir, "directory for log files; defaults to <data-dir>/logs")
	flags.String("log-level", d.LogLevel, "minimum log level: debug, info, warn, error")
	flags.Int64("query-cache-bytes", d.QueryCacheBytes, "query cache capacity in bytes; 0 disables it")
	flags.Int64("memory-pressure-bytes", d.MemoryPressureBytes, "aggregate in-memory cell bytes that trips the maintenance scheduler's memory-pressure rule; 0 disables it")
	flags.Int64("scanner-ttl-seconds", d.ScannerTTLSeconds, "seconds an idle scanner is kept before it is reaped")
	flags.String("maintenance-schedule", d.MaintenanceSchedule, "crontab string driving the maintenance scheduler's sweep")
	flags.Int("scheduler-workers", d.SchedulerWorkers, "bounded worker count for the maintenance scheduler's sweep")
	flags.Int64("range-split-size-bytes", d.RangeSplitSizeBytes, "range total size, in bytes, that triggers a split")
	flags.Int64("access-group-max-mem-bytes", d.AccessGroupMaxMemBytes, "per-range in-memory bytes that triggers a minor compaction")
	flags.Float64("garbage-ratio", d.GarbageRatio, "estimated garbage ratio that triggers a major compaction")
	flags.Int("merge-store-count", d.MergeStoreCount, "cell store count that triggers a merging compaction")

	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("rangekit: bind flags: %w", err)
	}
	v.SetEnvPrefix("RANGEKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

// Load resolves a Config from v: defaults, an optional config file
// named by the "config" flag, environment variables prefixed
// RANGEKIT_, then flags, in increasing precedence (viper's own layering
// order).
func Load(v *viper.Viper) (Config, error) {
	cfg := defaults()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("rangekit: read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("rangekit: unmarshal config: %w", err)
	}
	return cfg, nil
}

// parseLogLevel maps a config string to a slog.Level, defaulting to
// Info for an empty or unrecognized value.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
