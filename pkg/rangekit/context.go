package rangekit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rangekit/rangekit/internal/storagefs"
)

const (
	logFilePrefix = "rangeserverd-"
	logFileSuffix = ".log"
)

// Context is the boot-time bundle threaded explicitly through every
// range-server component a process constructs: the resolved config,
// its logger, and the filesystem it stores through. No package holds a
// package-level copy of any of these (spec.md §9 "Global mutable
// state"); main() builds one Context and passes it down.
type Context struct {
	Config Config
	Log    *slog.Logger
	FS     storagefs.FS

	logFile io.Closer
}

// New builds a Context from cfg: a real OS filesystem rooted nowhere
// in particular (paths are resolved relative to cfg.DataDir by
// callers), and a logger either discarding everything or writing
// dated, retained log files, following hiveexplorer's own
// cmd/hiveexplorer/logger.Init behavior.
func New(cfg Config) (*Context, error) {
	log, closer, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("rangekit: logger: %w", err)
	}
	return &Context{
		Config:  cfg,
		Log:     log,
		FS:      storagefs.NewOS(),
		logFile: closer,
	}, nil
}

func newLogger(cfg Config) (*slog.Logger, io.Closer, error) {
	if !cfg.LogEnabled {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil
	}

	dir := cfg.LogDir
	if dir == "" {
		dir = filepath.Join(cfg.DataDir, "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}

	name := filepath.Join(dir, logFilePrefix+time.Now().Format("2006-01-02")+logFileSuffix)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})
	return slog.New(handler), f, nil
}

// Close releases resources the Context opened, currently just the log
// file (if logging to one).
func (c *Context) Close() error {
	if c.logFile != nil {
		return c.logFile.Close()
	}
	return nil
}
