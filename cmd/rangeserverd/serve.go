package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rangekit/rangekit/internal/crontab"
	"github.com/rangekit/rangekit/internal/pipeline"
	"github.com/rangekit/rangekit/internal/rsml"
	"github.com/rangekit/rangekit/internal/rsrv"
	"github.com/rangekit/rangekit/internal/scheduler"
	"github.com/rangekit/rangekit/pkg/rangekit"
	"github.com/rangekit/rangekit/pkg/schema"
)

// runServer wires one range-server process together: the request
// surface (rsrv.Server), its RSML meta-log, and the maintenance
// scheduler driven by the configured crontab schedule. It blocks until
// ctx is cancelled (SIGINT/SIGTERM); a failed sweep or a server close
// that does not drain cleanly is logged, not returned.
func runServer(ctx context.Context, rc *rangekit.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := rc.Config
	if err := rc.FS.MkdirAll(cfg.DataDir); err != nil {
		return fmt.Errorf("rangeserverd: create data dir: %w", err)
	}

	rsmlLog, err := rsml.Open(rc.FS, filepath.Join(cfg.DataDir, "rsml.log"))
	if err != nil {
		return fmt.Errorf("rangeserverd: open rsml: %w", err)
	}

	srv, err := rsrv.New(rsrv.Options{
		FS:                  rc.FS,
		RSML:                rsmlLog,
		Logger:              rc.Log,
		QueryCacheBytes:     cfg.QueryCacheBytes,
		MemoryPressureBytes: cfg.MemoryPressureBytes,
		ScannerTTL:          time.Duration(cfg.ScannerTTLSeconds) * time.Second,
		Pipeline:            pipeline.Options{Logger: rc.Log},
	})
	if err != nil {
		return fmt.Errorf("rangeserverd: start server: %w", err)
	}
	defer func() {
		if cerr := srv.Close(); cerr != nil {
			rc.Log.Warn("server close did not drain cleanly", "error", cerr)
		}
	}()

	sched, err := scheduler.New(scheduler.Options{
		Lister: srv,
		Thresholds: scheduler.Thresholds{
			RangeSplitSizeBytes:    cfg.RangeSplitSizeBytes,
			AccessGroupMaxMemBytes: cfg.AccessGroupMaxMemBytes,
			GarbageRatio:           cfg.GarbageRatio,
			MergeStoreCount:        cfg.MergeStoreCount,
		},
		Workers:           cfg.SchedulerWorkers,
		PurgeShadowCaches: srv.PurgeShadowCaches,
		TransferLogDir:    func(qr schema.QualifiedRange) string { return transferLogDir(cfg.DataDir, qr) },
		Logger:            rc.Log,
	})
	if err != nil {
		return fmt.Errorf("rangeserverd: start scheduler: %w", err)
	}

	schedule, err := crontab.Parse(cfg.MaintenanceSchedule)
	if err != nil {
		return fmt.Errorf("rangeserverd: parse maintenance schedule: %w", err)
	}

	rc.Log.Info("rangeserverd: ready", "data_dir", cfg.DataDir)
	return runMaintenanceLoop(ctx, rc, schedule, sched)
}

// transferLogDir names the directory a split installs its transfer log
// under: one subdirectory per table, keyed by the pre-split range's
// end row so concurrent splits across ranges never collide.
func transferLogDir(dataDir string, qr schema.QualifiedRange) string {
	return filepath.Join(dataDir, "transfer-logs", qr.Table.ID, fmt.Sprintf("%x", qr.Range.EndRow))
}

// runMaintenanceLoop sleeps until each schedule-computed fire time and
// runs one sweep there, exactly the model spec.md §6.5's
// next_event(now) describes for crontab-driven maintenance.
func runMaintenanceLoop(ctx context.Context, rc *rangekit.Context, schedule *crontab.Schedule, sched *scheduler.Scheduler) error {
	for {
		now := time.Now()
		next := schedule.Next(now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if err := sched.Sweep(ctx); err != nil {
				rc.Log.Warn("maintenance sweep failed", "error", err)
			}
		}
	}
}
