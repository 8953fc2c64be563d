package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rangekit/rangekit/internal/barrier"
	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/pkg/schema"
)

// RangeHandle is the maintenance-relevant view of one range a Scheduler
// sweeps. *rrange.Range satisfies this directly.
type RangeHandle interface {
	QualifiedRange() schema.QualifiedRange
	State() schema.RangeState
	TotalSizeBytes() int64
	BytesInMemory() int64
	MaxStoreCount() int
	Compact(kind rrange.CompactKind) error
	Split(ctx context.Context, logDir string, splitOffHigh bool) error
}

// RangeLister enumerates the ranges a sweep should consider, and reports
// whether the node as a whole is under memory pressure this sweep.
type RangeLister interface {
	MaintenanceCandidates() ([]RangeHandle, bool)
}

// Options configures a Scheduler.
type Options struct {
	Lister     RangeLister
	Thresholds Thresholds

	// Workers bounds how many ranges are worked concurrently; 0 means 1.
	Workers int
	// TransferLogDir names the log directory a SPLIT should install for
	// qr; required if RangeSplitSizeBytes is set.
	TransferLogDir func(qr schema.QualifiedRange) string
	// PurgeShadowCaches, if set, is invoked at most once per sweep when
	// any range's priority is PriorityPurgeMemory (spec.md §4.14 "→
	// PURGE shadow caches"). This module keeps its query/block cache
	// (internal/querycache) node-wide rather than per-range, so the
	// purge itself is a single node-wide action rather than a per-range
	// task.
	PurgeShadowCaches func() error

	Logger *slog.Logger
}

// Scheduler runs the maintenance sweep (spec.md §4.14).
type Scheduler struct {
	opts    Options
	log     *slog.Logger
	workers int
}

// New constructs a Scheduler.
func New(opts Options) (*Scheduler, error) {
	if opts.Lister == nil {
		return nil, fmt.Errorf("scheduler: Options.Lister is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{opts: opts, log: log, workers: workers}, nil
}

// job is one range's due action for the current sweep.
type job struct {
	handle   RangeHandle
	priority Priority
}

// Sweep walks every candidate range once, scores it, and dispatches due
// actions to a bounded worker pool. A range whose maintenance guard is
// already busy (another task still running from a prior sweep) is
// logged and skipped, not treated as an error — spec.md §4.14's
// per-range concurrency of one is enforced by the guard itself, one
// layer below this package.
func (s *Scheduler) Sweep(ctx context.Context) error {
	candidates, memoryPressure := s.opts.Lister.MaintenanceCandidates()

	jobs := make(chan job)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	purgeOnce := sync.Once{}

	recordErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := s.run(ctx, j, &purgeOnce); err != nil {
					recordErr(err)
				}
			}
		}()
	}

	for _, h := range candidates {
		e := Estimates{
			Splitting:      h.State() != schema.StateSteady,
			TotalBytes:     h.TotalSizeBytes(),
			InMemoryBytes:  h.BytesInMemory(),
			MaxStoreCount:  h.MaxStoreCount(),
			MemoryPressure: memoryPressure,
		}
		priority := Evaluate(e, s.opts.Thresholds)
		if priority == PriorityNone {
			continue
		}
		jobs <- job{handle: h, priority: priority}
	}
	close(jobs)
	wg.Wait()

	return firstErr
}

func (s *Scheduler) run(ctx context.Context, j job, purgeOnce *sync.Once) error {
	qr := j.handle.QualifiedRange()
	s.log.Info("scheduler: dispatching maintenance", "range", qr, "priority", j.priority.String())

	var err error
	switch j.priority {
	case PrioritySplit:
		err = s.split(ctx, j.handle, qr)
	case PriorityMinorCompact:
		err = j.handle.Compact(rrange.CompactMinor)
	case PriorityMajorCompact:
		err = j.handle.Compact(rrange.CompactMajor)
	case PriorityMergingCompact:
		err = j.handle.Compact(rrange.CompactMerging)
	case PriorityPurgeMemory:
		purgeOnce.Do(func() {
			if s.opts.PurgeShadowCaches != nil {
				err = s.opts.PurgeShadowCaches()
			}
		})
	}

	if errors.Is(err, barrier.ErrBusy) {
		s.log.Info("scheduler: range busy, deferring to next sweep", "range", qr)
		return nil
	}
	if err != nil {
		return fmt.Errorf("scheduler: %s on %s: %w", j.priority.String(), qr, err)
	}
	return nil
}

func (s *Scheduler) split(ctx context.Context, h RangeHandle, qr schema.QualifiedRange) error {
	if s.opts.TransferLogDir == nil {
		return fmt.Errorf("scheduler: Options.TransferLogDir is required to split %s", qr)
	}
	return h.Split(ctx, s.opts.TransferLogDir(qr), false)
}
