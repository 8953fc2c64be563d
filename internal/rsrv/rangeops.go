package rsrv

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rangekit/rangekit/internal/commitlog"
	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/schema"
)

// nextEntityID hands out RSML entity ids; it is process-wide rather
// than per-server since a single range server owns exactly one RSML
// file (spec.md §4.8).
var nextEntityID atomic.Uint64

func allocEntityID() uint64 { return nextEntityID.Add(1) }

// LoadRequest is the input to LoadRange (spec.md §4.10 load_range).
type LoadRequest struct {
	Table           schema.TableIdentifier
	Spec            schema.RangeSpec
	Schema          *schema.Schema
	TransferLog     string
	State           schema.RangeState
	NeedsCompaction bool

	Dir            string // this range's storage directory
	LogDir         string // this range's commit log directory
	SoftLimitBytes uint64

	Master   rrange.MasterClient
	Metadata rrange.MetadataWriter
}

// LoadRange creates a range in PHANTOM state; it does not serve traffic
// until AcknowledgeLoad transitions it to STEADY (spec.md §4.10).
func (s *Server) LoadRange(fs storagefs.FS, req LoadRequest) error {
	if qr, _, exists := s.findByBounds(req.Table, req.Spec); exists {
		return wrapErr("load_range", KindRange, fmt.Errorf("rsrv: range %s %s already loaded", qr.Table, qr.Range))
	}

	log, err := commitlog.Open(commitlog.Options{FS: fs, Dir: req.LogDir, ClusterID: 0})
	if err != nil {
		return wrapErr("load_range", KindFilesystem, err)
	}

	opts := rrange.Options{
		Table:             req.Table,
		Schema:            req.Schema,
		FS:                fs,
		Dir:               req.Dir,
		Log:               s.opts.RSML,
		EntityID:          allocEntityID(),
		SoftLimitBytes:    req.SoftLimitBytes,
		MaxSoftLimitBytes: req.SoftLimitBytes * 8,
		Master:            req.Master,
		Metadata:          req.Metadata,
		Logger:            s.log,
	}
	meta := schema.RangeMeta{
		Table:           req.Table,
		Spec:            req.Spec,
		State:           req.State,
		TransferLog:      req.TransferLog,
		SoftLimitBytes:  req.SoftLimitBytes,
		NeedsCompaction: req.NeedsCompaction,
	}

	rng, err := rrange.Recover(opts, meta)
	if err != nil {
		_ = log.Close()
		return wrapErr("load_range", KindSchema, err)
	}
	if err := rng.Persist(); err != nil {
		_ = log.Close()
		return wrapErr("load_range", KindFilesystem, err)
	}

	s.RegisterTable(req.Table, req.Schema)
	s.AddRange(req.Table, rng, log)
	return nil
}

// AckCode reports the per-range outcome of AcknowledgeLoad.
type AckCode int

const (
	AckOK AckCode = iota
	AckNotFound
	AckNotPhantom
)

// AcknowledgeLoad transitions each named range from PHANTOM to STEADY
// (spec.md §4.10 acknowledge_load). It reports one AckCode per range,
// in the order given.
func (s *Server) AcknowledgeLoad(ranges []schema.QualifiedRange) []AckCode {
	codes := make([]AckCode, len(ranges))
	for i, qr := range ranges {
		_, e, ok := s.findByBounds(qr.Table, qr.Range)
		if !ok {
			codes[i] = AckNotFound
			continue
		}
		if !e.rng.Phantom() {
			codes[i] = AckNotPhantom
			continue
		}
		e.rng.AcknowledgeLoad()
		if err := e.rng.Persist(); err != nil {
			s.log.Warn("acknowledge_load persist failed", "table", qr.Table, "error", err)
		}
		codes[i] = AckOK
	}
	return codes
}

// RelinquishRange carries a range through the relinquish state machine
// and drops it from the working set (spec.md §4.10 relinquish_range,
// master-initiated).
func (s *Server) RelinquishRange(ctx context.Context, table schema.TableIdentifier, spec schema.RangeSpec, logDir string) error {
	qr, e, ok := s.findByBounds(table, spec)
	if !ok {
		return wrapErr("relinquish_range", KindRange, fmt.Errorf("%w: %s %s", ErrRangeNotFound, table, spec))
	}

	taskID := allocEntityID()
	err := e.rng.Relinquish(ctx, logDir, s.opts.RSML, taskID, func() {
		s.removeRange(qr)
	})
	if err != nil {
		return wrapErr("relinquish_range", KindRange, err)
	}
	if cerr := e.log.Close(); cerr != nil {
		s.log.Warn("relinquish_range: commit log close failed", "table", table, "error", cerr)
	}
	return nil
}

// DropRange removes a range from the working set without the
// relinquish handshake, cancelling any in-progress maintenance task on
// it first (spec.md §4.10 drop_range: "removes range from working set;
// files removed by task").
func (s *Server) DropRange(table schema.TableIdentifier, spec schema.RangeSpec) error {
	qr, e, ok := s.findByBounds(table, spec)
	if !ok {
		return wrapErr("drop_range", KindRange, fmt.Errorf("%w: %s %s", ErrRangeNotFound, table, spec))
	}
	e.rng.Drop()
	s.removeRange(qr)
	if err := e.log.Close(); err != nil {
		return wrapErr("drop_range", KindFilesystem, err)
	}
	return nil
}

// CompactFlags selects which compaction(s) Compact forces.
type CompactFlags int

const (
	CompactFlagMinor CompactFlags = iota
	CompactFlagMajor
	CompactFlagMerging
)

// CompactRequest scopes a compact call to a table, an individual row's
// range, or (if both are zero) every range the server holds (spec.md
// §4.10 compact).
type CompactRequest struct {
	Table schema.TableIdentifier // zero value means "every table"
	Row   []byte                 // non-nil narrows to the range covering this row
	Flags CompactFlags
}

// Compact forces compaction of every range matching req (spec.md §4.10
// compact). Per-range failures are collected but do not stop the sweep
// over the remaining ranges.
func (s *Server) Compact(req CompactRequest) error {
	kind := rrange.CompactMinor
	switch req.Flags {
	case CompactFlagMajor:
		kind = rrange.CompactMajor
	case CompactFlagMerging:
		kind = rrange.CompactMerging
	}

	var targets []*rrange.Range
	if req.Row != nil {
		if req.Table.ID == "" {
			return wrapErr("compact", KindSchema, fmt.Errorf("rsrv: compact by row requires a table"))
		}
		e := s.findRange(req.Table, req.Row)
		if e == nil {
			return wrapErr("compact", KindRange, fmt.Errorf("%w: %s", ErrRangeNotFound, req.Table))
		}
		targets = []*rrange.Range{e.rng}
	} else {
		s.mu.RLock()
		for qr, e := range s.ranges {
			if req.Table.ID != "" && qr.Table.ID != req.Table.ID {
				continue
			}
			targets = append(targets, e.rng)
		}
		s.mu.RUnlock()
	}

	var firstErr error
	for _, rng := range targets {
		if err := rng.Compact(kind); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rsrv: compact %s: %w", rng.Spec(), err)
		}
	}
	if firstErr != nil {
		return wrapErr("compact", KindRange, firstErr)
	}
	return nil
}
