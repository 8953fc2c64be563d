package rrange

import (
	"context"
	"crypto/md5"
	"fmt"
	"sort"
	"time"

	"github.com/rangekit/rangekit/internal/barrier"
	"github.com/rangekit/rangekit/internal/rsml"
	"github.com/rangekit/rangekit/pkg/schema"
)

// MasterClient is the subset of master RPCs the split/relinquish state
// machine needs. The range server's request surface supplies the real
// implementation; tests supply a stub.
type MasterClient interface {
	MoveRange(ctx context.Context, table schema.TableIdentifier, newSpec schema.RangeSpec, splitOffHigh bool) error
	AckRelinquish(ctx context.Context, table schema.TableIdentifier, spec schema.RangeSpec) error
}

// MetadataWriter is the subset of METADATA-table edits the split state
// machine needs: rewriting Files/StartRow rows for the shrunk parent
// and, for split-off-high, the new child's Location row.
type MetadataWriter interface {
	UpdateSplitMetadata(ctx context.Context, table schema.TableIdentifier, parent, child schema.RangeSpec, splitOffHigh bool) error
	RollbackSplit(ctx context.Context, table schema.TableIdentifier, original schema.RangeSpec) error
}

// ErrRowOverflow is returned by Split when no access group can offer a
// split-row candidate strictly inside the range's bounds (spec.md §4.6
// step 1).
var ErrRowOverflow = fmt.Errorf("rrange: no split row fits within range bounds")

// splitRowCandidate collects every access group's split-row estimate
// and returns their median, restricted to rows strictly inside
// (start_row, end_row) (spec.md §4.6 "Split algorithm" step 1).
func (r *Range) splitRowCandidate() ([]byte, error) {
	r.mu.Lock()
	spec := r.opts.Spec
	r.mu.Unlock()

	var candidates [][]byte
	for _, g := range r.groups {
		if row, ok := g.SplitRowEstimate(); ok && withinOpenInterval(row, spec) {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrRowOverflow
	}
	sort.Slice(candidates, func(i, j int) bool { return string(candidates[i]) < string(candidates[j]) })
	return candidates[len(candidates)/2], nil
}

func withinOpenInterval(row []byte, spec schema.RangeSpec) bool {
	if spec.StartRow != nil && string(row) <= string(spec.StartRow) {
		return false
	}
	if !spec.IsFinal() && string(row) >= string(spec.EndRow) {
		return false
	}
	return true
}

// transferLogPath names a transfer-log directory the way spec.md §4.6
// step 2 describes: "log-dir/table_id/<md5-prefix-of-end-row>-<unix-time>".
func transferLogPath(logDir string, table schema.TableIdentifier, endRow []byte) string {
	sum := md5.Sum(endRow)
	return fmt.Sprintf("%s/%s/%x-%d", logDir, table.ID, sum[:8], time.Now().Unix())
}

func (r *Range) majorCompactAll() error {
	for name, g := range r.groups {
		if _, err := g.StageCompaction(r.updateBarrier); err != nil {
			return fmt.Errorf("rrange: stage compaction for %s: %w", name, err)
		}
		if err := g.MajorCompact(); err != nil {
			return fmt.Errorf("rrange: major compact %s: %w", name, err)
		}
	}
	return nil
}

// Split carries the range through the split state machine (spec.md
// §4.6 "Split algorithm"). logDir is the root transfer-log directory;
// splitOffHigh selects which half moves to the new sibling (false: the
// sibling takes (start_row, split_point] and this range keeps
// (split_point, end_row]; true: the reverse).
func (r *Range) Split(ctx context.Context, logDir string, splitOffHigh bool) error {
	if err := r.guard.Start(barrier.TaskSplit, nil); err != nil {
		return err
	}
	defer r.guard.Finish()

	splitPoint, err := r.splitRowCandidate()
	if err != nil {
		return err
	}

	r.mu.Lock()
	table := r.opts.Table
	original := r.opts.Spec
	r.mu.Unlock()

	transferLog := transferLogPath(logDir, table, original.EndRow)

	r.mu.Lock()
	r.state = schema.StateSplitLogInstalled
	r.transferLog = transferLog
	r.splitPoint = splitPoint
	r.oldBoundaryRow = original.EndRow
	r.mu.Unlock()
	if err := r.persist(); err != nil {
		return fmt.Errorf("rrange: persist SPLIT_LOG_INSTALLED: %w", err)
	}

	if err := r.majorCompactAll(); err != nil {
		return r.rollbackSplit(ctx, original, err)
	}

	var child schema.RangeSpec
	if splitOffHigh {
		child = schema.RangeSpec{StartRow: splitPoint, EndRow: original.EndRow}
	} else {
		child = schema.RangeSpec{StartRow: original.StartRow, EndRow: splitPoint}
	}
	if r.opts.Metadata != nil {
		if err := r.opts.Metadata.UpdateSplitMetadata(ctx, table, original, child, splitOffHigh); err != nil {
			return r.rollbackSplit(ctx, original, err)
		}
	}

	var shrunk schema.RangeSpec
	if splitOffHigh {
		shrunk = schema.RangeSpec{StartRow: original.StartRow, EndRow: splitPoint}
	} else {
		shrunk = schema.RangeSpec{StartRow: splitPoint, EndRow: original.EndRow}
	}
	r.mu.Lock()
	r.opts.Spec = shrunk
	r.state = schema.StateSplitShrunk
	r.mu.Unlock()
	if err := r.persist(); err != nil {
		return fmt.Errorf("rrange: persist SPLIT_SHRUNK: %w", err)
	}

	if r.opts.Master != nil {
		if err := r.opts.Master.MoveRange(ctx, table, shrunk, splitOffHigh); err != nil {
			return fmt.Errorf("rrange: notify master of split: %w", err)
		}
	}

	r.mu.Lock()
	newLimit := r.opts.SoftLimitBytes * 2
	if r.opts.MaxSoftLimitBytes > 0 && newLimit > r.opts.MaxSoftLimitBytes {
		newLimit = r.opts.MaxSoftLimitBytes
	}
	r.opts.SoftLimitBytes = newLimit
	r.state = schema.StateSteady
	r.transferLog = ""
	r.splitPoint = nil
	r.oldBoundaryRow = nil
	r.mu.Unlock()
	return r.persist()
}

// rollbackSplit restores the range to STEADY at its original boundary
// after a failure past SPLIT_LOG_INSTALLED (spec.md §4.6 "Failure
// semantics": "rewriting METADATA to restore the original start-row and
// deleting the phantom new-range row").
func (r *Range) rollbackSplit(ctx context.Context, original schema.RangeSpec, cause error) error {
	if r.opts.Metadata != nil {
		if err := r.opts.Metadata.RollbackSplit(ctx, r.opts.Table, original); err != nil {
			return fmt.Errorf("rrange: split failed (%v) and rollback also failed: %w", cause, err)
		}
	}
	r.mu.Lock()
	r.opts.Spec = original
	r.state = schema.StateSteady
	r.transferLog = ""
	r.splitPoint = nil
	r.oldBoundaryRow = nil
	r.mu.Unlock()
	if err := r.persist(); err != nil {
		return fmt.Errorf("rrange: split failed (%v) and rollback persist failed: %w", cause, err)
	}
	return fmt.Errorf("rrange: split rolled back: %w", cause)
}

// Relinquish carries the range through the relinquish state machine
// (spec.md §4.6 "Relinquish algorithm"). onRemove is called while both
// barriers are held exclusively, giving the caller (which owns the
// server's range map) a safe window to drop the range from its working
// set; taskLog is a freshly assigned RSML entity id for the
// log-removal task.
func (r *Range) Relinquish(ctx context.Context, logDir string, taskLog *rsml.Log, taskID uint64, onRemove func()) error {
	if err := r.guard.Start(barrier.TaskRelinquish, nil); err != nil {
		return err
	}
	defer r.guard.Finish()

	r.mu.Lock()
	table := r.opts.Table
	spec := r.opts.Spec
	r.mu.Unlock()

	transferLog := transferLogPath(logDir, table, spec.EndRow)
	r.mu.Lock()
	r.state = schema.StateRelinquishLogInstalled
	r.transferLog = transferLog
	r.mu.Unlock()
	if err := r.persist(); err != nil {
		return fmt.Errorf("rrange: persist RELINQUISH_LOG_INSTALLED: %w", err)
	}

	if err := r.majorCompactAll(); err != nil {
		return fmt.Errorf("rrange: relinquish major compact: %w", err)
	}

	releaseUpdate := r.updateBarrier.ScopedActivator()
	releaseScan := r.scanBarrier.ScopedActivator()
	if onRemove != nil {
		onRemove()
	}
	releaseScan()
	releaseUpdate()

	if r.opts.Master != nil {
		if err := r.opts.Master.AckRelinquish(ctx, table, spec); err != nil {
			return fmt.Errorf("rrange: notify master of relinquish: %w", err)
		}
	}

	if taskLog != nil {
		task := rsml.Task{Kind: "remove_transfer_log", Payload: transferLog}
		if err := taskLog.RecordTaskAndRemoval(taskID, task, r.opts.EntityID); err != nil {
			return fmt.Errorf("rrange: persist relinquish removal: %w", err)
		}
	}
	return nil
}
