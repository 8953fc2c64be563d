package rsml

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rangekit/rangekit/internal/storagefs"
	"github.com/rangekit/rangekit/pkg/schema"
)

// ReplayResult is the reconstructed working set after reading a meta-log
// start to finish (spec.md §4.8).
type ReplayResult struct {
	// Ranges holds every live (not later removed) RANGE/RANGE2 entity,
	// keyed by its entity id.
	Ranges map[uint64]schema.RangeMeta
	// Tasks holds every live task entity, in the order they were
	// recorded, alongside the entity id a later removal would reference.
	Tasks []ReplayedTask
	// NextID is the smallest entity id guaranteed unused by any entity
	// seen during replay.
	NextID uint64
}

// ReplayedTask pairs a task with the entity id it was recorded under, so
// the caller can record its removal once the task has run.
type ReplayedTask struct {
	ID   uint64
	Task Task
}

// Replay reads every entity from path and reconstructs the live range
// and task set, honoring removals (spec.md §4.8). A missing file replays
// as empty. A trailing truncated or checksum-mismatched entity is
// treated as the tail of an interrupted write and silently dropped,
// mirroring the commit log's tolerance for a partial final fragment.
func Replay(fs storagefs.FS, path string) (*ReplayResult, error) {
	out := &ReplayResult{Ranges: map[uint64]schema.RangeMeta{}}

	rc, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("rsml: open %s: %w", path, err)
	}
	defer rc.Close()

	size, err := rc.Size()
	if err != nil {
		return nil, fmt.Errorf("rsml: stat %s: %w", path, err)
	}
	buf := make([]byte, size)
	if _, err := rc.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("rsml: read %s: %w", path, err)
	}

	tasks := map[uint64]Task{}
	var taskOrder []uint64

	off := 0
	for off < len(buf) {
		e, n, err := decodeEntity(buf[off:])
		if err != nil {
			if errors.Is(err, ErrTruncated) || errors.Is(err, ErrCorruptEntity) {
				break
			}
			return nil, err
		}
		off += n

		if e.ID >= out.NextID {
			out.NextID = e.ID + 1
		}

		switch e.Type {
		case EntityRange:
			meta, err := decodeRangeMeta(e.Payload, false)
			if err != nil {
				return nil, fmt.Errorf("rsml: decode range entity %d: %w", e.ID, err)
			}
			out.Ranges[e.ID] = meta
		case EntityRange2:
			meta, err := decodeRangeMeta(e.Payload, true)
			if err != nil {
				return nil, fmt.Errorf("rsml: decode range2 entity %d: %w", e.ID, err)
			}
			out.Ranges[e.ID] = meta
		case EntityTask:
			t, err := decodeTask(e.Payload)
			if err != nil {
				return nil, fmt.Errorf("rsml: decode task entity %d: %w", e.ID, err)
			}
			if _, seen := tasks[e.ID]; !seen {
				taskOrder = append(taskOrder, e.ID)
			}
			tasks[e.ID] = t
		case EntityRemoval:
			delete(out.Ranges, e.ID)
			delete(tasks, e.ID)
		default:
			return nil, fmt.Errorf("rsml: entity %d: unknown type %#x", e.ID, e.Type)
		}
	}

	for _, id := range taskOrder {
		if t, ok := tasks[id]; ok {
			out.Tasks = append(out.Tasks, ReplayedTask{ID: id, Task: t})
		}
	}
	return out, nil
}

// Log is an append-only meta-log writer. Entity ids are assigned by the
// caller (typically the NextID reported by a prior Replay); Log does not
// generate them, so that a caller can correlate an id across a range's
// in-memory state and its RSML persistence.
type Log struct {
	fs   storagefs.FS
	path string

	mu sync.Mutex
	w  storagefs.WriteCloser
}

// Open opens path for append, creating it if absent.
func Open(fs storagefs.FS, path string) (*Log, error) {
	w, err := fs.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("rsml: open %s: %w", path, err)
	}
	return &Log{fs: fs, path: path, w: w}, nil
}

// RecordRange appends a RANGE (or RANGE2, if meta.OriginalTransferLog is
// set) entity under id.
func (l *Log) RecordRange(id uint64, meta schema.RangeMeta) error {
	wide := meta.OriginalTransferLog != ""
	typ := EntityRange
	if wide {
		typ = EntityRange2
	}
	return l.write(Entity{ID: id, Type: typ, Payload: encodeRangeMeta(meta, wide)})
}

// RecordTask appends a task entity under id.
func (l *Log) RecordTask(id uint64, t Task) error {
	return l.write(Entity{ID: id, Type: EntityTask, Payload: encodeTask(t)})
}

// RecordRemoval appends a removal entity for a previously recorded id.
func (l *Log) RecordRemoval(id uint64) error {
	return l.write(Entity{ID: id, Type: EntityRemoval})
}

// RecordStateAndRemoval appends a new state entity together with one or
// more removals in a single write, so a reader never observes the new
// state without the removals that accompany it or vice versa (spec.md
// §4.8, used by relinquish: persist the task and the range's removal
// atomically).
func (l *Log) RecordStateAndRemoval(rangeID uint64, meta schema.RangeMeta, removeIDs ...uint64) error {
	wide := meta.OriginalTransferLog != ""
	typ := EntityRange
	if wide {
		typ = EntityRange2
	}
	entities := []Entity{{ID: rangeID, Type: typ, Payload: encodeRangeMeta(meta, wide)}}
	for _, id := range removeIDs {
		entities = append(entities, Entity{ID: id, Type: EntityRemoval})
	}
	return l.writeAll(entities)
}

// RecordTaskAndRemoval appends a new task entity together with one or
// more removals in a single write (spec.md §4.8, used by relinquish:
// "enqueue a log-removal task; persist removal of the range entity and
// the task atomically").
func (l *Log) RecordTaskAndRemoval(taskID uint64, t Task, removeIDs ...uint64) error {
	entities := []Entity{{ID: taskID, Type: EntityTask, Payload: encodeTask(t)}}
	for _, id := range removeIDs {
		entities = append(entities, Entity{ID: id, Type: EntityRemoval})
	}
	return l.writeAll(entities)
}

func (l *Log) write(e Entity) error {
	return l.writeAll([]Entity{e})
}

// writeAll concatenates every entity's framed image into one buffer and
// issues a single Write followed by a single Sync, so that either all of
// the entities land durably or (on a crash mid-write) none of them do
// according to the trailing-entity checksum that Replay uses to detect a
// partial write.
func (l *Log) writeAll(entities []Entity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var buf []byte
	for _, e := range entities {
		buf = append(buf, encodeEntity(e)...)
	}
	if _, err := l.w.Write(buf); err != nil {
		return fmt.Errorf("rsml: write %s: %w", l.path, err)
	}
	if err := l.w.Sync(); err != nil {
		return fmt.Errorf("rsml: sync %s: %w", l.path, err)
	}
	return nil
}

// Close closes the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}
