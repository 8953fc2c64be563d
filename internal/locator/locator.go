package locator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"

	"github.com/rangekit/rangekit/pkg/schema"
)

const defaultMaxErrorQueueLength = 64

// Options configures a Locator.
type Options struct {
	Lock    LockService
	Scanner MetadataScanner

	// MaxErrorQueueLength bounds the scan-error history (spec.md
	// §4.11). Defaults to 64.
	MaxErrorQueueLength int

	Logger *slog.Logger
}

// Locator resolves (table, row) pairs to a serving host, caching
// results and retrying a stale root with backoff (spec.md §4.11).
type Locator struct {
	lock LockService
	scan MetadataScanner
	log  *slog.Logger

	cache    *Cache
	errQueue *errorQueue

	mu        sync.Mutex
	rootHost  string
	rootStale atomic.Bool
}

// New constructs a Locator.
func New(opts Options) *Locator {
	max := opts.MaxErrorQueueLength
	if max <= 0 {
		max = defaultMaxErrorQueueLength
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Locator{
		lock:     opts.Lock,
		scan:     opts.Scanner,
		log:      log,
		cache:    NewCache(),
		errQueue: newErrorQueue(max),
	}
	l.rootStale.Store(true)
	return l
}

func (l *Locator) newBackoff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
}

// Locate resolves the host currently serving the range containing row
// in table, consulting the cache first and otherwise performing the
// two-level METADATA lookup, retrying with backoff while the root
// assignment is stale (spec.md §4.11 "Algorithm").
func (l *Locator) Locate(ctx context.Context, table schema.TableIdentifier, row []byte) (string, error) {
	if loc, _, ok := l.cache.Lookup(table.ID, row); ok {
		return loc, nil
	}

	var result string
	op := func() error {
		loc, err := l.locateOnce(ctx, table, row)
		if err != nil {
			l.errQueue.push(err)
			return err
		}
		result = loc
		return nil
	}
	if err := backoff.Retry(op, l.newBackoff(ctx)); err != nil {
		return "", fmt.Errorf("locator: locate %s %q: %w", table, row, err)
	}
	return result, nil
}

// locateOnce performs one attempt of the two-level lookup without
// retrying: find which METADATA range covers table's row-space at
// row, then scan that range for the user range's serving host.
func (l *Locator) locateOnce(ctx context.Context, table schema.TableIdentifier, row []byte) (string, error) {
	metaHost, err := l.metadataRangeHost(ctx, table, row)
	if err != nil {
		return "", err
	}

	key := metaRowKey(table, row)
	mrow, err := l.scan.ScanMetadataRow(ctx, metaHost, metadataTable, key)
	if err != nil {
		l.markRootStale()
		return "", fmt.Errorf("locator: scan metadata range on %s: %w", metaHost, err)
	}
	l.cache.Insert(table.ID, mrow.Range, mrow.Location)
	return mrow.Location, nil
}

// metadataRangeHost resolves which host serves the second-level
// METADATA range covering table's row-space at row, reading the root
// range from the lock service when no cached answer is held.
func (l *Locator) metadataRangeHost(ctx context.Context, table schema.TableIdentifier, row []byte) (string, error) {
	key := metaRowKey(table, row)
	if loc, _, ok := l.cache.Lookup(metadataTable.ID, key); ok {
		return loc, nil
	}

	host, err := l.readRoot(ctx)
	if err != nil {
		return "", err
	}
	mrow, err := l.scan.ScanMetadataRow(ctx, host, metadataTable, key)
	if err != nil {
		l.markRootStale()
		return "", fmt.Errorf("locator: scan root range on %s: %w", host, err)
	}
	l.cache.Insert(metadataTable.ID, mrow.Range, mrow.Location)
	return mrow.Location, nil
}

func (l *Locator) readRoot(ctx context.Context) (string, error) {
	l.mu.Lock()
	if l.rootHost != "" && !l.rootStale.Load() {
		host := l.rootHost
		l.mu.Unlock()
		return host, nil
	}
	l.mu.Unlock()

	host, err := l.lock.ReadRoot(ctx)
	if err != nil {
		return "", fmt.Errorf("locator: read root: %w", err)
	}

	l.mu.Lock()
	l.rootHost = host
	l.rootStale.Store(false)
	l.mu.Unlock()
	return host, nil
}

func (l *Locator) markRootStale() {
	l.rootStale.Store(true)
}

// Invalidate removes row's cached entry in table (spec.md §4.11
// "invalidate(table, row) removes a single entry").
func (l *Locator) Invalidate(table schema.TableIdentifier, row []byte) {
	l.cache.Invalidate(table.ID, row)
}

// InvalidateHost removes every cached entry served by host, marking
// the root stale if host was serving it (spec.md §4.11
// "invalidate_host(hostname) removes all entries for that host and
// marks root stale if the host was the root's").
func (l *Locator) InvalidateHost(host string) {
	removedMetadata := l.cache.InvalidateHost(host)

	l.mu.Lock()
	if l.rootHost == host {
		l.rootStale.Store(true)
	}
	l.mu.Unlock()

	if removedMetadata {
		l.log.Info("invalidated metadata-range assignments for host", "host", host)
	}
}

// Errors drains the scan-error queue (spec.md §4.11 error queue).
func (l *Locator) Errors() []error {
	return l.errQueue.Drain()
}
