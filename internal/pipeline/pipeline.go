package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rangekit/rangekit/internal/commitlog"
	"github.com/rangekit/rangekit/internal/rrange"
	"github.com/rangekit/rangekit/pkg/cell"
)

// ErrClosed is returned by Submit once Shutdown has been called.
var ErrClosed = fmt.Errorf("pipeline: closed")

const (
	defaultQueueSize      = 256
	defaultHighWaterBytes = 64 << 20
)

// Options configures a Pipeline.
type Options struct {
	Catalog Catalog
	Router  Router

	QueueSize      int   // per-stage channel capacity; 0 means a built-in default
	HighWaterBytes int64 // back-pressure threshold; 0 means a built-in default

	QualifyWorkers int // 0 means 1 (spec.md's "single-threaded per range-server" default)
	CommitWorkers  int // 0 means 1
	RespondWorkers int // 0 means 1

	Logger *slog.Logger
}

func workers(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// qualifiedMutation is one mutation after qualify has resolved its
// timestamp, revision, and destination range.
type qualifiedMutation struct {
	offset int
	key    cell.Key
	value  []byte
}

// rangeGroup buckets a batch's qualified mutations by destination
// range (spec.md §4.9 qualify step 3 "bucket mutations by destination
// range").
type rangeGroup struct {
	target *RangeTarget
	muts   []qualifiedMutation
}

// commitJob is one batch in flight past the qualify stage.
type commitJob struct {
	batch    *Batch
	meta     bool // table is a system/meta table: force fsync
	groups   map[*rrange.Range]*rangeGroup
	rejected []Rejection
}

// Pipeline is the range server's three-stage update ingress (spec.md
// §4.9).
type Pipeline struct {
	opts  Options
	log   *slog.Logger
	clock Clock

	qualifyCh chan *Batch
	commitCh  chan *commitJob
	respondCh chan *commitJob

	qualifyWG, commitWG, respondWG sync.WaitGroup
	done                           chan struct{}

	mu           sync.Mutex
	cond         *sync.Cond
	pendingBytes int64
	highWater    int64
	closed       bool
}

// New constructs a Pipeline. Call Start to spin up its worker pools.
func New(opts Options) (*Pipeline, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("pipeline: Options.Catalog is required")
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("pipeline: Options.Router is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	highWater := opts.HighWaterBytes
	if highWater <= 0 {
		highWater = defaultHighWaterBytes
	}
	p := &Pipeline{
		opts:      opts,
		log:       log,
		qualifyCh: make(chan *Batch, queueSize),
		commitCh:  make(chan *commitJob, queueSize),
		respondCh: make(chan *commitJob, queueSize),
		highWater: highWater,
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Start launches the qualify, commit, and respond worker pools.
func (p *Pipeline) Start() {
	for i := 0; i < workers(p.opts.QualifyWorkers); i++ {
		p.qualifyWG.Add(1)
		go func() {
			defer p.qualifyWG.Done()
			for b := range p.qualifyCh {
				p.commitCh <- p.qualify(b)
			}
		}()
	}
	go func() {
		p.qualifyWG.Wait()
		close(p.commitCh)
	}()

	for i := 0; i < workers(p.opts.CommitWorkers); i++ {
		p.commitWG.Add(1)
		go func() {
			defer p.commitWG.Done()
			for job := range p.commitCh {
				p.commit(job)
				p.respondCh <- job
			}
		}()
	}
	go func() {
		p.commitWG.Wait()
		close(p.respondCh)
	}()

	p.done = make(chan struct{})
	for i := 0; i < workers(p.opts.RespondWorkers); i++ {
		p.respondWG.Add(1)
		go func() {
			defer p.respondWG.Done()
			for job := range p.respondCh {
				p.respond(job)
			}
		}()
	}
	go func() {
		p.respondWG.Wait()
		close(p.done)
	}()
}

// Submit enqueues a batch for qualification. It blocks while
// accumulated in-flight commit bytes meet or exceed the configured
// high-water mark (spec.md §4.9 "Back-pressure"), and returns
// ErrClosed once Shutdown has been called.
func (p *Pipeline) Submit(b Batch) error {
	est := b.bytesEstimate()

	p.mu.Lock()
	for p.pendingBytes >= p.highWater && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.pendingBytes += est
	p.mu.Unlock()

	p.qualifyCh <- &b
	return nil
}

func (p *Pipeline) release(n int64) {
	p.mu.Lock()
	p.pendingBytes -= n
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Shutdown stops accepting new batches, drains every in-flight one
// through to its response, and returns once all three stages have
// exited (spec.md §4.9 "Cancellation"). It returns ctx's error if ctx
// is done first; already-enqueued batches keep draining in the
// background regardless.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	close(p.qualifyCh)

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) qualify(b *Batch) *commitJob {
	job := &commitJob{batch: b, groups: make(map[*rrange.Range]*rangeGroup)}

	info, err := p.opts.Catalog.TableInfo(b.Table)
	if err != nil {
		for i := range b.Mutations {
			job.rejected = append(job.rejected, Rejection{Offset: i, Err: fmt.Errorf("%w: %v", ErrUnknownTable, err)})
		}
		return job
	}
	job.meta = info.IsMeta

	for i, m := range b.Mutations {
		key := m.Key
		if _, ok := info.Schema.FamilyByID(key.ColumnFamilyID); !ok {
			if !b.IgnoreUnknownCFs {
				job.rejected = append(job.rejected, Rejection{
					Offset: i,
					Err:    fmt.Errorf("%w: family %d", ErrUnknownColumnFamily, key.ColumnFamilyID),
				})
			}
			continue
		}

		target, err := p.opts.Router.RouteRange(b.Table, key.Row)
		if err != nil {
			job.rejected = append(job.rejected, Rejection{Offset: i, Err: err})
			continue
		}

		if key.Timestamp == cell.AutoAssign {
			key.Timestamp = p.clock.Now()
		}
		if key.Revision == cell.AutoAssign {
			key.Revision = target.Range.AssignRevision()
		}

		g := job.groups[target.Range]
		if g == nil {
			g = &rangeGroup{target: target}
			job.groups[target.Range] = g
		}
		g.muts = append(g.muts, qualifiedMutation{offset: i, key: key, value: m.Value})
	}
	return job
}

func (p *Pipeline) commit(job *commitJob) {
	sync := job.batch.Sync || job.meta
	for _, g := range job.groups {
		if len(g.muts) == 0 {
			continue
		}
		g.target.Range.EnterUpdateBarrier()
		cells := make([]cell.Cell, len(g.muts))
		for i, qm := range g.muts {
			cells[i] = cell.Cell{Key: qm.key, Value: qm.value}
		}
		_, err := g.target.CommitLog.Append(cells, commitlog.AppendOptions{Sync: sync})
		g.target.Range.ExitUpdateBarrier()
		if err != nil {
			for _, qm := range g.muts {
				job.rejected = append(job.rejected, Rejection{Offset: qm.offset, Err: err})
			}
			g.muts = nil
		}
	}
}

func (p *Pipeline) respond(job *commitJob) {
	rejected := append([]Rejection(nil), job.rejected...)
	for _, g := range job.groups {
		for _, qm := range g.muts {
			if err := g.target.Range.Add(qm.key, qm.value); err != nil {
				rejected = append(rejected, Rejection{Offset: qm.offset, Err: err})
			}
		}
	}
	if job.batch.Respond != nil {
		job.batch.Respond(Result{Rejected: rejected})
	}
	p.release(job.batch.bytesEstimate())
}
