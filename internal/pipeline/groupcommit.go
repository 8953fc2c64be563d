package pipeline

import (
	"sync"
	"time"

	"github.com/rangekit/rangekit/pkg/schema"
)

// GroupCommit coalesces successive update(table, count, buffer, flags)
// calls for the same (cluster_id, table) pair into one batch_update
// submitted to the pipeline once that table's configured
// group-commit-interval elapses (spec.md §4.9 "Group commit").
type GroupCommit struct {
	pipeline     *Pipeline
	tickInterval time.Duration
	intervalFor  func(schema.TableIdentifier) time.Duration

	mu      sync.Mutex
	pending map[groupKey]*pendingGroup
	stop    chan struct{}
	wg      sync.WaitGroup
}

type groupKey struct {
	clusterID uint64
	table     schema.TableIdentifier
}

type span struct {
	start, end int
	respond    func(Result)
}

type pendingGroup struct {
	table     schema.TableIdentifier
	createdAt time.Time
	mutations []Mutation
	spans     []span
	sync      bool
	ignore    bool
}

// GroupCommitOptions configures a GroupCommit.
type GroupCommitOptions struct {
	Pipeline *Pipeline
	// TickInterval is the global tick the coalescer wakes up on; every
	// table's configured interval is rounded up to a multiple of it.
	TickInterval time.Duration
	// IntervalFor returns the configured group-commit interval for a
	// table. Nil means every table flushes on every tick.
	IntervalFor func(schema.TableIdentifier) time.Duration
}

// NewGroupCommit constructs a GroupCommit. Call Start to begin ticking.
func NewGroupCommit(opts GroupCommitOptions) *GroupCommit {
	tick := opts.TickInterval
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	return &GroupCommit{
		pipeline:     opts.Pipeline,
		tickInterval: tick,
		intervalFor:  opts.IntervalFor,
		pending:      make(map[groupKey]*pendingGroup),
	}
}

// Update is one client update(table, count, buffer, flags) call.
type Update struct {
	ClusterID        uint64
	Table            schema.TableIdentifier
	Mutations        []Mutation
	Sync             bool
	IgnoreUnknownCFs bool
	// Respond, if set, receives this update's own slice of the merged
	// batch's result once the coalesced batch completes.
	Respond func(Result)
}

// roundedInterval rounds table's configured interval up to a multiple
// of the tick interval (spec.md §4.9 "rounded up to a multiple of the
// global tick interval").
func (gc *GroupCommit) roundedInterval(table schema.TableIdentifier) time.Duration {
	interval := gc.tickInterval
	if gc.intervalFor != nil {
		if v := gc.intervalFor(table); v > 0 {
			interval = v
		}
	}
	ticks := (interval + gc.tickInterval - 1) / gc.tickInterval
	if ticks < 1 {
		ticks = 1
	}
	return ticks * gc.tickInterval
}

// Submit folds u into the pending group for (u.ClusterID, u.Table),
// creating one if none is accumulating yet.
func (gc *GroupCommit) Submit(u Update) {
	key := groupKey{clusterID: u.ClusterID, table: u.Table}

	gc.mu.Lock()
	defer gc.mu.Unlock()
	g := gc.pending[key]
	if g == nil {
		g = &pendingGroup{table: u.Table, createdAt: time.Now()}
		gc.pending[key] = g
	}
	start := len(g.mutations)
	g.mutations = append(g.mutations, u.Mutations...)
	g.sync = g.sync || u.Sync
	g.ignore = g.ignore || u.IgnoreUnknownCFs
	g.spans = append(g.spans, span{start: start, end: start + len(u.Mutations), respond: u.Respond})
}

// Start launches the tick loop that flushes elapsed groups.
func (gc *GroupCommit) Start() {
	gc.stop = make(chan struct{})
	gc.wg.Add(1)
	go func() {
		defer gc.wg.Done()
		ticker := time.NewTicker(gc.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gc.stop:
				gc.flushAll()
				return
			case <-ticker.C:
				gc.flushDue()
			}
		}
	}()
}

// Stop halts the tick loop, flushing every remaining pending group
// first so no accumulated mutation is lost.
func (gc *GroupCommit) Stop() {
	close(gc.stop)
	gc.wg.Wait()
}

func (gc *GroupCommit) flushDue() {
	now := time.Now()
	var due []*pendingGroup
	gc.mu.Lock()
	for key, g := range gc.pending {
		if now.Sub(g.createdAt) >= gc.roundedInterval(g.table) {
			due = append(due, g)
			delete(gc.pending, key)
		}
	}
	gc.mu.Unlock()
	for _, g := range due {
		gc.submitGroup(g)
	}
}

func (gc *GroupCommit) flushAll() {
	gc.mu.Lock()
	all := make([]*pendingGroup, 0, len(gc.pending))
	for key, g := range gc.pending {
		all = append(all, g)
		delete(gc.pending, key)
	}
	gc.mu.Unlock()
	for _, g := range all {
		gc.submitGroup(g)
	}
}

func (gc *GroupCommit) submitGroup(g *pendingGroup) {
	spans := g.spans
	batch := Batch{
		Table:            g.table,
		Mutations:        g.mutations,
		Sync:             g.sync,
		IgnoreUnknownCFs: g.ignore,
		Respond: func(result Result) {
			splitResult(result, spans)
		},
	}
	if err := gc.pipeline.Submit(batch); err != nil {
		splitResult(Result{Rejected: rejectAll(len(g.mutations), err)}, spans)
	}
}

func rejectAll(n int, err error) []Rejection {
	rejected := make([]Rejection, n)
	for i := range rejected {
		rejected[i] = Rejection{Offset: i, Err: err}
	}
	return rejected
}

func splitResult(result Result, spans []span) {
	for _, sp := range spans {
		if sp.respond == nil {
			continue
		}
		var local []Rejection
		for _, r := range result.Rejected {
			if r.Offset >= sp.start && r.Offset < sp.end {
				local = append(local, Rejection{Offset: r.Offset - sp.start, Err: r.Err})
			}
		}
		sp.respond(Result{Rejected: local})
	}
}
