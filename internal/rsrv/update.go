package rsrv

import (
	"fmt"

	"github.com/rangekit/rangekit/internal/pipeline"
	"github.com/rangekit/rangekit/pkg/schema"
)

// UpdateRequest is one client update(table, count, buffer, flags) call
// (spec.md §4.10).
type UpdateRequest struct {
	Table            schema.TableIdentifier
	Mutations        []pipeline.Mutation
	Sync             bool
	IgnoreUnknownCFs bool
}

// Update enqueues req into the update pipeline and blocks until every
// mutation has either committed or been rejected, returning the
// rejected list (spec.md §4.10 "rejected list").
func (s *Server) Update(req UpdateRequest) ([]pipeline.Rejection, error) {
	done := make(chan pipeline.Result, 1)
	batch := pipeline.Batch{
		Table:            req.Table,
		Mutations:        req.Mutations,
		Sync:             req.Sync,
		IgnoreUnknownCFs: req.IgnoreUnknownCFs,
		Respond:          func(r pipeline.Result) { done <- r },
	}
	if err := s.pipeline.Submit(batch); err != nil {
		return nil, wrapErr("update", KindConcurrency, err)
	}
	result := <-done
	return result.Rejected, nil
}

// CommitLogSync forces an fsync of every commit log backing table's
// currently held ranges (spec.md §4.10 commit_log_sync).
func (s *Server) CommitLogSync(table schema.TableIdentifier) error {
	s.mu.RLock()
	var logs []*rangeEntry
	for qr, e := range s.ranges {
		if qr.Table.ID == table.ID {
			logs = append(logs, e)
		}
	}
	s.mu.RUnlock()

	if len(logs) == 0 {
		return wrapErr("commit_log_sync", KindRange, fmt.Errorf("%w: %s", ErrRangeNotFound, table))
	}
	seen := make(map[*rangeEntry]bool)
	for _, e := range logs {
		if seen[e] {
			continue
		}
		seen[e] = true
		if err := e.log.Roll(); err != nil {
			return wrapErr("commit_log_sync", KindCommitLog, err)
		}
	}
	return nil
}
