package rsrv

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

// StatusCode is the health-probe result status() returns (spec.md
// §4.10 "{code, message}").
type StatusCode int

const (
	StatusOK StatusCode = iota
	StatusDegraded
)

// Status reports this server's health: OK, or degraded with a message
// naming the reason (spec.md §4.10 status).
func (s *Server) Status() (StatusCode, string) {
	s.mu.RLock()
	closed := s.closed
	ranges := len(s.ranges)
	scanners := s.scanners.len()
	s.mu.RUnlock()

	if closed {
		return StatusDegraded, "server is shutting down"
	}
	return StatusOK, fmt.Sprintf("%d ranges, %d open scanners", ranges, scanners)
}

func (t *scannerTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// HeapCheck dumps a heap profile to outfile, or to stderr if outfile is
// empty (spec.md §4.10 heapcheck).
func (s *Server) HeapCheck(outfile string) error {
	w := os.Stderr
	if outfile != "" {
		f, err := os.Create(outfile)
		if err != nil {
			return wrapErr("heapcheck", KindFilesystem, err)
		}
		defer f.Close()
		w = f
	}
	runtime.GC()
	if err := pprof.WriteHeapProfile(w); err != nil {
		return wrapErr("heapcheck", KindFilesystem, err)
	}
	return nil
}
