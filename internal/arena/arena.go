package arena

import "sort"

const (
	// defaultPageSize is the default large-page size for bump allocation.
	defaultPageSize = 8 * 1024
	// tinyBufferSize satisfies very small allocations without touching the
	// page list.
	tinyBufferSize = 128
)

// Options configures an Arena.
type Options struct {
	// PageSize is the size of each large page. Zero means defaultPageSize.
	PageSize int
}

type page struct {
	buf  []byte
	used int
}

func (p *page) remaining() int { return len(p.buf) - p.used }

// Arena is a bump-pointer allocator. It is not safe for concurrent use;
// callers needing concurrency must synchronize externally (this matches
// the single-writer discipline of internal/cellcache).
type Arena struct {
	pageSize int

	tiny    [tinyBufferSize]byte
	tinyLen int

	full    []*page // pages with no usable remaining space, kept for Free
	partial []*page // pages with remaining space, sorted by remaining() ascending
}

// New creates an Arena with the given options.
func New(opts Options) *Arena {
	size := opts.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	return &Arena{pageSize: size}
}

// Dup returns an arena-owned copy of buf.
func (a *Arena) Dup(buf []byte) []byte {
	if len(buf) == 0 {
		return nil
	}
	dst := a.alloc(len(buf))
	copy(dst, buf)
	return dst
}

// DupString returns an arena-owned copy of s as a byte slice.
func (a *Arena) DupString(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	dst := a.alloc(len(s))
	copy(dst, s)
	return dst
}

// alloc returns n arena-owned bytes, satisfying the allocation from the
// tiny buffer, a partially-filled page, or a freshly allocated page, in
// that order of preference.
func (a *Arena) alloc(n int) []byte {
	if n <= tinyBufferSize-a.tinyLen {
		start := a.tinyLen
		a.tinyLen += n
		return a.tiny[start:a.tinyLen:a.tinyLen]
	}
	if idx, ok := a.findPartial(n); ok {
		p := a.partial[idx]
		a.partial = append(a.partial[:idx], a.partial[idx+1:]...)
		start := p.used
		p.used += n
		dst := p.buf[start:p.used:p.used]
		a.reinsertPartial(p)
		return dst
	}
	size := a.pageSize
	if n > size {
		size = n
	}
	p := &page{buf: make([]byte, size)}
	p.used = n
	dst := p.buf[0:n:n]
	a.reinsertPartial(p)
	return dst
}

// findPartial returns the index of the smallest partial page with at
// least n bytes remaining, using a binary search over the
// remaining()-ascending invariant.
func (a *Arena) findPartial(n int) (int, bool) {
	idx := sort.Search(len(a.partial), func(i int) bool {
		return a.partial[i].remaining() >= n
	})
	if idx < len(a.partial) {
		return idx, true
	}
	return 0, false
}

func (a *Arena) reinsertPartial(p *page) {
	if p.remaining() == 0 {
		a.full = append(a.full, p)
		return
	}
	idx := sort.Search(len(a.partial), func(i int) bool {
		return a.partial[i].remaining() >= p.remaining()
	})
	a.partial = append(a.partial, nil)
	copy(a.partial[idx+1:], a.partial[idx:])
	a.partial[idx] = p
}

// Free releases every page and resets the tiny buffer. Every pointer
// previously returned by Dup/DupString becomes invalid.
func (a *Arena) Free() {
	a.tinyLen = 0
	a.full = nil
	a.partial = nil
}

// Bytes reports the total bytes currently held across all pages and the
// tiny buffer, for memory accounting.
func (a *Arena) Bytes() int {
	total := a.tinyLen
	for _, p := range a.full {
		total += len(p.buf)
	}
	for _, p := range a.partial {
		total += len(p.buf)
	}
	return total
}
