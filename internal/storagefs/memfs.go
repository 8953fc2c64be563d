package storagefs

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemFS is an in-memory FS implementation used by tests so that commit log
// and cell store behavior can be exercised without touching disk.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memFile
}

type memFile struct {
	mu   sync.Mutex
	data []byte
}

// NewMem returns an empty in-memory filesystem.
func NewMem() *MemFS { return &MemFS{files: make(map[string]*memFile)} }

func (m *MemFS) file(path string, create bool) (*memFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		if !create {
			return nil, os.ErrNotExist
		}
		f = &memFile{}
		m.files[path] = f
	}
	return f, nil
}

func (m *MemFS) Create(p string) (WriteCloser, error) {
	m.mu.Lock()
	f := &memFile{}
	m.files[p] = f
	m.mu.Unlock()
	return &memWriter{f: f}, nil
}

func (m *MemFS) OpenAppend(p string) (WriteCloser, error) {
	f, err := m.file(p, true)
	if err != nil {
		return nil, err
	}
	return &memWriter{f: f, appendOnly: true}, nil
}

func (m *MemFS) Open(p string) (ReadCloser, error) {
	f, err := m.file(p, false)
	if err != nil {
		return nil, err
	}
	return &memReader{f: f}, nil
}

func (m *MemFS) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[p]; !ok {
		return os.ErrNotExist
	}
	delete(m.files, p)
	return nil
}

func (m *MemFS) List(dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = strings.TrimSuffix(dir, "/")
	var names []string
	for p := range m.files {
		if path.Dir(p) == dir {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemFS) MkdirAll(string) error { return nil }

func (m *MemFS) Size(p string) (int64, error) {
	f, err := m.file(p, false)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data)), nil
}

type memWriter struct {
	f          *memFile
	appendOnly bool
	off        int64
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	if w.appendOnly {
		w.f.data = append(w.f.data, p...)
		return len(p), nil
	}
	need := int(w.off) + len(p)
	if need > len(w.f.data) {
		grown := make([]byte, need)
		copy(grown, w.f.data)
		w.f.data = grown
	}
	copy(w.f.data[w.off:], p)
	w.off += int64(len(p))
	return len(p), nil
}

func (w *memWriter) Sync() error { return nil }
func (w *memWriter) Close() error { return nil }

type memReader struct{ f *memFile }

func (r *memReader) ReadAt(p []byte, off int64) (int, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if off < 0 || off >= int64(len(r.f.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("memfs: read past end of file")
	}
	n := copy(p, r.f.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("memfs: short read (eof)")
	}
	return n, nil
}

func (r *memReader) Close() error { return nil }

func (r *memReader) Size() (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	return int64(len(r.f.data)), nil
}
