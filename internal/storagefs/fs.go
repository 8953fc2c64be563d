// Package storagefs defines the minimal filesystem surface the commit log
// and cell store need from the (out-of-scope) filesystem broker: append,
// read, list, delete and rename over a directory tree. Production code
// talks to OSFS; tests talk to MemFS.
//
// This mirrors hivekit's internal/writer split (FileWriter/MemWriter): one
// disk-backed implementation, one in-memory implementation, behind a
// shared interface.
package storagefs

import "io"

// FS is the filesystem surface range-server storage needs.
type FS interface {
	// Create creates (or truncates) a file for writing and returns a handle
	// positioned at offset 0.
	Create(path string) (WriteCloser, error)
	// OpenAppend opens an existing file for appending, creating it if
	// absent.
	OpenAppend(path string) (WriteCloser, error)
	// Open opens a file for reading.
	Open(path string) (ReadCloser, error)
	// Remove deletes path. Implementations return ErrNotExist if absent.
	Remove(path string) error
	// List returns the base names of files directly under dir, sorted.
	List(dir string) ([]string, error)
	// MkdirAll ensures dir (and parents) exist.
	MkdirAll(dir string) error
	// Size reports the current size of path.
	Size(path string) (int64, error)
}

// WriteCloser is a file handle open for writing, with an explicit durable
// flush distinct from Close (spec.md §4.2 "optionally fsync").
type WriteCloser interface {
	io.WriteCloser
	Sync() error
}

// ReadCloser is a file handle open for random-access reading.
type ReadCloser interface {
	io.ReaderAt
	io.Closer
	Size() (int64, error)
}
