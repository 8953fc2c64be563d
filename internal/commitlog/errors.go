package commitlog

import "errors"

var (
	// ErrClosed is returned by any operation on a log after Close, or
	// after an append or link hit a filesystem error and the log marked
	// itself CLOSED.
	ErrClosed = errors.New("commitlog: closed")
	// ErrBadMagic is returned when a fragment or block magic does not
	// match an expected value.
	ErrBadMagic = errors.New("commitlog: bad magic")
	// ErrCorruptBlock is returned when a block's checksum does not match
	// its payload.
	ErrCorruptBlock = errors.New("commitlog: corrupt block")
	// ErrAlreadyLinked names a directory already linked into a log.
	// LinkLog does not return it: linking an already-linked directory is
	// a no-op that returns nil.
	ErrAlreadyLinked = errors.New("commitlog: log directory already linked")
)
