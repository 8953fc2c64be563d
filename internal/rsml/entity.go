package rsml

import (
	"fmt"

	"github.com/rangekit/rangekit/internal/codec"
	"github.com/rangekit/rangekit/internal/wire"
)

// Entity types (spec.md §6.3). RANGE2 extends RANGE with an original
// transfer log field, written by servers that need to remember the log
// a range arrived under across a later relinquish.
const (
	EntityRange   uint32 = 0x00010001
	EntityRange2  uint32 = 0x00010002
	EntityTask    uint32 = 0x00020001
	EntityRemoval uint32 = 0x00030001
)

// entityHeaderSize is the on-disk size of an entity header: id(8) +
// type(4) + length(4) + flags(2) + checksum(4) (spec.md §6.3).
const entityHeaderSize = 22

// ErrCorruptEntity is returned when a payload's checksum does not match
// its header.
var ErrCorruptEntity = fmt.Errorf("rsml: corrupt entity: checksum mismatch")

// ErrTruncated is returned when a log ends mid-entity; replay treats this
// as the tail of a partial write and stops there rather than failing.
var ErrTruncated = fmt.Errorf("rsml: truncated entity")

// Entity is one framed record: a header plus an opaque payload.
// Removal entities carry no payload; their ID names the entity being
// dropped.
type Entity struct {
	ID      uint64
	Type    uint32
	Flags   uint16
	Payload []byte
}

func encodeEntity(e Entity) []byte {
	buf := make([]byte, entityHeaderSize+len(e.Payload))
	wire.PutU64(buf[0:], e.ID)
	wire.PutU32(buf[8:], e.Type)
	wire.PutU32(buf[12:], uint32(len(e.Payload)))
	wire.PutU16(buf[16:], e.Flags)
	wire.PutU32(buf[18:], codec.Fletcher32(e.Payload))
	copy(buf[entityHeaderSize:], e.Payload)
	return buf
}

// decodeEntity reads one entity from the front of buf and returns it
// along with the number of bytes consumed. It returns ErrTruncated if
// buf holds fewer bytes than the framed entity requires.
func decodeEntity(buf []byte) (Entity, int, error) {
	if len(buf) < entityHeaderSize {
		return Entity{}, 0, ErrTruncated
	}
	var e Entity
	e.ID = wire.U64(buf[0:])
	e.Type = wire.U32(buf[8:])
	length := wire.U32(buf[12:])
	e.Flags = wire.U16(buf[16:])
	checksum := wire.U32(buf[18:])

	total := entityHeaderSize + int(length)
	if len(buf) < total {
		return Entity{}, 0, ErrTruncated
	}
	e.Payload = append([]byte(nil), buf[entityHeaderSize:total]...)
	if codec.Fletcher32(e.Payload) != checksum {
		return Entity{}, 0, ErrCorruptEntity
	}
	return e, total, nil
}
