package rsml

import (
	"fmt"

	"github.com/rangekit/rangekit/internal/wire"
	"github.com/rangekit/rangekit/pkg/schema"
)

// putBytes appends a length-prefixed byte string to buf.
func putBytes(buf []byte, v []byte) []byte {
	var lenBuf [4]byte
	wire.PutU32(lenBuf[:], uint32(len(v)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, v...)
}

func putString(buf []byte, s string) []byte { return putBytes(buf, []byte(s)) }

// getBytes reads a length-prefixed byte string from the front of buf,
// returning the value and the remainder.
func getBytes(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("rsml: %w: length prefix", ErrTruncated)
	}
	n := int(wire.U32(buf))
	buf = buf[4:]
	if len(buf) < n {
		return nil, nil, fmt.Errorf("rsml: %w: value body", ErrTruncated)
	}
	return append([]byte(nil), buf[:n]...), buf[n:], nil
}

func getString(buf []byte) (string, []byte, error) {
	v, rest, err := getBytes(buf)
	return string(v), rest, err
}

func putBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func getBool(buf []byte) (bool, []byte, error) {
	if len(buf) < 1 {
		return false, nil, fmt.Errorf("rsml: %w: bool", ErrTruncated)
	}
	return buf[0] != 0, buf[1:], nil
}

// encodeRangeMeta renders meta as a RANGE or RANGE2 payload. The
// original_transfer_log field is appended only for RANGE2, matching the
// field this entity type adds over RANGE (spec.md §6.3).
func encodeRangeMeta(meta schema.RangeMeta, wide bool) []byte {
	var buf []byte
	buf = putString(buf, meta.Table.ID)
	var genBuf [4]byte
	wire.PutU32(genBuf[:], meta.Table.Generation)
	buf = append(buf, genBuf[:]...)
	buf = putBytes(buf, meta.Spec.StartRow)
	buf = putBytes(buf, meta.Spec.EndRow)
	buf = append(buf, byte(meta.State))
	buf = putBool(buf, meta.Phantom)
	var tsBuf [8]byte
	wire.PutI64(tsBuf[:], meta.Timestamp)
	buf = append(buf, tsBuf[:]...)
	var limBuf [8]byte
	wire.PutU64(limBuf[:], meta.SoftLimitBytes)
	buf = append(buf, limBuf[:]...)
	buf = putString(buf, meta.TransferLog)
	buf = putBytes(buf, meta.SplitPoint)
	buf = putBytes(buf, meta.OldBoundaryRow)
	buf = putString(buf, meta.Source)
	buf = putBool(buf, meta.LoadAcknowledged)
	buf = putBool(buf, meta.NeedsCompaction)
	if wide {
		buf = putString(buf, meta.OriginalTransferLog)
	}
	return buf
}

// decodeRangeMeta is the inverse of encodeRangeMeta. wide selects
// whether a trailing original_transfer_log field is expected (RANGE2).
func decodeRangeMeta(buf []byte, wide bool) (schema.RangeMeta, error) {
	var meta schema.RangeMeta
	var err error

	meta.Table.ID, buf, err = getString(buf)
	if err != nil {
		return meta, err
	}
	if len(buf) < 4 {
		return meta, fmt.Errorf("rsml: %w: table generation", ErrTruncated)
	}
	meta.Table.Generation = wire.U32(buf)
	buf = buf[4:]

	meta.Spec.StartRow, buf, err = getBytes(buf)
	if err != nil {
		return meta, err
	}
	meta.Spec.EndRow, buf, err = getBytes(buf)
	if err != nil {
		return meta, err
	}
	if len(buf) < 1 {
		return meta, fmt.Errorf("rsml: %w: state", ErrTruncated)
	}
	meta.State = schema.RangeState(buf[0])
	buf = buf[1:]

	meta.Phantom, buf, err = getBool(buf)
	if err != nil {
		return meta, err
	}
	if len(buf) < 8 {
		return meta, fmt.Errorf("rsml: %w: timestamp", ErrTruncated)
	}
	meta.Timestamp = wire.I64(buf)
	buf = buf[8:]
	if len(buf) < 8 {
		return meta, fmt.Errorf("rsml: %w: soft limit", ErrTruncated)
	}
	meta.SoftLimitBytes = wire.U64(buf)
	buf = buf[8:]

	meta.TransferLog, buf, err = getString(buf)
	if err != nil {
		return meta, err
	}
	meta.SplitPoint, buf, err = getBytes(buf)
	if err != nil {
		return meta, err
	}
	meta.OldBoundaryRow, buf, err = getBytes(buf)
	if err != nil {
		return meta, err
	}
	meta.Source, buf, err = getString(buf)
	if err != nil {
		return meta, err
	}
	meta.LoadAcknowledged, buf, err = getBool(buf)
	if err != nil {
		return meta, err
	}
	meta.NeedsCompaction, buf, err = getBool(buf)
	if err != nil {
		return meta, err
	}
	if wide {
		meta.OriginalTransferLog, _, err = getString(buf)
		if err != nil {
			return meta, err
		}
	}
	return meta, nil
}

// Task is a maintenance action persisted alongside a range's lifecycle
// state so it survives a crash before it runs (spec.md §4.8's example:
// "remove transfer-log directory").
type Task struct {
	Kind    string
	Payload string
}

func encodeTask(t Task) []byte {
	var buf []byte
	buf = putString(buf, t.Kind)
	buf = putString(buf, t.Payload)
	return buf
}

func decodeTask(buf []byte) (Task, error) {
	var t Task
	var err error
	t.Kind, buf, err = getString(buf)
	if err != nil {
		return t, err
	}
	t.Payload, _, err = getString(buf)
	return t, err
}
