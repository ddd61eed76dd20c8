// Package wire frames values demoted to a spill provider together with the
// expiration metadata needed to revive them.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 2
	kindSpill byte = 1

	flagHasAbs byte = 1 << 0

	// magic | ver | kind | priority | flags | abs | sliding | demoted | vlen
	headerLen = 4 + 1 + 1 + 1 + 1 + 8 + 8 + 8 + 4
)

var (
	ErrCorrupt = errors.New("expcache: corrupt spill frame")
	magic4     = [...]byte{'E', 'X', 'P', 'C'}
)

// Frame is a spilled value and its metadata.
type Frame struct {
	Priority  uint8
	HasAbs    bool
	AbsNanos  int64 // absolute expiration, unix nanos; valid when HasAbs
	Sliding   int64 // sliding window in nanos; 0 => none
	DemotedAt int64 // unix nanos; the sliding window keeps running while spilled
	Payload   []byte
}

// Encode lays out:
//
//	magic(4) | ver(1) | kind(1) | priority(1) | flags(1) | abs(i64 be) | sliding(i64 be) | demoted(i64 be) | vlen(u32 be) | payload(vlen)
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(f.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindSpill)
	buf.WriteByte(f.Priority)

	var flags byte
	if f.HasAbs {
		flags |= flagHasAbs
	}
	buf.WriteByte(flags)

	var u8 [8]byte
	var u4 [4]byte
	binary.BigEndian.PutUint64(u8[:], uint64(f.AbsNanos))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(f.Sliding))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(f.DemotedAt))
	buf.Write(u8[:])
	binary.BigEndian.PutUint32(u4[:], uint32(len(f.Payload)))
	buf.Write(u4[:])

	buf.Write(f.Payload)
	return buf.Bytes()
}

// Decode parses a frame. The payload aliases b. Trailing bytes are rejected.
func Decode(b []byte) (Frame, error) {
	if len(b) < headerLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version || b[5] != kindSpill {
		return Frame{}, ErrCorrupt
	}
	flags := b[7]
	if flags&^flagHasAbs != 0 {
		return Frame{}, ErrCorrupt
	}

	f := Frame{
		Priority:  b[6],
		HasAbs:    flags&flagHasAbs != 0,
		AbsNanos:  int64(binary.BigEndian.Uint64(b[8:16])),
		Sliding:   int64(binary.BigEndian.Uint64(b[16:24])),
		DemotedAt: int64(binary.BigEndian.Uint64(b[24:32])),
	}
	if f.Sliding < 0 {
		return Frame{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[32:36]))
	if vlen != len(b)-headerLen {
		return Frame{}, ErrCorrupt
	}
	f.Payload = b[headerLen:]
	return f, nil
}
