// Package shm implements the shared-memory region manager and the
// lock-free single-producer/multi-consumer ring buffer that sits on top
// of it: region create/attach/close (C3), RingWriter (C4) and RingReader
// (C5).
//
// The on-disk/on-mmap layout is fixed by the wire contract: a 128-byte,
// 64-byte-aligned header followed by N fixed-size slots. See Header and
// slotHeaderSize below for the exact byte offsets.
package shm

import (
	"fmt"
	"unsafe"
)

// Magic identifies the region's schema. Any attacher seeing a different
// value must refuse to attach.
const Magic uint32 = 0x53484A4D // "SHJM"

// Version is the current header/slot layout version.
const Version uint16 = 1

// CacheLineSize is the alignment unit for slots and the write cursor.
const CacheLineSize = 64

// HeaderSize is the fixed size, in bytes, of the region header.
const HeaderSize = 128

// DefaultSlotCount and DefaultSlotSize are the creation defaults named in
// the spec's data model (§3).
const (
	DefaultSlotCount = 1024
	DefaultSlotSize  = 256
)

// slotHeaderSize is the size, in bytes, of the per-slot fixed fields:
// seq_num(8) + payload_len(2) + flags(2) + publish_ts_ns(8).
const slotHeaderSize = 20

// Flag bits stored in a slot's flags field.
const (
	FlagTruncated uint16 = 1 << 0
)

// Header mirrors the 128-byte region header. Field order matches the
// wire layout exactly: every gap is an explicit reserved array so Go's
// natural struct alignment reproduces the byte offsets without relying
// on packed-struct tricks. WriteCursor starts at offset 64 so it occupies
// its own cache line, isolated from the identifying fields above it.
type Header struct {
	Magic       uint32   // 0..4
	Version     uint16   // 4..6
	SlotSize    uint16   // 6..8
	SlotCount   uint32   // 8..12
	_reserved0  [4]byte  // 12..16
	CreatedNs   uint64   // 16..24
	ProducerPid uint32   // 24..28
	_reserved1  [36]byte // 28..64
	WriteCursor uint64   // 64..72, atomic, own cache line
	_reserved2  [56]byte // 72..128
}

func init() {
	if unsafe.Sizeof(Header{}) != HeaderSize {
		panic(fmt.Sprintf("shm: Header size is %d, expected %d", unsafe.Sizeof(Header{}), HeaderSize))
	}
}

// isPowerOfTwo reports whether n is a nonzero power of two.
func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// slotOffset returns the byte offset of slot i within the mapped region
// (header included).
func slotOffset(i, slotSize uint64) int64 {
	return HeaderSize + int64(i*slotSize)
}
