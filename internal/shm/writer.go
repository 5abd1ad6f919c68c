package shm

import (
	"encoding/binary"
	"sync/atomic"
	"time"
	"unsafe"
)

// TruncationPolicy selects what Writer.Publish does with a payload
// that exceeds a slot's capacity.
type TruncationPolicy int

const (
	// PolicyTruncate writes the first PayloadCapacity bytes, sets
	// FlagTruncated, and advances the cursor. This is the default.
	PolicyTruncate TruncationPolicy = iota
	// PolicyDrop discards the frame entirely; write_cursor is not
	// advanced.
	PolicyDrop
)

// WriterStats are read-only counters exposed for diagnostics. All fields
// are updated with atomic operations and safe to read concurrently with
// Publish.
type WriterStats struct {
	Published uint64
	Truncated uint64
	Dropped   uint64
}

// Writer is the single-producer ring writer (C4). A Region must only
// ever be driven by one Writer; concurrent publishers are undefined
// behavior and are not detected at runtime. The
// counters are atomics so a separate stats-reporting goroutine can call
// Stats concurrently with the producer's own Publish calls.
type Writer struct {
	region *Region
	policy TruncationPolicy
	next   uint64

	truncated atomic.Uint64
	dropped   atomic.Uint64
	published atomic.Uint64
}

// NewWriter wraps a writable Region in a Writer using the given
// truncation policy. The Region must have been obtained from Create.
func NewWriter(region *Region, policy TruncationPolicy) *Writer {
	return &Writer{region: region, policy: policy}
}

// Publish writes payload into the next slot and returns its assigned
// sequence number. It never blocks, allocates, or performs a syscall; it
// is wait-free for the single producer driving this Writer.
//
// Ordering: the payload bytes and slot header fields are written with
// plain stores, then this slot's seq_num and finally write_cursor are
// published with atomic stores. A consumer that observes write_cursor >= k+1 is
// guaranteed to observe the complete, consistent contents of slot k.
func (w *Writer) Publish(payload []byte) (uint64, error) {
	k := w.next
	r := w.region
	slot := r.slotBytes(k)

	capacity := len(slot) - slotHeaderSize
	flags := uint16(0)
	n := len(payload)

	if n > capacity {
		switch w.policy {
		case PolicyDrop:
			w.dropped.Add(1)
			return 0, ErrDropped
		default: // PolicyTruncate
			n = capacity
			flags |= FlagTruncated
			w.truncated.Add(1)
		}
	}

	copy(slot[slotHeaderSize:], payload[:n])
	binary.LittleEndian.PutUint16(slot[8:10], uint16(n))
	binary.LittleEndian.PutUint16(slot[10:12], flags)
	binary.LittleEndian.PutUint64(slot[12:20], uint64(time.Now().UnixNano()))

	// Release: payload and slot header land in memory before seq_num is
	// published, and seq_num lands before write_cursor advances.
	storeSeq(slot, k)
	r.storeWriteCursor(k + 1)

	w.next = k + 1
	w.published.Add(1)
	return k, nil
}

// Stats returns a snapshot of this writer's counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Published: w.published.Load(),
		Truncated: w.truncated.Load(),
		Dropped:   w.dropped.Load(),
	}
}

// Cursor returns the next sequence number this writer will assign.
func (w *Writer) Cursor() uint64 { return w.next }

func storeSeq(slot []byte, seq uint64) {
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&slot[0])), seq)
}

func loadSeq(slot []byte) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&slot[0])))
}
