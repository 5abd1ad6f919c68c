package shm

import (
	"encoding/binary"
)

// StartPolicy selects where a new Reader's expected sequence begins.
type StartPolicy int

const (
	// StartLatest sets expected_seq from write_cursor at attach time: the
	// reader only sees frames published after it starts.
	StartLatest StartPolicy = iota
	// StartFromZero begins at sequence 0. If the ring has already
	// wrapped past sequence 0, the first Next reports StatusOverrun and
	// skips to write_cursor, so the slots still resident are not
	// replayed.
	StartFromZero
)

// NextStatus is the outcome of Reader.Next.
type NextStatus int

const (
	// StatusOK means View holds a validated slot at the reader's
	// previously expected sequence.
	StatusOK NextStatus = iota
	// StatusEmpty means no new slot is available yet.
	StatusEmpty
	// StatusOverrun means the producer overwrote the slot the reader was
	// waiting for before it could be read. View.Gap holds the number of
	// sequences skipped.
	StatusOverrun
)

// View is a zero-copy handle on a published slot's payload. Payload
// borrows directly from the mapped region; the consumer must finish
// using it before the producer can overwrite the slot again (there is
// no cross-process borrow checking).
type View struct {
	SeqNum      uint64
	Payload     []byte
	Flags       uint16
	PublishedAt uint64 // nanoseconds since epoch
	Gap         uint64 // only meaningful when returned alongside StatusOverrun
}

// Truncated reports whether the publisher truncated this slot's payload.
func (v View) Truncated() bool { return v.Flags&FlagTruncated != 0 }

// ReaderStats are read-only counters exposed for diagnostics.
type ReaderStats struct {
	TransientMiss uint64
	Overruns      uint64
}

// Reader is a single consumer's cursor into a Region (C5). Multiple
// Readers may attach to the same Region independently; they share no
// mutable state with each other or with the Writer.
type Reader struct {
	region        *Region
	expected      uint64
	transientMiss uint64
	overruns      uint64
}

// NewReader creates a Reader over region. StartLatest begins at the
// region's current write_cursor (frames published before this call are
// skipped); StartFromZero begins at sequence 0, which replays the ring
// only while it has not yet wrapped (see StartFromZero).
func NewReader(region *Region, start StartPolicy) *Reader {
	r := &Reader{region: region}
	switch start {
	case StartFromZero:
		r.expected = 0
	default:
		r.expected = region.loadWriteCursor()
	}
	return r
}

// Cursor returns the reader's current expected sequence number.
func (r *Reader) Cursor() uint64 { return r.expected }

// Advance sets expected_seq to the larger of its current value and seq.
// Used to resynchronize after a caller decides how to handle Overrun.
func (r *Reader) Advance(seq uint64) {
	if seq > r.expected {
		r.expected = seq
	}
}

// Latest snapshots the most recently published slot without advancing
// the reader's cursor. It returns false if nothing has been published
// yet, or if a publish raced the read (TransientMiss is incremented and
// the caller may retry).
func (r *Reader) Latest() (View, bool) {
	c := r.region.loadWriteCursor()
	if c == 0 {
		return View{}, false
	}
	target := c - 1
	slot := r.region.slotBytes(target)
	seq := loadSeq(slot)
	if seq != target {
		r.transientMiss++
		return View{}, false
	}
	return decodeView(slot, seq), true
}

// Next returns the slot at expected_seq if it has been published,
// advancing the cursor by one on success. See StatusOK/StatusEmpty/
// StatusOverrun for the three possible outcomes.
func (r *Reader) Next() (View, NextStatus) {
	wc := r.region.loadWriteCursor()
	if r.expected == wc {
		return View{}, StatusEmpty
	}

	slot := r.region.slotBytes(r.expected)
	seq := loadSeq(slot)

	switch {
	case seq == r.expected:
		view := decodeView(slot, seq)
		// Re-check after reading payload: if the publisher wrapped
		// around and overwrote this slot mid-read, seq_num will have
		// moved on.
		if loadSeq(slot) != seq {
			r.overruns++
			gap := r.region.loadWriteCursor() - r.expected
			r.expected = r.region.loadWriteCursor()
			return View{Gap: gap}, StatusOverrun
		}
		r.expected++
		return view, StatusOK

	case seq > r.expected:
		gap := seq - r.expected
		r.overruns++
		r.expected = r.region.loadWriteCursor()
		return View{Gap: gap}, StatusOverrun

	default: // seq < expected: slot not yet (re)written for this lap
		return View{}, StatusEmpty
	}
}

// Stats returns a snapshot of this reader's counters.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{TransientMiss: r.transientMiss, Overruns: r.overruns}
}

func decodeView(slot []byte, seq uint64) View {
	payloadLen := binary.LittleEndian.Uint16(slot[8:10])
	flags := binary.LittleEndian.Uint16(slot[10:12])
	ts := binary.LittleEndian.Uint64(slot[12:20])
	payload := slot[slotHeaderSize : slotHeaderSize+int(payloadLen)]
	return View{SeqNum: seq, Payload: payload, Flags: flags, PublishedAt: ts}
}
