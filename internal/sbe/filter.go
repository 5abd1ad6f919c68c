package sbe

import "sync/atomic"

// FilterStats counts frames this Filter has classified, for diagnostics
// exported in notify.StatsSnapshot alongside the other stages' counters.
type FilterStats struct {
	Admitted  uint64
	Heartbeat uint64
	Rejected  uint64
	Malformed uint64
}

// Filter is the C2 pre-decode admission gate: it drops heartbeats
// (template_id == 0) and, when configured with a non-empty admitted
// set, anything not in it, before a single decode-time byte is touched.
// Admit itself is meant to be driven by one ingestion goroutine, but the
// counters are atomics so a separate stats-reporting goroutine can call
// Stats concurrently.
type Filter struct {
	admitted map[uint16]struct{} // empty means "admit every non-heartbeat template"

	admittedCount uint64
	heartbeat     uint64
	rejected      uint64
	malformed     uint64
}

// NewFilter builds a Filter. An empty or nil templateIDs admits every
// template id except the heartbeat (0).
func NewFilter(templateIDs []uint16) *Filter {
	f := &Filter{}
	if len(templateIDs) > 0 {
		f.admitted = make(map[uint16]struct{}, len(templateIDs))
		for _, id := range templateIDs {
			f.admitted[id] = struct{}{}
		}
	}
	return f
}

// Admit decodes the 8-byte header from buf and reports whether the
// frame should proceed to the decoder. It returns the parsed header
// whenever one could be decoded, even on rejection, so callers can log
// what was dropped.
func (f *Filter) Admit(buf []byte) (MessageHeader, bool) {
	h, err := DecodeHeader(buf)
	if err != nil {
		atomic.AddUint64(&f.malformed, 1)
		return MessageHeader{}, false
	}

	if h.TemplateID == 0 {
		atomic.AddUint64(&f.heartbeat, 1)
		return h, false
	}

	if f.admitted != nil {
		if _, ok := f.admitted[h.TemplateID]; !ok {
			atomic.AddUint64(&f.rejected, 1)
			return h, false
		}
	}

	if int(h.BlockLength) > len(buf)-HeaderSize {
		atomic.AddUint64(&f.malformed, 1)
		return h, false
	}

	atomic.AddUint64(&f.admittedCount, 1)
	return h, true
}

// Stats returns a snapshot of this filter's counters.
func (f *Filter) Stats() FilterStats {
	return FilterStats{
		Admitted:  atomic.LoadUint64(&f.admittedCount),
		Heartbeat: atomic.LoadUint64(&f.heartbeat),
		Rejected:  atomic.LoadUint64(&f.rejected),
		Malformed: atomic.LoadUint64(&f.malformed),
	}
}
