// Package indicator implements the stateful, O(1)-update microstructure
// calculators fed by the decoded message stream: Order Flow Imbalance
// (OFI), volume-synchronized probability of informed trading (VPIN), and
// a Hawkes self/mutually-exciting intensity model.
//
// Every calculator here is single-threaded per strategy instance: none
// of these types is safe for concurrent use, matching the disruptor
// teacher's single-threaded matching engine (no internal locking on the
// hot path).
package indicator

// BBO is one observation of the top of book at a point in time.
type BBO struct {
	BidPrice float64
	BidSize  float64
	AskPrice float64
	AskSize  float64
}

// OFI computes Order Flow Imbalance using the event-contribution
// definition (spec §4.7): positive values indicate buy pressure.
type OFI struct {
	prev BBO
	have bool
}

// NewOFI returns a fresh OFI calculator with no prior observation.
func NewOFI() *OFI {
	return &OFI{}
}

// Update folds in a new BBO observation and returns the OFI value for
// this tick. The first call after construction or Reset establishes the
// baseline and returns 0, since there is no prior state to compare
// against.
func (o *OFI) Update(cur BBO) float64 {
	if !o.have {
		o.prev = cur
		o.have = true
		return 0
	}

	bidContrib := bidContribution(o.prev, cur)
	askContrib := askContribution(o.prev, cur)

	o.prev = cur
	return bidContrib - askContrib
}

func bidContribution(prev, cur BBO) float64 {
	switch {
	case cur.BidPrice > prev.BidPrice:
		return cur.BidSize
	case cur.BidPrice < prev.BidPrice:
		return -prev.BidSize
	default:
		return cur.BidSize - prev.BidSize
	}
}

func askContribution(prev, cur BBO) float64 {
	switch {
	case cur.AskPrice < prev.AskPrice:
		return cur.AskSize
	case cur.AskPrice > prev.AskPrice:
		return -prev.AskSize
	default:
		return cur.AskSize - prev.AskSize
	}
}

// Reset clears the calculator back to its initial, no-prior-observation
// state.
func (o *OFI) Reset() {
	o.prev = BBO{}
	o.have = false
}
