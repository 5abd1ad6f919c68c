package indicator

import "math"

// HawkesParams holds the exponential-kernel parameters for one event
// type: baseline intensity mu, jump alpha, and decay beta.
type HawkesParams struct {
	Mu    float64
	Alpha float64
	Beta  float64
}

// Hawkes computes a single-type self-exciting intensity with an
// exponential kernel (spec §4.7):
//
//	lambda_t = mu + (lambda_prev - mu) * exp(-beta*(t-t_prev)) + alpha
//
// Update is O(1) per event: only the previous intensity and event time
// are retained.
type Hawkes struct {
	params HawkesParams
	lambda float64
	tPrev  float64
	have   bool
}

// NewHawkes constructs a Hawkes calculator with intensity initialized to
// the baseline mu.
func NewHawkes(params HawkesParams) *Hawkes {
	return &Hawkes{params: params, lambda: params.Mu}
}

// Update folds in an event at time t (any monotonically increasing time
// unit consistent across calls, e.g. nanoseconds) and returns the new
// intensity. The first call establishes t_prev and jumps the intensity
// by alpha with no decay applied.
func (h *Hawkes) Update(t float64) float64 {
	if !h.have {
		h.lambda = h.params.Mu + h.params.Alpha
		h.tPrev = t
		h.have = true
		return h.lambda
	}

	dt := t - h.tPrev
	decay := math.Exp(-h.params.Beta * dt)
	h.lambda = h.params.Mu + (h.lambda-h.params.Mu)*decay + h.params.Alpha
	h.tPrev = t
	return h.lambda
}

// Intensity returns the current intensity without an event, decayed to
// time t (t must be >= the last event time).
func (h *Hawkes) Intensity(t float64) float64 {
	if !h.have {
		return h.params.Mu
	}
	dt := t - h.tPrev
	if dt < 0 {
		dt = 0
	}
	return h.params.Mu + (h.lambda-h.params.Mu)*math.Exp(-h.params.Beta*dt)
}

// Reset clears the calculator back to baseline intensity mu.
func (h *Hawkes) Reset() {
	h.lambda = h.params.Mu
	h.tPrev = 0
	h.have = false
}

// MultivariateHawkes models N mutually-exciting event types with a flat
// alpha[src][dst] excitation matrix (spec §9): an event of type src
// jumps the intensity of every dst by alpha[src][dst], decayed per-type
// by beta[dst].
type MultivariateHawkes struct {
	n      int
	mu     []float64
	beta   []float64
	alpha  [][]float64 // alpha[src][dst]
	lambda []float64
	tPrev  []float64
	have   []bool
}

// NewMultivariateHawkes constructs a multivariate Hawkes calculator for
// len(mu) event types. alpha must be an n x n matrix; beta must have
// length n.
func NewMultivariateHawkes(mu, beta []float64, alpha [][]float64) *MultivariateHawkes {
	n := len(mu)
	m := &MultivariateHawkes{
		n:      n,
		mu:     append([]float64(nil), mu...),
		beta:   append([]float64(nil), beta...),
		alpha:  alpha,
		lambda: make([]float64, n),
		tPrev:  make([]float64, n),
		have:   make([]bool, n),
	}
	copy(m.lambda, mu)
	return m
}

// Update folds in an event of type src at time t, decaying every type's
// intensity to t and then applying src's row of the excitation matrix to
// every dst (including src itself, i.e. self-excitation). It returns the
// post-update intensity vector; callers must not retain the returned
// slice across further Update calls.
func (m *MultivariateHawkes) Update(src int, t float64) []float64 {
	for dst := 0; dst < m.n; dst++ {
		if m.have[dst] {
			dt := t - m.tPrev[dst]
			decay := math.Exp(-m.beta[dst] * dt)
			m.lambda[dst] = m.mu[dst] + (m.lambda[dst]-m.mu[dst])*decay
		}
		m.lambda[dst] += m.alpha[src][dst]
		m.tPrev[dst] = t
		m.have[dst] = true
	}
	return m.lambda
}

// Intensities returns the current intensity vector without mutating
// state.
func (m *MultivariateHawkes) Intensities() []float64 {
	return append([]float64(nil), m.lambda...)
}

// Reset clears every type's intensity back to its baseline mu.
func (m *MultivariateHawkes) Reset() {
	copy(m.lambda, m.mu)
	for i := range m.tPrev {
		m.tPrev[i] = 0
		m.have[i] = false
	}
}
