// Package convergence implements standalone iteration and error bookkeeping
// for driver loops: it answers "has the filter converged?" from a history of
// per-step residual norms without knowing anything about sigma points or
// covariance factors.
//
// The filter keeps its own, identical, minimal predicate inline (see
// HasConverged in the parent package) because the step that computes
// currError already has prevError close at hand; Tracker exists for callers
// that want the full history, not just the latest comparison, e.g. for
// plotting with PlotHistory.
package convergence

import "math"

// Tracker accumulates the residual-norm history of a running filter and
// answers the same "has it converged" question the filter itself answers
// internally, plus iteration count and full history for diagnostics.
type Tracker struct {
	tolerance float64
	history   []float64
}

// NewTracker returns a Tracker comparing successive errors against tol.
func NewTracker(tol float64) *Tracker {
	return &Tracker{tolerance: tol}
}

// Record appends one step's residual norm (as returned by ExecuteStep) to
// the history.
func (t *Tracker) Record(err float64) {
	t.history = append(t.history, err)
}

// Iterations returns the number of recorded steps.
func (t *Tracker) Iterations() int { return len(t.history) }

// History returns a copy of the recorded error sequence, oldest first.
func (t *Tracker) History() []float64 {
	return append([]float64(nil), t.history...)
}

// Tolerance returns the convergence tolerance.
func (t *Tracker) Tolerance() float64 { return t.tolerance }

// SetTolerance updates the convergence tolerance.
func (t *Tracker) SetTolerance(tol float64) { t.tolerance = tol }

// HasConverged reports whether the last two recorded errors are within
// tolerance of each other, exactly like (*base).HasConverged: it is always
// false before the second recorded step, and compares |curr - prev|
// (optionally divided by |prev|, when relative is true) against tolerance.
func (t *Tracker) HasConverged(relative bool) bool {
	if len(t.history) < 2 {
		return false
	}
	curr := t.history[len(t.history)-1]
	prev := t.history[len(t.history)-2]
	diff := math.Abs(curr - prev)
	if relative {
		denom := math.Abs(prev)
		if denom == 0 {
			return diff == 0
		}
		return diff/denom < t.tolerance
	}
	return diff < t.tolerance
}
