// Package roukf implements a reduced-order unscented Kalman filter (ROUKF)
// for joint state-parameter estimation of dynamical systems whose parameter
// dynamics are state-independent.
//
// The filter refines a parameter vector and, optionally, a state vector so
// that a user-supplied forward operator and observation operator match a
// stream of measurements, propagating uncertainty through a small,
// deterministic set of sigma points rather than a full covariance matrix.
package roukf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/roukf/roukf-go/sigma"
)

// ForwardFunc is the forward (state-transition) operator A. It receives the
// current state and problem-space parameter vectors and overwrites them in
// place with their propagated values. A non-nil error marks the sample as
// failed; the filter does not retry.
type ForwardFunc func(x, theta []float64) error

// ObservationFunc is the observation operator H. It receives the propagated
// state and writes the predicted observation into z.
type ObservationFunc func(x []float64, z []float64)

// Filter is the public surface shared by the full (joint state+parameter)
// and static (parameter-only) ROUKF variants.
type Filter interface {
	// State returns a copy of the current state estimate. Static filters
	// return a zero-length vector.
	State() []float64
	// SetState overwrites the current state estimate.
	SetState(x []float64) error
	// Parameters returns the current parameter estimate in problem space.
	Parameters() []float64
	// SetParameters sets the current parameter estimate from a problem-space
	// vector, mapping it into filter space internally.
	SetParameters(theta []float64) error
	// ParametersStd returns sqrt(1/diag(U)), the per-parameter standard
	// deviation in filter space.
	ParametersStd() []float64
	// ExecuteStep performs one serial assimilation step and returns the
	// current residual's L2 norm.
	ExecuteStep(zhat []float64, a ForwardFunc, h ObservationFunc) (float64, error)
	// Reset discards the current estimates and rebuilds every matrix the
	// way the constructor does, with possibly new dimensions. The mapper,
	// tolerance and max-iterations settings survive the reset.
	Reset(nStates, nParams, nObs int, paramUncertainty, obsUncertainty []float64, dist sigma.Distribution) error
	// Error returns the last residual vector zhat - zbar.
	Error() []float64
	// ObsError returns the i-th component of the last residual.
	ObsError(i int) (float64, error)
	// Tolerance and MaxIterations control HasConverged/the driver loop.
	Tolerance() float64
	SetTolerance(tol float64)
	MaxIterations() float64
	SetMaxIterations(n float64)
	// HasConverged reports whether the last two steps' errors are within
	// tolerance of each other. It always returns false before iteration 2.
	HasConverged(relative bool) bool
	// Describe renders the filter's internal matrices for debugging.
	Describe() string
}

var (
	_ Filter = (*Full)(nil)
	_ Filter = (*Static)(nil)
)

// vecCopy returns an independent copy of v as a plain slice.
func vecCopy(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
