package roukf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/roukf/roukf-go/mapping"
	"github.com/roukf/roukf-go/matrix"
	"github.com/roukf/roukf-go/sigma"
)

// base holds the state shared by every ROUKF variant: the reduced-space
// sigma points, the parameter estimate and its reduced covariance factor,
// the observation weighting, the parameter mapper and the convergence
// bookkeeping.
type base struct {
	nStates int
	nParams int
	nObs    int

	dist  sigma.Distribution
	s     *mat.Dense // p x nSigma sigma points, p = nParams
	alpha float64
	dS    *mat.Dense // nSigma x p, alpha*s^T

	theta  *mat.VecDense // nParams, filter space
	lTheta *mat.Dense    // nParams x nParams
	u      *mat.SymDense // nParams x nParams
	wi     *mat.SymDense // nObs x nObs

	mapper mapping.Mapper

	tolerance     float64
	maxIterations float64
	currIt        int
	prevError     float64
	currError     float64
	residual      []float64
}

func newBase(nStates, nParams, nObs int, paramUncertainty, obsUncertainty []float64, dist sigma.Distribution, mapper mapping.Mapper) (*base, error) {
	if nParams <= 0 {
		return nil, fmt.Errorf("%w: nParams must be positive, got %d", ErrDimMismatch, nParams)
	}
	if nObs <= 0 {
		return nil, fmt.Errorf("%w: nObs must be positive, got %d", ErrDimMismatch, nObs)
	}
	if len(paramUncertainty) != nParams {
		return nil, fmt.Errorf("%w: paramUncertainty has %d entries, want %d", ErrDimMismatch, len(paramUncertainty), nParams)
	}
	if len(obsUncertainty) != nObs {
		return nil, fmt.Errorf("%w: obsUncertainty has %d entries, want %d", ErrDimMismatch, len(obsUncertainty), nObs)
	}
	if mapper == nil {
		mapper = mapping.NewIdentity()
	}

	s, err := sigma.Generate(nParams, dist)
	if err != nil {
		return nil, err
	}
	_, nSigma := s.Dims()
	alpha := 1 / float64(nSigma)

	dS := mat.NewDense(nSigma, nParams, nil)
	dS.Scale(alpha, s.T())

	u, err := matrix.DiagFromReciprocal(paramUncertainty)
	if err != nil {
		return nil, fmt.Errorf("roukf: parameter uncertainty: %w", err)
	}
	wi, err := matrix.DiagFromReciprocal(obsUncertainty)
	if err != nil {
		return nil, fmt.Errorf("roukf: observation uncertainty: %w", err)
	}

	lTheta := mat.NewDense(nParams, nParams, nil)
	for i := 0; i < nParams; i++ {
		lTheta.Set(i, i, 1)
	}

	return &base{
		nStates:       nStates,
		nParams:       nParams,
		nObs:          nObs,
		dist:          dist,
		s:             s,
		alpha:         alpha,
		dS:            dS,
		theta:         mat.NewVecDense(nParams, nil),
		lTheta:        lTheta,
		u:             u,
		wi:            wi,
		mapper:        mapper,
		tolerance:     1e-5,
		maxIterations: 1000,
	}, nil
}

// reset rebuilds the shared fields exactly as newBase does, carrying over
// the mapper, tolerance and max-iterations settings.
func (b *base) reset(nStates, nParams, nObs int, paramUncertainty, obsUncertainty []float64, dist sigma.Distribution) error {
	nb, err := newBase(nStates, nParams, nObs, paramUncertainty, obsUncertainty, dist, b.mapper)
	if err != nil {
		return err
	}
	nb.tolerance = b.tolerance
	nb.maxIterations = b.maxIterations
	*b = *nb
	return nil
}

// nSigma returns the number of sigma columns.
func (b *base) nSigma() int {
	_, n := b.s.Dims()
	return n
}

// choleskyOfUInv factorizes U^-1 = C^T C and returns the upper-triangular C.
func (b *base) choleskyOfUInv() (*mat.Dense, error) {
	var uInv mat.Dense
	if err := uInv.Inverse(b.u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSPD, err)
	}
	sym := matrix.Symmetrize(&uInv)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, ErrNotSPD
	}
	var tri mat.TriDense
	chol.UTo(&tri)
	var c mat.Dense
	c.CloneFrom(&tri)
	return &c, nil
}

// Parameters returns the current estimate in problem space.
func (b *base) Parameters() []float64 {
	filter := vecCopy(b.theta)
	problem, err := b.mapper.Unmap(filter)
	if err != nil {
		// Unmap is documented to never fail for the shipped mappers; a
		// failure here means the stored filter-space value itself is
		// corrupt, which is a programmer error, not a recoverable one.
		panic(fmt.Sprintf("roukf: unmap of internal filter-space estimate failed: %v", err))
	}
	return problem
}

// SetParameters sets the current estimate from a problem-space vector.
func (b *base) SetParameters(theta []float64) error {
	if len(theta) != b.nParams {
		return fmt.Errorf("%w: parameters has %d entries, want %d", ErrDimMismatch, len(theta), b.nParams)
	}
	filter, err := b.mapper.Map(theta)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMapperDomain, err)
	}
	b.theta = mat.NewVecDense(b.nParams, filter)
	return nil
}

// ReplaceMapper swaps the active parameter mapper, re-expressing the current
// filter-space estimate so the problem-space value it represents is
// preserved.
func (b *base) ReplaceMapper(next mapping.Mapper) error {
	if next == nil {
		return fmt.Errorf("%w: nil mapper", ErrDimMismatch)
	}
	problem, err := b.mapper.Unmap(vecCopy(b.theta))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMapperDomain, err)
	}
	filter, err := next.Map(problem)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMapperDomain, err)
	}
	b.mapper = next
	b.theta = mat.NewVecDense(b.nParams, filter)
	return nil
}

// ParametersStd returns sqrt(1/diag(U)) in filter space.
func (b *base) ParametersStd() []float64 {
	out := make([]float64, b.nParams)
	for i := range out {
		out[i] = math.Sqrt(1 / b.u.At(i, i))
	}
	return out
}

func (b *base) Tolerance() float64         { return b.tolerance }
func (b *base) SetTolerance(tol float64)   { b.tolerance = tol }
func (b *base) MaxIterations() float64     { return b.maxIterations }
func (b *base) SetMaxIterations(n float64) { b.maxIterations = n }

// HasConverged reports whether currError is within tolerance of prevError.
// It is always false before the second completed step.
func (b *base) HasConverged(relative bool) bool {
	if b.currIt < 2 {
		return false
	}
	diff := math.Abs(b.currError - b.prevError)
	if relative {
		denom := math.Abs(b.prevError)
		if denom == 0 {
			return diff == 0
		}
		return diff/denom < b.tolerance
	}
	return diff < b.tolerance
}

// Error returns the last residual vector zhat - zbar.
func (b *base) Error() []float64 {
	return append([]float64(nil), b.residual...)
}

// ObsError returns the i-th component of the last residual.
func (b *base) ObsError(i int) (float64, error) {
	if i < 0 || i >= len(b.residual) {
		return 0, fmt.Errorf("%w: observation index %d out of range [0, %d)", ErrDimMismatch, i, len(b.residual))
	}
	return b.residual[i], nil
}

// recordError updates the convergence bookkeeping after a step.
func (b *base) recordError(residual []float64) {
	b.residual = residual
	b.prevError = b.currError
	b.currError = floats.Norm(residual, 2)
	b.currIt++
}

// describeCommon renders the fields shared by every variant.
func (b *base) describeCommon() string {
	return fmt.Sprintf(
		"nStates=%d nParams=%d nObs=%d dist=%s currIt=%d prevError=%g currError=%g\ntheta=%v\nU=%v\n",
		b.nStates, b.nParams, b.nObs, b.dist, b.currIt, b.prevError, b.currError,
		matrix.Format(b.theta.T()), matrix.Format(b.u),
	)
}
