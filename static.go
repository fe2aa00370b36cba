package roukf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/roukf/roukf-go/dispatch"
	"github.com/roukf/roukf-go/mapping"
	"github.com/roukf/roukf-go/matrix"
	"github.com/roukf/roukf-go/sigma"
)

// Static is the parameter-only ROUKF variant for observations that do not
// depend on a state vector. It carries no X or LX term; every other part of
// the assimilation step is identical to Full.
type Static struct {
	*base
}

// NewStatic constructs a Static filter for the given dimensions.
// paramUncertainty and obsUncertainty are per-component variances; dist
// selects the sigma point family; mapper may be nil to default to the
// identity mapping.
func NewStatic(nParams, nObs int, paramUncertainty, obsUncertainty []float64, dist sigma.Distribution, mapper mapping.Mapper) (*Static, error) {
	b, err := newBase(0, nParams, nObs, paramUncertainty, obsUncertainty, dist, mapper)
	if err != nil {
		return nil, err
	}
	return &Static{base: b}, nil
}

// State always returns a zero-length slice: Static carries no state vector.
func (s *Static) State() []float64 { return []float64{} }

// SetState fails for any non-empty input, since Static carries no state.
func (s *Static) SetState(x []float64) error {
	if len(x) != 0 {
		return fmt.Errorf("%w: static filter has no state, got %d entries", ErrDimMismatch, len(x))
	}
	return nil
}

// Reset discards the current estimates and rebuilds every matrix exactly as
// NewStatic does, with possibly new dimensions. nStates is accepted for
// interface symmetry with Full and ignored. The mapper, tolerance and
// max-iterations settings survive.
func (s *Static) Reset(nStates, nParams, nObs int, paramUncertainty, obsUncertainty []float64, dist sigma.Distribution) error {
	return s.base.reset(0, nParams, nObs, paramUncertainty, obsUncertainty, dist)
}

// Describe renders the filter's internal matrices for debugging.
func (s *Static) Describe() string {
	return s.describeCommon()
}

// staticColumn holds one sigma point's propagated outputs, omitting state.
type staticColumn struct {
	theta []float64 // filter space, after the step
	z     []float64
}

// ExecuteStep performs one serial assimilation step, identical to Full's
// except that the state terms (the X displacement during sampling, the X
// gain update) are skipped throughout.
func (s *Static) ExecuteStep(zhat []float64, a ForwardFunc, h ObservationFunc) (float64, error) {
	if len(zhat) != s.nObs {
		return 0, fmt.Errorf("%w: zhat has %d entries, want %d", ErrDimMismatch, len(zhat), s.nObs)
	}

	c, err := s.choleskyOfUInv()
	if err != nil {
		return 0, err
	}

	cols := make([]staticColumn, s.nSigma())
	for k := 0; k < s.nSigma(); k++ {
		col, err := s.sampleColumn(c, k, a, h)
		if err != nil {
			return 0, err
		}
		cols[k] = col
	}

	return s.assimilate(zhat, cols)
}

// sampleColumn builds and propagates the k-th sigma column. The forward
// operator still receives a (zero-length) state buffer so that a shared
// ForwardFunc can be used across Full and Static filters.
func (s *Static) sampleColumn(c *mat.Dense, k int, a ForwardFunc, h ObservationFunc) (staticColumn, error) {
	perturb := mat.NewVecDense(s.nParams, nil)
	perturb.MulVec(c.T(), s.s.ColView(k))

	thetaFilter := mat.NewVecDense(s.nParams, nil)
	thetaFilter.AddVec(s.theta, dense(s.lTheta).mulVec(perturb))

	thetaProblem, err := s.mapper.Unmap(vecCopy(thetaFilter))
	if err != nil {
		return staticColumn{}, fmt.Errorf("%w: %v", ErrMapperDomain, err)
	}

	xRaw := make([]float64, 0)
	if err := a(xRaw, thetaProblem); err != nil {
		return staticColumn{}, fmt.Errorf("%w: %v", ErrOperatorFailed, err)
	}

	thetaFilterAfter, err := s.mapper.Map(thetaProblem)
	if err != nil {
		return staticColumn{}, fmt.Errorf("%w: %v", ErrMapperDomain, err)
	}

	z := make([]float64, s.nObs)
	h(xRaw, z)

	return staticColumn{theta: thetaFilterAfter, z: z}, nil
}

// assimilate forms Thetak/Zk from the propagated columns, computes the
// empirical means and reduced factors, and applies the gain to theta only.
func (s *Static) assimilate(zhat []float64, cols []staticColumn) (float64, error) {
	n := len(cols)
	thetak := mat.NewDense(s.nParams, n, nil)
	zk := mat.NewDense(s.nObs, n, nil)
	for k, col := range cols {
		thetak.SetCol(k, col.theta)
		zk.SetCol(k, col.z)
	}

	thetabar := matrix.ColsMean(thetak)
	zbar := matrix.ColsMean(zk)

	residual := make([]float64, s.nObs)
	for i := range residual {
		residual[i] = zhat[i] - zbar[i]
	}

	var lThetaNew, hl mat.Dense
	lThetaNew.Mul(thetak, s.dS)
	hl.Mul(zk, s.dS)

	var pa mat.Dense
	pa.Mul(s.s, s.dS)

	var hlTWi, hlTWiHl mat.Dense
	hlTWi.Mul(hl.T(), s.wi)
	hlTWiHl.Mul(&hlTWi, &hl)

	var uNew mat.Dense
	uNew.Add(&pa, &hlTWiHl)
	uSym := matrix.Symmetrize(&uNew)

	gainRHS := mat.NewVecDense(s.nObs, residual)
	var wiR mat.VecDense
	wiR.MulVec(s.wi, gainRHS)
	var hlTWiR mat.VecDense
	hlTWiR.MulVec(hl.T(), &wiR)

	var uInvNew mat.Dense
	if err := uInvNew.Inverse(uSym); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotSPD, err)
	}
	gainReduced := mat.NewVecDense(s.nParams, nil)
	gainReduced.MulVec(&uInvNew, &hlTWiR)

	newTheta := mat.NewVecDense(s.nParams, thetabar)
	newTheta.AddVec(newTheta, dense(&lThetaNew).mulVec(gainReduced))

	s.theta = newTheta
	s.lTheta = &lThetaNew
	s.u = uSym

	s.recordError(residual)
	return s.currError, nil
}

// ExecuteStepParallel is the collective-communication counterpart of
// ExecuteStep, mirroring Full.ExecuteStepParallel without the state terms:
// every worker propagates its own sigma column, the sigma-masters gather
// onto the rank-0 master, which assimilates and broadcasts the updated
// filter state over world. Non-master workers pass masters as nil.
func (s *Static) ExecuteStepParallel(zhat []float64, a ForwardFunc, h ObservationFunc, sigmaIndex int, world, masters dispatch.Collective) (float64, error) {
	if len(zhat) != s.nObs {
		return 0, fmt.Errorf("%w: zhat has %d entries, want %d", ErrDimMismatch, len(zhat), s.nObs)
	}
	nSigma := s.nSigma()
	if sigmaIndex < 0 || sigmaIndex >= nSigma {
		return 0, fmt.Errorf("%w: sigma index %d out of range [0, %d)", ErrDimMismatch, sigmaIndex, nSigma)
	}
	if masters != nil {
		if masters.Size() != nSigma {
			return 0, fmt.Errorf("%w: masters communicator has %d ranks, want %d", ErrDimMismatch, masters.Size(), nSigma)
		}
		if masters.Rank() != sigmaIndex {
			return 0, fmt.Errorf("%w: master rank %d does not match sigma index %d", ErrDimMismatch, masters.Rank(), sigmaIndex)
		}
	}

	c, err := s.choleskyOfUInv()
	if err != nil {
		return 0, err
	}

	local, err := s.sampleColumn(c, sigmaIndex, a, h)
	if err != nil {
		return 0, err
	}

	root := false
	var cols []staticColumn
	if masters != nil {
		flat, err := masters.Gather(encodeStaticColumn(local, s.nParams, s.nObs))
		if err != nil {
			return 0, fmt.Errorf("roukf: gather failed: %w", err)
		}
		if masters.Rank() == 0 {
			root = true
			cols = make([]staticColumn, nSigma)
			for k := range cols {
				cols[k] = decodeStaticColumn(flat[k], s.nParams, s.nObs)
			}
		}
	}

	var broadcastPayload []float64
	if root {
		if _, err := s.assimilate(zhat, cols); err != nil {
			return 0, err
		}
		broadcastPayload = encodeStaticState(s.theta, s.lTheta, s.u, s.residual)
	}

	received, err := world.Broadcast(broadcastPayload)
	if err != nil {
		return 0, fmt.Errorf("roukf: broadcast failed: %w", err)
	}
	if !root {
		decodeStaticState(received, s)
	}
	return s.currError, nil
}
