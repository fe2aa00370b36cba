package roukf

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/roukf/roukf-go/dispatch"
	"github.com/roukf/roukf-go/mapping"
	"github.com/roukf/roukf-go/matrix"
	"github.com/roukf/roukf-go/sigma"
)

// Full is the joint state-and-parameter ROUKF variant: it refines both a
// state vector and a parameter vector, carrying the state-side reduced
// covariance factor LX alongside the parameter-side factors.
type Full struct {
	*base

	x  *mat.VecDense // nStates, current state estimate
	lX *mat.Dense    // nStates x nParams
}

// NewFull constructs a Full filter for the given dimensions. paramUncertainty
// and obsUncertainty are per-component variances; dist selects the sigma
// point family; mapper may be nil to default to the identity mapping.
func NewFull(nStates, nParams, nObs int, paramUncertainty, obsUncertainty []float64, dist sigma.Distribution, mapper mapping.Mapper) (*Full, error) {
	if nStates <= 0 {
		return nil, fmt.Errorf("%w: nStates must be positive, got %d", ErrDimMismatch, nStates)
	}
	b, err := newBase(nStates, nParams, nObs, paramUncertainty, obsUncertainty, dist, mapper)
	if err != nil {
		return nil, err
	}
	return &Full{
		base: b,
		x:    mat.NewVecDense(nStates, nil),
		lX:   mat.NewDense(nStates, nParams, nil),
	}, nil
}

// State returns a copy of the current state estimate.
func (f *Full) State() []float64 { return vecCopy(f.x) }

// SetState overwrites the current state estimate.
func (f *Full) SetState(x []float64) error {
	if len(x) != f.nStates {
		return fmt.Errorf("%w: state has %d entries, want %d", ErrDimMismatch, len(x), f.nStates)
	}
	f.x = mat.NewVecDense(f.nStates, append([]float64(nil), x...))
	return nil
}

// Reset discards the current estimates and rebuilds every matrix exactly as
// NewFull does, with possibly new dimensions. The mapper, tolerance and
// max-iterations settings survive.
func (f *Full) Reset(nStates, nParams, nObs int, paramUncertainty, obsUncertainty []float64, dist sigma.Distribution) error {
	if nStates <= 0 {
		return fmt.Errorf("%w: nStates must be positive, got %d", ErrDimMismatch, nStates)
	}
	if err := f.base.reset(nStates, nParams, nObs, paramUncertainty, obsUncertainty, dist); err != nil {
		return err
	}
	f.x = mat.NewVecDense(nStates, nil)
	f.lX = mat.NewDense(nStates, nParams, nil)
	return nil
}

// Describe renders the filter's internal matrices for debugging.
func (f *Full) Describe() string {
	return f.describeCommon() + fmt.Sprintf("x=%v\nLX=%v\n", matrix.Format(f.x.T()), matrix.Format(f.lX))
}

// column holds one sigma point's propagated outputs.
type column struct {
	x     []float64
	theta []float64 // filter space, after the step
	z     []float64
}

// ExecuteStep performs one serial assimilation step: sample sigma points in
// reduced space, propagate each through a and h, form the empirical means
// and reduced covariance factors, and apply the gain to x and theta. It
// returns the L2 norm of the residual zhat - zbar.
func (f *Full) ExecuteStep(zhat []float64, a ForwardFunc, h ObservationFunc) (float64, error) {
	if len(zhat) != f.nObs {
		return 0, fmt.Errorf("%w: zhat has %d entries, want %d", ErrDimMismatch, len(zhat), f.nObs)
	}

	c, err := f.choleskyOfUInv()
	if err != nil {
		return 0, err
	}

	cols := make([]column, f.nSigma())
	for k := 0; k < f.nSigma(); k++ {
		col, err := f.sampleColumn(c, k, a, h)
		if err != nil {
			return 0, err
		}
		cols[k] = col
	}

	return f.assimilate(zhat, cols)
}

// sampleColumn builds and propagates the k-th sigma column.
func (f *Full) sampleColumn(c *mat.Dense, k int, a ForwardFunc, h ObservationFunc) (column, error) {
	perturb := mat.NewVecDense(f.nParams, nil)
	perturb.MulVec(c.T(), f.s.ColView(k))

	xk := mat.NewVecDense(f.nStates, nil)
	xk.AddVec(f.x, dense(f.lX).mulVec(perturb))

	thetaFilter := mat.NewVecDense(f.nParams, nil)
	thetaFilter.AddVec(f.theta, dense(f.lTheta).mulVec(perturb))

	thetaProblem, err := f.mapper.Unmap(vecCopy(thetaFilter))
	if err != nil {
		return column{}, fmt.Errorf("%w: %v", ErrMapperDomain, err)
	}

	xRaw := vecCopy(xk)
	if err := a(xRaw, thetaProblem); err != nil {
		return column{}, fmt.Errorf("%w: %v", ErrOperatorFailed, err)
	}

	thetaFilterAfter, err := f.mapper.Map(thetaProblem)
	if err != nil {
		return column{}, fmt.Errorf("%w: %v", ErrMapperDomain, err)
	}

	z := make([]float64, f.nObs)
	h(xRaw, z)

	return column{x: xRaw, theta: thetaFilterAfter, z: z}, nil
}

// assimilate forms Xk/Thetak/Zk from the propagated columns, computes the
// empirical means and reduced factors, and applies the gain.
func (f *Full) assimilate(zhat []float64, cols []column) (float64, error) {
	n := len(cols)
	xk := mat.NewDense(f.nStates, n, nil)
	thetak := mat.NewDense(f.nParams, n, nil)
	zk := mat.NewDense(f.nObs, n, nil)
	for k, col := range cols {
		xk.SetCol(k, col.x)
		thetak.SetCol(k, col.theta)
		zk.SetCol(k, col.z)
	}

	xbar := matrix.ColsMean(xk)
	thetabar := matrix.ColsMean(thetak)
	zbar := matrix.ColsMean(zk)

	residual := make([]float64, f.nObs)
	for i := range residual {
		residual[i] = zhat[i] - zbar[i]
	}

	var lXNew, lThetaNew, hl mat.Dense
	lXNew.Mul(xk, f.dS)
	lThetaNew.Mul(thetak, f.dS)
	hl.Mul(zk, f.dS)

	var pa mat.Dense
	pa.Mul(f.s, f.dS)

	var hlTWi, hlTWiHl mat.Dense
	hlTWi.Mul(hl.T(), f.wi)
	hlTWiHl.Mul(&hlTWi, &hl)

	var uNew mat.Dense
	uNew.Add(&pa, &hlTWiHl)
	uSym := matrix.Symmetrize(&uNew)

	gainRHS := mat.NewVecDense(f.nObs, residual)
	var wiR mat.VecDense
	wiR.MulVec(f.wi, gainRHS)
	var hlTWiR mat.VecDense
	hlTWiR.MulVec(hl.T(), &wiR)

	var uInvNew mat.Dense
	if err := uInvNew.Inverse(uSym); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotSPD, err)
	}
	gainReduced := mat.NewVecDense(f.nParams, nil)
	gainReduced.MulVec(&uInvNew, &hlTWiR)

	newX := mat.NewVecDense(f.nStates, xbar)
	newX.AddVec(newX, dense(&lXNew).mulVec(gainReduced))
	newTheta := mat.NewVecDense(f.nParams, thetabar)
	newTheta.AddVec(newTheta, dense(&lThetaNew).mulVec(gainReduced))

	f.x = newX
	f.theta = newTheta
	f.lX = &lXNew
	f.lTheta = &lThetaNew
	f.u = uSym

	f.recordError(residual)
	return f.currError, nil
}

// ExecuteStepParallel is the collective-communication counterpart of
// ExecuteStep. The world of workers is partitioned into one solver group per
// sigma point; sigmaIndex identifies the caller's group. Each group's master
// passes its handle on the sigma-masters' communicator as masters (every
// other worker passes nil). Every worker propagates its own sigma column,
// the masters gather the columns onto the master whose rank is 0, that rank
// performs the assimilation, and world broadcasts the updated filter state
// so every worker finishes the step with identical estimates and error
// bookkeeping. world's root must be the rank-0 sigma-master, and the masters
// communicator must be laid out so each master's rank equals its sigma
// index.
func (f *Full) ExecuteStepParallel(zhat []float64, a ForwardFunc, h ObservationFunc, sigmaIndex int, world, masters dispatch.Collective) (float64, error) {
	if len(zhat) != f.nObs {
		return 0, fmt.Errorf("%w: zhat has %d entries, want %d", ErrDimMismatch, len(zhat), f.nObs)
	}
	nSigma := f.nSigma()
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

	c, err := f.choleskyOfUInv()
	if err != nil {
		return 0, err
	}

	local, err := f.sampleColumn(c, sigmaIndex, a, h)
	if err != nil {
		return 0, err
	}

	root := false
	var cols []column
	if masters != nil {
		flat, err := masters.Gather(encodeColumn(local, f.nStates, f.nParams, f.nObs))
		if err != nil {
			return 0, fmt.Errorf("roukf: gather failed: %w", err)
		}
		if masters.Rank() == 0 {
			root = true
			cols = make([]column, nSigma)
			for k := range cols {
				cols[k] = decodeColumn(flat[k], f.nStates, f.nParams, f.nObs)
			}
		}
	}

	var broadcastPayload []float64
	if root {
		if _, err := f.assimilate(zhat, cols); err != nil {
			return 0, err
		}
		broadcastPayload = encodeState(f.x, f.theta, f.lX, f.lTheta, f.u, f.residual)
	}

	received, err := world.Broadcast(broadcastPayload)
	if err != nil {
		return 0, fmt.Errorf("roukf: broadcast failed: %w", err)
	}
	if !root {
		decodeState(received, f)
	}
	return f.currError, nil
}

// dense adapts a *mat.Dense to the small helper below; it exists purely to
// keep the sampleColumn/assimilate math readable.
type denseHelper struct{ m *mat.Dense }

func dense(m *mat.Dense) denseHelper { return denseHelper{m} }

func (d denseHelper) mulVec(v mat.Vector) *mat.VecDense {
	r, _ := d.m.Dims()
	out := mat.NewVecDense(r, nil)
	out.MulVec(d.m, v)
	return out
}
