package roukf

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roukf/roukf-go/dispatch"
	"github.com/roukf/roukf-go/mapping"
	"github.com/roukf/roukf-go/sigma"
)

// TestFullScalarAR1Identification runs the joint filter end to end on a
// scalar AR(1) process x[k+1] = theta*x[k] with identity observation and
// true theta* = 0.9, fed 10000 measurements generated from x0=1. The filter
// should recover theta within 1e-3.
func TestFullScalarAR1Identification(t *testing.T) {
	assert := assert.New(t)

	const trueTheta = 0.9
	const steps = 10000

	f, err := NewFull(1, 1, 1, []float64{10}, []float64{1}, sigma.CANONIC, nil)
	assert.NoError(err)

	forward := func(x, theta []float64) error {
		x[0] = theta[0] * x[0]
		return nil
	}
	observe := func(x, z []float64) { z[0] = x[0] }

	xTrue := 1.0
	for k := 0; k < steps; k++ {
		zhat := []float64{xTrue}
		_, err := f.ExecuteStep(zhat, forward, observe)
		assert.NoError(err)
		xTrue *= trueTheta
	}

	theta := f.Parameters()
	assert.InDelta(trueTheta, theta[0], 1e-3)
}

// TestWeightMatrixInvariant checks that every constructed filter carries
// Dsigma = (1/Nsigma) * sigma^T, for every distribution and a range of
// parameter counts.
func TestWeightMatrixInvariant(t *testing.T) {
	assert := assert.New(t)

	for p := 1; p <= 4; p++ {
		for _, d := range []sigma.Distribution{sigma.SIMPLEX, sigma.CANONIC, sigma.STAR, sigma.SIMPLEX_STAR} {
			unc := make([]float64, p)
			for i := range unc {
				unc[i] = 1
			}
			f, err := NewFull(1, p, 1, unc, []float64{1}, d, nil)
			assert.NoError(err)

			n := f.nSigma()
			assert.InDelta(1/float64(n), f.alpha, 1e-15)
			for i := 0; i < n; i++ {
				for j := 0; j < p; j++ {
					assert.InDelta(f.s.At(j, i)/float64(n), f.dS.At(i, j), 1e-15)
				}
			}
		}
	}
}

// TestUncertaintyShrinks runs the AR(1) identification and checks that
// assimilating informative measurements leaves the per-parameter standard
// deviation sqrt(1/diag(U)) well below its prior value, both after the
// first step and at the end of the run.
func TestUncertaintyShrinks(t *testing.T) {
	assert := assert.New(t)

	f, err := NewFull(1, 1, 1, []float64{10}, []float64{1}, sigma.CANONIC, nil)
	assert.NoError(err)

	forward := func(x, theta []float64) error {
		x[0] = theta[0] * x[0]
		return nil
	}
	observe := func(x, z []float64) { z[0] = x[0] }

	prior := f.ParametersStd()[0]

	xTrue := 1.0
	_, err = f.ExecuteStep([]float64{xTrue}, forward, observe)
	assert.NoError(err)
	afterFirst := f.ParametersStd()[0]
	assert.Less(afterFirst, prior)

	for k := 1; k < 100; k++ {
		xTrue *= 0.9
		_, err := f.ExecuteStep([]float64{xTrue}, forward, observe)
		assert.NoError(err)
	}
	assert.Less(f.ParametersStd()[0], prior)
}

// TestMapperSwapPreservesParameter checks that the problem-space value of
// theta survives a runtime mapper replacement.
func TestMapperSwapPreservesParameter(t *testing.T) {
	assert := assert.New(t)

	f, err := NewFull(1, 3, 1, []float64{1, 1, 1}, []float64{1}, sigma.CANONIC, mapping.NewIdentity())
	assert.NoError(err)

	assert.NoError(f.SetParameters([]float64{1, 2, 3}))

	assert.NoError(f.ReplaceMapper(mapping.NewExponential()))

	got := f.Parameters()
	assert.InDelta(1.0, got[0], 1e-12)
	assert.InDelta(2.0, got[1], 1e-12)
	assert.InDelta(3.0, got[2], 1e-12)
}

// TestHasConvergedSequence feeds a synthetic error sequence
// [10, 1, 0.5, 0.50001] with an absolute tolerance of 1e-3 and expects
// false, false, true starting from the second recorded step.
func TestHasConvergedSequence(t *testing.T) {
	assert := assert.New(t)

	f, err := NewFull(1, 1, 1, []float64{1}, []float64{1}, sigma.CANONIC, nil)
	assert.NoError(err)
	f.SetTolerance(1e-3)

	errs := []float64{10, 1, 0.5, 0.50001}
	var got []bool
	for i, e := range errs {
		f.base.recordError([]float64{e})
		if i > 0 {
			got = append(got, f.HasConverged(false))
		} else {
			assert.False(f.HasConverged(false))
		}
	}

	assert.Equal([]bool{false, false, true}, got)
}

// runParallelRound drives one ExecuteStepParallel round across a set of
// worker filters, one goroutine per world rank, the way independent worker
// processes would each call into the collective concurrently. masters[i] is
// nil for workers that are not their group's sigma-master.
func runParallelRound(t *testing.T, filters []*Full, sigmaIndex []int, world, masters []dispatch.Collective, zhat []float64, a ForwardFunc, h ObservationFunc) []float64 {
	t.Helper()
	n := len(filters)
	results := make([]float64, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for rank := 0; rank < n; rank++ {
		rank := rank
		go func() {
			defer wg.Done()
			results[rank], errs[rank] = filters[rank].ExecuteStepParallel(zhat, a, h, sigmaIndex[rank], world[rank], masters[rank])
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	return results
}

// TestParallelEquivalence checks that a serial run and a parallel run (one
// worker per sigma point) over identical inputs agree to 1e-12 in X, Theta
// and U after two steps.
func TestParallelEquivalence(t *testing.T) {
	assert := assert.New(t)

	newFilter := func() *Full {
		f, err := NewFull(1, 1, 1, []float64{10}, []float64{1}, sigma.CANONIC, nil)
		assert.NoError(err)
		return f
	}

	forward := func(x, theta []float64) error {
		x[0] = theta[0] * x[0]
		return nil
	}
	observe := func(x, z []float64) { z[0] = x[0] }

	serial := newFilter()
	zhats := [][]float64{{1.0}, {0.9}}

	for _, zhat := range zhats {
		_, err := serial.ExecuteStep(zhat, forward, observe)
		assert.NoError(err)
	}

	nSigma := serial.nSigma()
	world, err := dispatch.NewInProcessGroup(nSigma, 0)
	assert.NoError(err)
	masters, err := dispatch.NewInProcessGroup(nSigma, 0)
	assert.NoError(err)

	filters := make([]*Full, nSigma)
	sigmaIndex := make([]int, nSigma)
	for i := range filters {
		filters[i] = newFilter()
		sigmaIndex[i] = i
	}

	var results []float64
	for _, zhat := range zhats {
		results = runParallelRound(t, filters, sigmaIndex, world, masters, zhat, forward, observe)
	}

	for rank := 0; rank < nSigma; rank++ {
		assert.InDelta(serial.State()[0], filters[rank].State()[0], 1e-12)
		assert.InDelta(serial.Parameters()[0], filters[rank].Parameters()[0], 1e-12)
		assert.InDelta(serial.ParametersStd()[0], filters[rank].ParametersStd()[0], 1e-12)
		assert.InDelta(results[0], results[rank], 1e-15)
		assert.InDelta(serial.Error()[0], filters[rank].Error()[0], 1e-12)
		assert.Equal(serial.HasConverged(false), filters[rank].HasConverged(false))
	}
}

// TestParallelNonMasterWorker adds a worker that belongs to sigma group 0
// but is not its master: it contributes no column to the gather, only joins
// the world broadcast, and must still finish every step with the same
// estimates and error bookkeeping as the masters.
func TestParallelNonMasterWorker(t *testing.T) {
	assert := assert.New(t)

	newFilter := func() *Full {
		f, err := NewFull(1, 1, 1, []float64{10}, []float64{1}, sigma.CANONIC, nil)
		assert.NoError(err)
		return f
	}

	forward := func(x, theta []float64) error {
		x[0] = theta[0] * x[0]
		return nil
	}
	observe := func(x, z []float64) { z[0] = x[0] }

	probe := newFilter()
	nSigma := probe.nSigma()

	worldSize := nSigma + 1
	world, err := dispatch.NewInProcessGroup(worldSize, 0)
	assert.NoError(err)
	mastersGrp, err := dispatch.NewInProcessGroup(nSigma, 0)
	assert.NoError(err)

	filters := make([]*Full, worldSize)
	sigmaIndex := make([]int, worldSize)
	masters := make([]dispatch.Collective, worldSize)
	for i := 0; i < nSigma; i++ {
		filters[i] = newFilter()
		sigmaIndex[i] = i
		masters[i] = mastersGrp[i]
	}
	filters[nSigma] = newFilter()
	sigmaIndex[nSigma] = 0
	masters[nSigma] = nil

	for _, zhat := range [][]float64{{1.0}, {0.9}} {
		runParallelRound(t, filters, sigmaIndex, world, masters, zhat, forward, observe)
	}

	root := filters[0]
	extra := filters[nSigma]
	assert.InDelta(root.State()[0], extra.State()[0], 1e-15)
	assert.InDelta(root.Parameters()[0], extra.Parameters()[0], 1e-15)
	assert.InDelta(root.ParametersStd()[0], extra.ParametersStd()[0], 1e-15)
	assert.InDelta(root.Error()[0], extra.Error()[0], 1e-15)
	assert.Equal(root.HasConverged(false), extra.HasConverged(false))
}

// TestResetRebuildsFilter runs a few steps, resets with new dimensions, and
// checks every estimate is back at its constructed value while tolerance
// and max-iterations survive.
func TestResetRebuildsFilter(t *testing.T) {
	assert := assert.New(t)

	f, err := NewFull(1, 1, 1, []float64{10}, []float64{1}, sigma.CANONIC, nil)
	assert.NoError(err)
	f.SetTolerance(1e-7)
	f.SetMaxIterations(250)
	assert.NoError(f.SetState([]float64{1}))

	forward := func(x, theta []float64) error {
		x[0] = theta[0] * x[0]
		return nil
	}
	observe := func(x, z []float64) { z[0] = x[0] }

	for k := 0; k < 5; k++ {
		_, err := f.ExecuteStep([]float64{1}, forward, observe)
		assert.NoError(err)
	}
	assert.NotZero(f.Parameters()[0])

	assert.NoError(f.Reset(2, 2, 1, []float64{4, 4}, []float64{1}, sigma.SIMPLEX))

	assert.Equal([]float64{0, 0}, f.State())
	assert.Equal([]float64{0, 0}, f.Parameters())
	assert.InDelta(2.0, f.ParametersStd()[0], 1e-15)
	assert.Equal(1e-7, f.Tolerance())
	assert.Equal(250.0, f.MaxIterations())
	assert.False(f.HasConverged(false))

	assert.Error(f.Reset(0, 1, 1, []float64{1}, []float64{1}, sigma.CANONIC))
}
