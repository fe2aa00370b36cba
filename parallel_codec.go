package roukf

import "gonum.org/v1/gonum/mat"

// encodeColumn flattens a column into a single []float64 so it can travel
// through dispatch.Collective, which only moves plain vectors.
func encodeColumn(c column, nStates, nParams, nObs int) []float64 {
	out := make([]float64, nStates+nParams+nObs)
	copy(out[:nStates], c.x)
	copy(out[nStates:nStates+nParams], c.theta)
	copy(out[nStates+nParams:], c.z)
	return out
}

func decodeColumn(flat []float64, nStates, nParams, nObs int) column {
	return column{
		x:     append([]float64(nil), flat[:nStates]...),
		theta: append([]float64(nil), flat[nStates:nStates+nParams]...),
		z:     append([]float64(nil), flat[nStates+nParams:]...),
	}
}

// encodeState flattens the post-update filter state, residual included, so
// it can be broadcast from the root rank to every other rank after a
// parallel step: the receivers must end up with the same convergence
// bookkeeping as the root, not just the same matrices.
func encodeState(x, theta *mat.VecDense, lX, lTheta *mat.Dense, u *mat.SymDense, residual []float64) []float64 {
	out := make([]float64, 0)
	out = append(out, vecCopy(x)...)
	out = append(out, vecCopy(theta)...)
	out = append(out, denseRaw(lX)...)
	out = append(out, denseRaw(lTheta)...)
	out = append(out, symRaw(u)...)
	out = append(out, residual...)
	return out
}

func decodeState(flat []float64, f *Full) {
	nStates, nParams, nObs := f.nStates, f.nParams, f.nObs
	off := 0

	x := append([]float64(nil), flat[off:off+nStates]...)
	off += nStates
	theta := append([]float64(nil), flat[off:off+nParams]...)
	off += nParams
	lX := append([]float64(nil), flat[off:off+nStates*nParams]...)
	off += nStates * nParams
	lTheta := append([]float64(nil), flat[off:off+nParams*nParams]...)
	off += nParams * nParams
	u := append([]float64(nil), flat[off:off+nParams*nParams]...)
	off += nParams * nParams
	residual := append([]float64(nil), flat[off:off+nObs]...)

	f.x = mat.NewVecDense(nStates, x)
	f.theta = mat.NewVecDense(nParams, theta)
	f.lX = mat.NewDense(nStates, nParams, lX)
	f.lTheta = mat.NewDense(nParams, nParams, lTheta)

	sym := mat.NewSymDense(nParams, nil)
	for i := 0; i < nParams; i++ {
		for j := i; j < nParams; j++ {
			sym.SetSym(i, j, u[i*nParams+j])
		}
	}
	f.u = sym

	f.recordError(residual)
}

func denseRaw(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = m.At(i, j)
		}
	}
	return out
}

// encodeStaticColumn and decodeStaticColumn are the Static-filter
// counterparts of encodeColumn/decodeColumn, omitting the state block.
func encodeStaticColumn(c staticColumn, nParams, nObs int) []float64 {
	out := make([]float64, nParams+nObs)
	copy(out[:nParams], c.theta)
	copy(out[nParams:], c.z)
	return out
}

func decodeStaticColumn(flat []float64, nParams, nObs int) staticColumn {
	return staticColumn{
		theta: append([]float64(nil), flat[:nParams]...),
		z:     append([]float64(nil), flat[nParams:]...),
	}
}

// encodeStaticState and decodeStaticState are the Static-filter counterparts
// of encodeState/decodeState, omitting the state and LX blocks.
func encodeStaticState(theta *mat.VecDense, lTheta *mat.Dense, u *mat.SymDense, residual []float64) []float64 {
	out := make([]float64, 0)
	out = append(out, vecCopy(theta)...)
	out = append(out, denseRaw(lTheta)...)
	out = append(out, symRaw(u)...)
	out = append(out, residual...)
	return out
}

func decodeStaticState(flat []float64, s *Static) {
	nParams, nObs := s.nParams, s.nObs
	off := 0

	theta := append([]float64(nil), flat[off:off+nParams]...)
	off += nParams
	lTheta := append([]float64(nil), flat[off:off+nParams*nParams]...)
	off += nParams * nParams
	u := append([]float64(nil), flat[off:off+nParams*nParams]...)
	off += nParams * nParams
	residual := append([]float64(nil), flat[off:off+nObs]...)

	s.theta = mat.NewVecDense(nParams, theta)
	s.lTheta = mat.NewDense(nParams, nParams, lTheta)

	sym := mat.NewSymDense(nParams, nil)
	for i := 0; i < nParams; i++ {
		for j := i; j < nParams; j++ {
			sym.SetSym(i, j, u[i*nParams+j])
		}
	}
	s.u = sym

	s.recordError(residual)
}

func symRaw(m *mat.SymDense) []float64 {
	n := m.SymmetricDim()
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = m.At(i, j)
		}
	}
	return out
}
