// Package sigma generates the deterministic sampling points used by the
// reduced-order unscented Kalman filter to propagate uncertainty through the
// forward and observation operators without linearizing them.
//
// The four distributions are equi-weighted (alpha = 1/Nsigma), so no weight
// vector is returned alongside the sigma matrix.
package sigma

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Distribution selects one of the four deterministic sigma-point families.
type Distribution int

const (
	// SIMPLEX yields Nsigma = p+1 points forming a centred simplex.
	SIMPLEX Distribution = iota
	// CANONIC yields Nsigma = 2p points, antisymmetric pairs along the axes.
	CANONIC
	// STAR yields Nsigma = 2p+1 points: CANONIC scaled up, plus a centroid.
	STAR
	// SIMPLEX_STAR yields Nsigma = p+2 points: SIMPLEX scaled up, with an
	// extra (nominally centroid) column.
	SIMPLEX_STAR
)

// String implements fmt.Stringer.
func (d Distribution) String() string {
	switch d {
	case SIMPLEX:
		return "SIMPLEX"
	case CANONIC:
		return "CANONIC"
	case STAR:
		return "STAR"
	case SIMPLEX_STAR:
		return "SIMPLEX_STAR"
	default:
		return fmt.Sprintf("Distribution(%d)", int(d))
	}
}

// Count returns Nsigma for p parameters under distribution d.
func Count(p int, d Distribution) (int, error) {
	switch d {
	case SIMPLEX:
		return p + 1, nil
	case CANONIC:
		return 2 * p, nil
	case STAR:
		return 2*p + 1, nil
	case SIMPLEX_STAR:
		return p + 2, nil
	default:
		return 0, fmt.Errorf("sigma: unrecognized distribution %v", d)
	}
}

// Generate builds the p x Nsigma sigma-point matrix for p parameters under
// distribution d. p must be positive.
func Generate(p int, d Distribution) (*mat.Dense, error) {
	if p <= 0 {
		return nil, fmt.Errorf("sigma: invalid parameter count %d", p)
	}

	switch d {
	case CANONIC:
		return canonic(p), nil
	case SIMPLEX:
		return simplex(p, 1/float64(p+1)), nil
	case STAR:
		return star(p), nil
	case SIMPLEX_STAR:
		return simplexStar(p), nil
	default:
		return nil, fmt.Errorf("sigma: unrecognized distribution %v", d)
	}
}

// canonic builds the 2p columns +-sqrt(p)*e_i, columns p..2p-1 mirroring and
// negating columns 0..p-1 in reverse order.
func canonic(p int) *mat.Dense {
	n := 2 * p
	s := mat.NewDense(p, n, nil)
	scale := math.Sqrt(float64(p))
	for i := 0; i < p; i++ {
		s.Set(i, i, scale)
	}
	for col := 0; col < p; col++ {
		src := p - 1 - col
		for row := 0; row < p; row++ {
			s.Set(row, p+col, -s.At(row, src))
		}
	}
	return s
}

// star mirrors canonic but scaled by sqrt((2p+1)/2), with a zero centroid as
// the final column.
func star(p int) *mat.Dense {
	n := 2*p + 1
	s := mat.NewDense(p, n, nil)
	scale := math.Sqrt((2*float64(p) + 1) / 2)
	for i := 0; i < p; i++ {
		s.Set(i, i, scale)
	}
	for col := 0; col < p; col++ {
		src := p - 1 - col
		for row := 0; row < p; row++ {
			s.Set(row, p+col, -s.At(row, src))
		}
	}
	// final column (index n-1) stays zero: the centroid.
	return s
}

// simplex builds the p x (p+1) centred simplex with the given weight
// parameter, recursing on the dimension.
func simplex(p int, weight float64) *mat.Dense {
	s := mat.NewDense(p, p+1, nil)
	fillSimplex(s, p, weight)
	return s
}

// fillSimplex writes a p x (p+1) simplex into the top-left block of dst,
// which must have at least p rows and p+1 columns.
func fillSimplex(dst *mat.Dense, p int, weight float64) {
	c := 1 / math.Sqrt(float64(p*(p+1))*weight)
	if p == 1 {
		dst.Set(0, 0, -c)
		dst.Set(0, 1, c)
		return
	}
	sub := mat.NewDense(p-1, p, nil)
	fillSimplex(sub, p-1, weight)
	for row := 0; row < p-1; row++ {
		for col := 0; col < p; col++ {
			dst.Set(row, col, sub.At(row, col))
		}
	}
	for col := 0; col < p; col++ {
		dst.Set(p-1, col, -c)
	}
	dst.Set(p-1, p, float64(p)*c)
}

// simplexStar builds the p x (p+2) matrix: the p x (p+1) simplex with weight
// 1/(p+1) in its first p+1 columns (the final column stays zero), the whole
// matrix then scaled by (p+2)/(p+1).
//
// The final column stays zero even after scaling. Downstream results depend
// on this exact arithmetic, so it is kept as is rather than recentred.
func simplexStar(p int) *mat.Dense {
	s := mat.NewDense(p, p+2, nil)
	weight := 1 / float64(p+1)
	sub := mat.NewDense(p, p+1, nil)
	fillSimplex(sub, p, weight)
	for row := 0; row < p; row++ {
		for col := 0; col <= p; col++ {
			s.Set(row, col, sub.At(row, col))
		}
	}
	factor := float64(p+2) / float64(p+1)
	s.Scale(factor, s)
	return s
}
