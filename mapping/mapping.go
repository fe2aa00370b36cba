// Package mapping implements the bijections between problem-space parameters
// (what the forward operator consumes) and filter-space parameters (what the
// filter optimizes in an unconstrained, Gaussian-like space).
//
// The elementary mappers are small values with two pure operations rather
// than a dispatch hierarchy; Composite partitions the parameter vector
// contiguously across a list of (count, mapper) blocks.
package mapping

import (
	"fmt"
	"math"
)

// Mapper is a bijection between problem space and filter space.
type Mapper interface {
	// Map converts a problem-space vector to filter space.
	Map(problem []float64) ([]float64, error)
	// Unmap converts a filter-space vector to problem space.
	Unmap(filter []float64) ([]float64, error)
}

// Identity leaves parameters unchanged in both directions.
type Identity struct{}

// NewIdentity returns the Identity mapper.
func NewIdentity() Identity { return Identity{} }

// Map implements Mapper.
func (Identity) Map(problem []float64) ([]float64, error) {
	return cloneSlice(problem), nil
}

// Unmap implements Mapper.
func (Identity) Unmap(filter []float64) ([]float64, error) {
	return cloneSlice(filter), nil
}

// Exponential maps a positive problem-space parameter onto an unconstrained
// filter-space parameter via the log/exp pair. Unmap never fails; Map fails
// for non-positive input.
type Exponential struct{}

// NewExponential returns the Exponential mapper.
func NewExponential() Exponential { return Exponential{} }

// Map implements Mapper. It fails if any input is non-positive.
func (Exponential) Map(problem []float64) ([]float64, error) {
	out := make([]float64, len(problem))
	for i, x := range problem {
		if x <= 0 {
			return nil, fmt.Errorf("mapping: exponential map requires x > 0, got %g at index %d", x, i)
		}
		out[i] = math.Log(x)
	}
	return out, nil
}

// Unmap implements Mapper. It never fails.
func (Exponential) Unmap(filter []float64) ([]float64, error) {
	out := make([]float64, len(filter))
	for i, y := range filter {
		out[i] = math.Exp(y)
	}
	return out, nil
}

// Sigmoid maps a problem-space parameter ranged in (min, max) onto an
// unconstrained filter-space parameter via a logit/logistic pair.
type Sigmoid struct {
	Min, Max float64
}

// NewSigmoid returns a Sigmoid mapper ranged over (min, max). Min must be
// strictly less than max.
func NewSigmoid(min, max float64) (Sigmoid, error) {
	if !(min < max) {
		return Sigmoid{}, fmt.Errorf("mapping: sigmoid requires min < max, got [%g, %g]", min, max)
	}
	return Sigmoid{Min: min, Max: max}, nil
}

// Map implements Mapper. It fails unless min < x < max.
func (s Sigmoid) Map(problem []float64) ([]float64, error) {
	out := make([]float64, len(problem))
	for i, x := range problem {
		if !(x > s.Min && x < s.Max) {
			return nil, fmt.Errorf("mapping: sigmoid map requires %g < x < %g, got %g at index %d", s.Min, s.Max, x, i)
		}
		out[i] = -math.Log((s.Max-s.Min)/(x-s.Min) - 1)
	}
	return out, nil
}

// Unmap implements Mapper. It never fails.
func (s Sigmoid) Unmap(filter []float64) ([]float64, error) {
	out := make([]float64, len(filter))
	for i, y := range filter {
		out[i] = s.Min + (s.Max-s.Min)/(1+math.Exp(-y))
	}
	return out, nil
}

// Block pairs a Mapper with the number of contiguous parameters it covers.
type Block struct {
	Count  int
	Mapper Mapper
}

// Composite partitions a parameter vector contiguously across its blocks and
// delegates each slice to its mapper, concatenating the results. The blocks'
// counts must sum to the full parameter count.
type Composite struct {
	blocks []Block
}

// NewComposite validates and returns a Composite over the given blocks.
func NewComposite(blocks []Block) (*Composite, error) {
	for i, b := range blocks {
		if b.Count < 0 {
			return nil, fmt.Errorf("mapping: negative block count %d at index %d", b.Count, i)
		}
		if b.Mapper == nil {
			return nil, fmt.Errorf("mapping: nil mapper at block index %d", i)
		}
	}
	return &Composite{blocks: blocks}, nil
}

// NParams returns the sum of the block counts.
func (c *Composite) NParams() int {
	n := 0
	for _, b := range c.blocks {
		n += b.Count
	}
	return n
}

// Map implements Mapper.
func (c *Composite) Map(problem []float64) ([]float64, error) {
	return c.apply(problem, func(m Mapper, s []float64) ([]float64, error) { return m.Map(s) })
}

// Unmap implements Mapper.
func (c *Composite) Unmap(filter []float64) ([]float64, error) {
	return c.apply(filter, func(m Mapper, s []float64) ([]float64, error) { return m.Unmap(s) })
}

func (c *Composite) apply(in []float64, f func(Mapper, []float64) ([]float64, error)) ([]float64, error) {
	if len(in) != c.NParams() {
		return nil, fmt.Errorf("mapping: composite expects %d parameters, got %d", c.NParams(), len(in))
	}

	out := make([]float64, 0, len(in))
	offset := 0
	for i, b := range c.blocks {
		slice := in[offset : offset+b.Count]
		mapped, err := f(b.Mapper, slice)
		if err != nil {
			return nil, fmt.Errorf("mapping: block %d: %w", i, err)
		}
		out = append(out, mapped...)
		offset += b.Count
	}
	return out, nil
}

func cloneSlice(s []float64) []float64 {
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
