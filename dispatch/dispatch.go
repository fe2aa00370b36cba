// Package dispatch abstracts the collective communication a parallel
// assimilation step needs -- one sigma column per worker, gathered onto a
// root before the reduced covariance update, then the updated state
// broadcast back out -- behind a small interface, so the filter stays
// testable without a network stack. This package ships an in-process shim
// built on goroutines and a rendezvous barrier, with the same interface a
// real MPI binding would satisfy.
package dispatch

import (
	"fmt"
	"sync"
)

// Collective is one rank's view of a fixed-size group of cooperating
// workers. Every method must be called by every rank of the group exactly
// once per logical round, in the same order, or the group deadlocks --
// exactly as with a real MPI communicator.
type Collective interface {
	// Rank returns this member's rank, in [0, Size()).
	Rank() int
	// Size returns the number of members in the group.
	Size() int
	// Gather collects local from every rank. On the root rank it returns the
	// full slice indexed by rank; on every other rank it returns nil.
	Gather(local []float64) ([][]float64, error)
	// Broadcast distributes data from the root rank to every rank. Non-root
	// callers should pass nil; every rank, including root, receives the
	// root's data back.
	Broadcast(data []float64) ([]float64, error)
}

// rendezvous is a reusable all-to-all barrier: every one of n parties calls
// join with its own value and all of them receive the same completed round's
// slice of values, indexed by the caller-supplied rank.
type rendezvous struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	gen     int
	arrived int
	values  [][]float64
	last    [][]float64
}

func newRendezvous(n int) *rendezvous {
	r := &rendezvous{n: n, values: make([][]float64, n)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *rendezvous) join(rank int, value []float64) [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	myGen := r.gen
	r.values[rank] = value
	r.arrived++

	if r.arrived == r.n {
		result := make([][]float64, r.n)
		copy(result, r.values)
		r.values = make([][]float64, r.n)
		r.arrived = 0
		r.gen++
		r.last = result
		r.cond.Broadcast()
		return result
	}

	for r.gen == myGen {
		r.cond.Wait()
	}
	return r.last
}

// group is one rank's handle onto an in-process collective. All ranks of a
// group share the same two rendezvous barriers: one for Gather, one for
// Broadcast.
type group struct {
	rank   int
	size   int
	root   int
	gather *rendezvous
	bcast  *rendezvous
}

// NewInProcessGroup returns size Collective handles, one per rank, sharing
// state so that each rank's calls rendezvous with the others'. root selects
// which rank's data Gather surfaces and whose data Broadcast distributes.
func NewInProcessGroup(size, root int) ([]Collective, error) {
	if size <= 0 {
		return nil, fmt.Errorf("dispatch: group size must be positive, got %d", size)
	}
	if root < 0 || root >= size {
		return nil, fmt.Errorf("dispatch: root %d out of range for size %d", root, size)
	}

	gatherBarrier := newRendezvous(size)
	bcastBarrier := newRendezvous(size)

	out := make([]Collective, size)
	for rank := 0; rank < size; rank++ {
		out[rank] = &group{
			rank:   rank,
			size:   size,
			root:   root,
			gather: gatherBarrier,
			bcast:  bcastBarrier,
		}
	}
	return out, nil
}

func (g *group) Rank() int { return g.rank }
func (g *group) Size() int { return g.size }

func (g *group) Gather(local []float64) ([][]float64, error) {
	all := g.gather.join(g.rank, local)
	if g.rank != g.root {
		return nil, nil
	}
	return all, nil
}

func (g *group) Broadcast(data []float64) ([]float64, error) {
	all := g.bcast.join(g.rank, data)
	return all[g.root], nil
}
