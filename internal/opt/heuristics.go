package opt

import (
	"fleetvrp/internal/matrix"
	"fleetvrp/internal/model"
)

// MoveKind names a neighbourhood of the local search.
type MoveKind int

const (
	// TwoOpt reverses a contiguous segment within one route.
	TwoOpt MoveKind = iota
	// Relocate moves one customer from route A to route B.
	Relocate
	// Exchange swaps one customer of route A with one of route B.
	Exchange
)

func (k MoveKind) String() string {
	switch k {
	case TwoOpt:
		return "two_opt"
	case Relocate:
		return "relocate"
	case Exchange:
		return "exchange"
	}
	return "unknown"
}

// move is one candidate neighbour. i and j are customer positions; for
// TwoOpt they bound the reversed segment [i, j] in route a.
type move struct {
	kind  MoveKind
	a, b  int
	i, j  int
	gain  int
	group int
}

// group is the unit of work handed to an evaluator: one route for TwoOpt,
// one route pair for Relocate and Exchange.
type group struct {
	kind MoveKind
	a, b int
}

// neighbourhood lists groups in scan order: 2-opt per route, relocate per
// ordered pair, exchange per unordered pair.
func neighbourhood(routes int) []group {
	out := make([]group, 0, routes+routes*routes)
	for a := 0; a < routes; a++ {
		out = append(out, group{kind: TwoOpt, a: a})
	}
	for a := 0; a < routes; a++ {
		for b := 0; b < routes; b++ {
			if a != b {
				out = append(out, group{kind: Relocate, a: a, b: b})
			}
		}
	}
	for a := 0; a < routes; a++ {
		for b := a + 1; b < routes; b++ {
			out = append(out, group{kind: Exchange, a: a, b: b})
		}
	}
	return out
}

// evaluator scores moves against a solution it never mutates. Each goroutine
// owns one so the scratch buffers are not shared.
type evaluator struct {
	inst      *model.Instance
	m         *matrix.Matrix
	symmetric bool
	first     bool
	bufA      []int
	bufB      []int
}

func newEvaluator(inst *model.Instance, m *matrix.Matrix, symmetric, first bool) *evaluator {
	return &evaluator{
		inst:      inst,
		m:         m,
		symmetric: symmetric,
		first:     first,
		bufA:      make([]int, 0, inst.NumNodes()),
		bufB:      make([]int, 0, inst.NumNodes()),
	}
}

// evalGroup returns the chosen improving move of g, if any. In first mode it
// stops at the first improving feasible move in scan order; otherwise it keeps
// the largest gain, ties to the earliest.
func (e *evaluator) evalGroup(s model.Solution, gi int, g group) (move, bool) {
	var best move
	found := false
	consider := func(mv move) bool {
		if !found || mv.gain > best.gain {
			best, found = mv, true
		}
		return e.first
	}
	switch g.kind {
	case TwoOpt:
		route := s.Routes[g.a].Nodes
		for i := 0; i < len(route)-1; i++ {
			for k := i + 1; k < len(route); k++ {
				gain := e.twoOptGain(route, i, k)
				if gain <= 0 || (found && gain <= best.gain) {
					continue
				}
				e.bufA = twoOptSwap(e.bufA[:0], route, i, k)
				if !e.inst.RouteFeasible(e.bufA) {
					continue
				}
				if consider(move{kind: TwoOpt, a: g.a, b: g.a, i: i, j: k, gain: gain, group: gi}) {
					return best, true
				}
			}
		}
	case Relocate:
		ra, rb := s.Routes[g.a].Nodes, s.Routes[g.b].Nodes
		for i := range ra {
			removed := removeGain(e.m, ra, i)
			for j := 0; j <= len(rb); j++ {
				gain := removed - insertDelta(e.m, rb, ra[i], j)
				if gain <= 0 || (found && gain <= best.gain) {
					continue
				}
				e.bufA = append(append(e.bufA[:0], ra[:i]...), ra[i+1:]...)
				e.bufB = insertAt(e.bufB[:0], rb, ra[i], j)
				if !e.inst.RouteFeasible(e.bufA) || !e.inst.RouteFeasible(e.bufB) {
					continue
				}
				if consider(move{kind: Relocate, a: g.a, b: g.b, i: i, j: j, gain: gain, group: gi}) {
					return best, true
				}
			}
		}
	case Exchange:
		ra, rb := s.Routes[g.a].Nodes, s.Routes[g.b].Nodes
		for i := range ra {
			for j := range rb {
				gain := replaceGain(e.m, ra, i, rb[j]) + replaceGain(e.m, rb, j, ra[i])
				if gain <= 0 || (found && gain <= best.gain) {
					continue
				}
				e.bufA = append(e.bufA[:0], ra...)
				e.bufA[i] = rb[j]
				e.bufB = append(e.bufB[:0], rb...)
				e.bufB[j] = ra[i]
				if !e.inst.RouteFeasible(e.bufA) || !e.inst.RouteFeasible(e.bufB) {
					continue
				}
				if consider(move{kind: Exchange, a: g.a, b: g.b, i: i, j: j, gain: gain, group: gi}) {
					return best, true
				}
			}
		}
	}
	return best, found
}

// twoOptGain is the saving of reversing route[i..k].
func (e *evaluator) twoOptGain(route []int, i, k int) int {
	prev, next := model.Depot, model.Depot
	if i > 0 {
		prev = route[i-1]
	}
	if k+1 < len(route) {
		next = route[k+1]
	}
	before := e.m.At(prev, route[i]) + e.m.At(route[k], next)
	after := e.m.At(prev, route[k]) + e.m.At(route[i], next)
	if !e.symmetric {
		// the reversed segment is now traversed backwards
		for t := i; t < k; t++ {
			before += e.m.At(route[t], route[t+1])
			after += e.m.At(route[t+1], route[t])
		}
	}
	return before - after
}

// removeGain is the saving of dropping route[i] and linking its neighbours.
func removeGain(m *matrix.Matrix, route []int, i int) int {
	prev, next := model.Depot, model.Depot
	if i > 0 {
		prev = route[i-1]
	}
	if i+1 < len(route) {
		next = route[i+1]
	}
	return m.At(prev, route[i]) + m.At(route[i], next) - m.At(prev, next)
}

// replaceGain is the saving of visiting n instead of route[i].
func replaceGain(m *matrix.Matrix, route []int, i, n int) int {
	prev, next := model.Depot, model.Depot
	if i > 0 {
		prev = route[i-1]
	}
	if i+1 < len(route) {
		next = route[i+1]
	}
	old := route[i]
	return m.At(prev, old) + m.At(old, next) - m.At(prev, n) - m.At(n, next)
}

// twoOptSwap writes ord with the segment [i, k] reversed into dst.
func twoOptSwap(dst, ord []int, i, k int) []int {
	dst = append(dst, ord[:i]...)
	for j := k; j >= i; j-- {
		dst = append(dst, ord[j])
	}
	return append(dst, ord[k+1:]...)
}

// apply mutates s in place. Only called from the single goroutine that owns
// the solution, after evaluation has finished.
func apply(s *model.Solution, mv move) {
	switch mv.kind {
	case TwoOpt:
		r := &s.Routes[mv.a]
		r.Nodes = twoOptSwap(make([]int, 0, len(r.Nodes)), r.Nodes, mv.i, mv.j)
	case Relocate:
		ra, rb := &s.Routes[mv.a], &s.Routes[mv.b]
		n := ra.Nodes[mv.i]
		ra.Nodes = append(append(make([]int, 0, len(ra.Nodes)-1), ra.Nodes[:mv.i]...), ra.Nodes[mv.i+1:]...)
		rb.Nodes = insertAt(make([]int, 0, len(rb.Nodes)+1), rb.Nodes, n, mv.j)
	case Exchange:
		ra, rb := &s.Routes[mv.a], &s.Routes[mv.b]
		ra.Nodes[mv.i], rb.Nodes[mv.j] = rb.Nodes[mv.j], ra.Nodes[mv.i]
	}
}
