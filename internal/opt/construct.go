package opt

import (
	"fmt"
	"math"

	"fleetvrp/internal/matrix"
	"fleetvrp/internal/model"
)

type insertion struct {
	vehicle, node, pos int
	delta              int
}

// Construct builds an initial solution by cheapest insertion. Every vehicle
// starts depot-to-depot; each step inserts the (node, route, position) with
// the smallest added distance among insertions that keep the route within
// capacity. Ties go to the lowest vehicle id, then the lowest node index,
// then the later position in the route.
//
// When customers remain that fit nowhere, the partial solution is returned
// together with an UnroutableNodesError. If nothing could be placed at all the
// error is a NoSolutionError.
func Construct(inst *model.Instance, m *matrix.Matrix) (model.Solution, error) {
	if m.Len() != inst.NumNodes() {
		return model.Solution{}, &model.InvalidInputError{Field: "matrix", Reason: fmt.Sprintf("covers %d locations, instance has %d", m.Len(), inst.NumNodes())}
	}
	sol := model.NewSolution(inst.NumVehicles())
	pending := inst.Customers()
	scratch := make([]int, 0, inst.NumNodes())

	for len(pending) > 0 {
		best := insertion{vehicle: -1, delta: math.MaxInt}
		bestIdx := -1
		for v := range sol.Routes {
			route := sol.Routes[v].Nodes
			for pi, n := range pending {
				for pos := 0; pos <= len(route); pos++ {
					d := insertDelta(m, route, n, pos)
					better := d < best.delta || (d == best.delta && v == best.vehicle && n == best.node && pos > best.pos)
					if !better {
						continue
					}
					scratch = insertAt(scratch[:0], route, n, pos)
					if !inst.RouteFeasible(scratch) {
						continue
					}
					best = insertion{vehicle: v, node: n, pos: pos, delta: d}
					bestIdx = pi
				}
			}
		}
		if best.vehicle < 0 {
			break
		}
		r := &sol.Routes[best.vehicle]
		r.Nodes = insertAt(make([]int, 0, len(r.Nodes)+1), r.Nodes, best.node, best.pos)
		pending = append(pending[:bestIdx], pending[bestIdx+1:]...)
	}

	if len(pending) == 0 {
		return sol, nil
	}
	if sol.Assigned() == 0 {
		return sol, &model.NoSolutionError{Reason: "no customer fits any vehicle"}
	}
	return sol, &model.UnroutableNodesError{Nodes: append([]int(nil), pending...)}
}

// insertDelta is the added distance of placing n before route[pos].
func insertDelta(m *matrix.Matrix, route []int, n, pos int) int {
	prev, next := model.Depot, model.Depot
	if pos > 0 {
		prev = route[pos-1]
	}
	if pos < len(route) {
		next = route[pos]
	}
	return m.At(prev, n) + m.At(n, next) - m.At(prev, next)
}

// insertAt writes route with n placed at pos into dst.
func insertAt(dst, route []int, n, pos int) []int {
	dst = append(dst, route[:pos]...)
	dst = append(dst, n)
	return append(dst, route[pos:]...)
}
