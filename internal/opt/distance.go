package opt

import (
	"fmt"

	"fleetvrp/internal/matrix"
	"fleetvrp/internal/model"
)

// RouteDistance is the depot-to-depot cost of one customer sequence.
func RouteDistance(m *matrix.Matrix, nodes []int) int {
	if len(nodes) == 0 {
		return 0
	}
	total := m.At(model.Depot, nodes[0])
	for i := 1; i < len(nodes); i++ {
		total += m.At(nodes[i-1], nodes[i])
	}
	return total + m.At(nodes[len(nodes)-1], model.Depot)
}

// Distance sums RouteDistance over every vehicle.
func Distance(m *matrix.Matrix, s model.Solution) int {
	total := 0
	for _, r := range s.Routes {
		total += RouteDistance(m, r.Nodes)
	}
	return total
}

// checkRoutes verifies every route is capacity-feasible, indices are in range
// and no customer is visited twice. Coverage is not required so partial
// solutions pass.
func checkRoutes(inst *model.Instance, s model.Solution) error {
	if len(s.Routes) != inst.NumVehicles() {
		return &model.InvalidInputError{Field: "solution", Reason: fmt.Sprintf("expected %d routes, got %d", inst.NumVehicles(), len(s.Routes))}
	}
	seen := make([]bool, inst.NumNodes())
	for v, r := range s.Routes {
		for _, n := range r.Nodes {
			if n <= model.Depot || n >= inst.NumNodes() {
				return &model.InvalidInputError{Field: fmt.Sprintf("routes[%d]", v), Reason: fmt.Sprintf("node %d is not a customer", n)}
			}
			if seen[n] {
				return &model.InvalidInputError{Field: fmt.Sprintf("routes[%d]", v), Reason: fmt.Sprintf("node %d visited more than once", n)}
			}
			seen[n] = true
		}
		if !inst.RouteFeasible(r.Nodes) {
			return &model.InvalidInputError{Field: fmt.Sprintf("routes[%d]", v), Reason: "exceeds vehicle capacity"}
		}
	}
	return nil
}

// Validate checks a complete solution: every customer on exactly one route,
// each route within capacity along its whole traversal.
func Validate(inst *model.Instance, s model.Solution) error {
	if err := checkRoutes(inst, s); err != nil {
		return err
	}
	if missing := Unassigned(inst, s); len(missing) > 0 {
		return &model.UnroutableNodesError{Nodes: missing}
	}
	return nil
}

// Unassigned lists customers that appear on no route, ascending.
func Unassigned(inst *model.Instance, s model.Solution) []int {
	seen := make([]bool, inst.NumNodes())
	for _, r := range s.Routes {
		for _, n := range r.Nodes {
			if n >= 0 && n < len(seen) {
				seen[n] = true
			}
		}
	}
	var out []int
	for _, c := range inst.Customers() {
		if !seen[c] {
			out = append(out, c)
		}
	}
	return out
}
