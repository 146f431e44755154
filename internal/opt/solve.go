// Package opt solves capacitated vehicle routing instances: cheapest
// insertion builds a first solution, then local search over 2-opt, relocate
// and exchange moves improves it until a local optimum or the budget is hit.
package opt

import (
	"context"
	"errors"
	"time"

	"fleetvrp/internal/matrix"
	"fleetvrp/internal/model"
)

// Solve constructs and then improves a solution. If construction leaves
// customers unrouted, the improved partial solution is still returned
// alongside the UnroutableNodesError.
func Solve(ctx context.Context, inst *model.Instance, m *matrix.Matrix, opts Options) (Result, error) {
	start := time.Now()
	sol, cerr := Construct(inst, m)
	if cerr != nil && !errors.Is(cerr, model.ErrUnroutableNodes) {
		return Result{}, cerr
	}
	constructed := time.Since(start)

	res, err := Improve(ctx, inst, m, sol, opts)
	if err != nil {
		return Result{}, err
	}
	res.Metrics.ConstructedDistance = res.Metrics.InitialDistance
	res.Metrics.ConstructElapsed = constructed
	return res, cerr
}
