package opt

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetvrp/internal/matrix"
	"fleetvrp/internal/model"
)

func mustInstance(t *testing.T, nodes []model.Node, vehicles, capacity int, mode model.PickupMode) (*model.Instance, *matrix.Matrix) {
	t.Helper()
	inst, err := model.NewInstance(nodes, vehicles, capacity, mode)
	require.NoError(t, err)
	m, err := matrix.Euclidean(inst.Locations())
	require.NoError(t, err)
	return inst, m
}

func lineInstance(t *testing.T) (*model.Instance, *matrix.Matrix) {
	return mustInstance(t, []model.Node{
		{Location: model.Location{X: 0}},
		{Location: model.Location{X: 10}, Delivery: 1},
		{Location: model.Location{X: 20}, Delivery: 1},
		{Location: model.Location{X: 30}, Delivery: 1},
	}, 1, 10, model.PickupCarried)
}

// randomInstance scatters customers on a 100x100 grid; capacity is sized so
// several vehicles are needed and, sometimes, not all customers fit.
func randomInstance(t *testing.T, rng *rand.Rand, mode model.PickupMode) (*model.Instance, *matrix.Matrix) {
	t.Helper()
	n := 5 + rng.Intn(20)
	nodes := make([]model.Node, n+1)
	nodes[0] = model.Node{Location: model.Location{X: 50, Y: 50}}
	for i := 1; i <= n; i++ {
		nodes[i] = model.Node{
			Location: model.Location{X: rng.Float64() * 100, Y: rng.Float64() * 100},
			Delivery: 1 + rng.Intn(10),
			Pickup:   rng.Intn(8),
		}
	}
	return mustInstance(t, nodes, 2+rng.Intn(4), 15+rng.Intn(20), mode)
}

func TestSolveLineSingleVehicle(t *testing.T) {
	inst, m := lineInstance(t)

	res, err := Solve(context.Background(), inst, m, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, [][]int{{0, 1, 2, 3, 0}}, res.Solution.RouteLists(model.Depot))
	assert.Equal(t, 60, res.Distance)
	assert.Equal(t, StateConverged, res.State)
}

func TestConstructLineSingleVehicle(t *testing.T) {
	inst, m := lineInstance(t)

	sol, err := Construct(inst, m)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, sol.Routes[0].Nodes)
	assert.Equal(t, 60, Distance(m, sol))
}

func TestSolveSplitsAcrossTwoVehicles(t *testing.T) {
	inst, m := mustInstance(t, []model.Node{
		{Location: model.Location{X: 0, Y: 0}},
		{Location: model.Location{X: 10, Y: 0}, Delivery: 6},
		{Location: model.Location{X: 0, Y: 10}, Delivery: 7},
	}, 2, 10, model.PickupCarried)

	res, err := Solve(context.Background(), inst, m, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, Validate(inst, res.Solution))

	for _, r := range res.Solution.Routes {
		assert.Len(t, r.Nodes, 1)
		assert.True(t, inst.RouteFeasible(r.Nodes))
	}
	assert.Equal(t, 40, res.Distance)
}

func TestSolveInfeasibleBeforeConstruction(t *testing.T) {
	_, err := model.NewInstance([]model.Node{
		{},
		{Location: model.Location{X: 3}, Delivery: 11},
	}, 1, 10, model.PickupCarried)

	var inf *model.InfeasibleInstanceError
	require.ErrorAs(t, err, &inf)
}

func TestSolveReportsUnroutableNodes(t *testing.T) {
	inst, m := mustInstance(t, []model.Node{
		{},
		{Location: model.Location{X: 10}, Delivery: 6},
		{Location: model.Location{X: 20}, Delivery: 6},
		{Location: model.Location{X: 30}, Delivery: 6},
	}, 2, 10, model.PickupCarried)

	res, err := Solve(context.Background(), inst, m, DefaultOptions())

	var un *model.UnroutableNodesError
	require.ErrorAs(t, err, &un)
	assert.Len(t, un.Nodes, 1)
	assert.Equal(t, 2, res.Solution.Assigned())
	assert.Equal(t, un.Nodes, Unassigned(inst, res.Solution))
	require.NoError(t, checkRoutes(inst, res.Solution))
}

func TestConstructMatrixSizeMismatch(t *testing.T) {
	inst, _ := lineInstance(t)
	m, err := matrix.Euclidean([]model.Location{{}, {X: 1}})
	require.NoError(t, err)

	_, err = Construct(inst, m)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestSolveProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 40; trial++ {
		mode := model.PickupCarried
		if trial%3 == 0 {
			mode = model.PickupSeparate
		}
		inst, m := randomInstance(t, rng, mode)
		constructed, cerr := Construct(inst, m)
		if cerr != nil {
			require.ErrorIs(t, cerr, model.ErrUnroutableNodes)
		}

		opts := DefaultOptions()
		if trial%2 == 1 {
			opts.Strategy = BestImprovement
		}
		res, err := Improve(context.Background(), inst, m, constructed, opts)
		require.NoError(t, err)

		// every assigned customer once, all prefixes within capacity
		require.NoError(t, checkRoutes(inst, res.Solution))
		assert.Equal(t, Unassigned(inst, constructed), Unassigned(inst, res.Solution))
		for _, r := range res.Solution.Routes {
			for _, load := range inst.LoadProfile(r.Nodes) {
				require.LessOrEqual(t, load, inst.Capacity())
			}
		}

		// monotonic and consistent
		require.LessOrEqual(t, res.Distance, Distance(m, constructed))
		require.Equal(t, Distance(m, res.Solution), res.Distance)
		require.Equal(t, StateConverged, res.State)

		// fixed point
		again, err := Improve(context.Background(), inst, m, res.Solution, opts)
		require.NoError(t, err)
		assert.Equal(t, res.Distance, again.Distance)
		assert.Equal(t, res.Solution, again.Solution)
		assert.Equal(t, 1, again.Metrics.Passes)
	}
}

func TestParallelScanMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for trial := 0; trial < 15; trial++ {
		inst, m := randomInstance(t, rng, model.PickupCarried)
		for _, strategy := range []Strategy{FirstImprovement, BestImprovement} {
			serialOpts := DefaultOptions()
			serialOpts.Strategy = strategy
			parallelOpts := serialOpts
			parallelOpts.Workers = 4

			serial, serr := Solve(context.Background(), inst, m, serialOpts)
			parallel, perr := Solve(context.Background(), inst, m, parallelOpts)

			assert.Equal(t, serr, perr)
			assert.Equal(t, serial.Solution, parallel.Solution)
			assert.Equal(t, serial.Distance, parallel.Distance)
			assert.Equal(t, serial.Metrics.Passes, parallel.Metrics.Passes)
		}
	}
}

func TestImproveUntanglesRoute(t *testing.T) {
	inst, m := lineInstance(t)
	sol := model.NewSolution(1)
	sol.Routes[0].Nodes = []int{3, 1, 2}
	require.Equal(t, 80, Distance(m, sol))

	res, err := Improve(context.Background(), inst, m, sol, Options{Strategy: BestImprovement})
	require.NoError(t, err)
	assert.Equal(t, 60, res.Distance)
	assert.GreaterOrEqual(t, res.Metrics.TwoOptMoves, 1)
	// caller's solution untouched
	assert.Equal(t, []int{3, 1, 2}, sol.Routes[0].Nodes)
}

func TestImproveRelocateAndExchange(t *testing.T) {
	// customers 1 and 2 sit together on the east side, 3 and 4 on the west;
	// the input solution pairs them crosswise.
	inst, m := mustInstance(t, []model.Node{
		{},
		{Location: model.Location{X: 100, Y: 0}, Delivery: 1},
		{Location: model.Location{X: 100, Y: 10}, Delivery: 1},
		{Location: model.Location{X: -100, Y: 0}, Delivery: 1},
		{Location: model.Location{X: -100, Y: 10}, Delivery: 1},
	}, 2, 2, model.PickupCarried)
	sol := model.NewSolution(2)
	sol.Routes[0].Nodes = []int{1, 3}
	sol.Routes[1].Nodes = []int{4, 2}

	res, err := Improve(context.Background(), inst, m, sol, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, Validate(inst, res.Solution))
	assert.Less(t, res.Distance, Distance(m, sol))
	assert.Positive(t, res.Metrics.ExchangeMoves+res.Metrics.RelocateMoves)
	for _, r := range res.Solution.Routes {
		require.Len(t, r.Nodes, 2)
		east := r.Nodes[0] <= 2
		for _, n := range r.Nodes {
			assert.Equal(t, east, n <= 2, "route %v mixes sides", r.Nodes)
		}
	}
}

func TestImproveRespectsPickupLoads(t *testing.T) {
	// Both orders cost the same on a line; visiting the big pickup first
	// overloads the vehicle, so 2 must stay ahead of 1.
	inst, m := mustInstance(t, []model.Node{
		{},
		{Location: model.Location{X: 10}, Delivery: 1, Pickup: 5},
		{Location: model.Location{X: 20}, Delivery: 4},
	}, 1, 6, model.PickupCarried)
	sol := model.NewSolution(1)
	sol.Routes[0].Nodes = []int{2, 1}

	res, err := Improve(context.Background(), inst, m, sol, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, res.Solution.Routes[0].Nodes)
	assert.Equal(t, StateConverged, res.State)
}

func TestImproveRejectsInfeasibleInput(t *testing.T) {
	inst, m := lineInstance(t)
	sol := model.NewSolution(1)
	sol.Routes[0].Nodes = []int{1, 1, 2}

	_, err := Improve(context.Background(), inst, m, sol, DefaultOptions())
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = Improve(context.Background(), inst, m, model.NewSolution(3), DefaultOptions())
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = Improve(context.Background(), inst, m, model.NewSolution(1), Options{Strategy: "random"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestImproveIterationCap(t *testing.T) {
	inst, m := lineInstance(t)
	sol := model.NewSolution(1)
	sol.Routes[0].Nodes = []int{3, 1, 2}

	res, err := Improve(context.Background(), inst, m, sol, Options{MaxIterations: 1})
	require.NoError(t, err)
	assert.Equal(t, StateBudgetExhausted, res.State)
	assert.Equal(t, 1, res.Metrics.Passes)
	assert.Less(t, res.Distance, 80)
	require.NoError(t, Validate(inst, res.Solution))
}

func TestImproveTimeBudget(t *testing.T) {
	inst, m := lineInstance(t)
	sol := model.NewSolution(1)
	sol.Routes[0].Nodes = []int{3, 1, 2}

	res, err := Improve(context.Background(), inst, m, sol, Options{TimeBudget: time.Nanosecond, Trace: true})
	require.NoError(t, err)
	assert.Equal(t, StateBudgetExhausted, res.State)
	assert.Equal(t, StateBudgetExhausted, res.Trace[len(res.Trace)-1])
	assert.LessOrEqual(t, res.Distance, 80)
	assert.Equal(t, Distance(m, res.Solution), res.Distance)
	require.NoError(t, Validate(inst, res.Solution))
}

func TestSolveTimeBudget(t *testing.T) {
	inst, m := lineInstance(t)

	res, err := Solve(context.Background(), inst, m, Options{TimeBudget: time.Nanosecond})
	require.NoError(t, err)
	assert.Equal(t, StateBudgetExhausted, res.State)
	assert.LessOrEqual(t, res.Distance, res.Metrics.ConstructedDistance)
	require.NoError(t, Validate(inst, res.Solution))
}

func TestImproveCancelledContext(t *testing.T) {
	inst, m := lineInstance(t)
	sol := model.NewSolution(1)
	sol.Routes[0].Nodes = []int{3, 1, 2}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Improve(ctx, inst, m, sol, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StateBudgetExhausted, res.State)
	assert.Zero(t, res.Metrics.Passes)
	assert.Equal(t, sol, res.Solution)
	assert.Equal(t, 80, res.Distance)
}

func TestImproveStateTrace(t *testing.T) {
	inst, m := lineInstance(t)
	sol := model.NewSolution(1)
	sol.Routes[0].Nodes = []int{3, 1, 2}

	res, err := Improve(context.Background(), inst, m, sol, Options{Trace: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.Trace)

	assert.Equal(t, StateIdle, res.Trace[0])
	assert.Equal(t, StateConverged, res.Trace[len(res.Trace)-1])
	for i := 1; i < len(res.Trace); i++ {
		prev, next := res.Trace[i-1], res.Trace[i]
		switch next {
		case StateScanning:
			assert.Contains(t, []State{StateIdle, StateApplying}, prev)
		case StateImprovingMoveFound, StateConverged:
			assert.Equal(t, StateScanning, prev)
		case StateApplying:
			assert.Equal(t, StateImprovingMoveFound, prev)
		}
	}
	assert.True(t, res.State.Terminal())
	assert.Equal(t, "converged", res.State.String())
}

func TestImproveAsymmetricMatrix(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 8
	rows := make([][]int, n)
	for i := range rows {
		rows[i] = make([]int, n)
		for j := range rows[i] {
			if i != j {
				rows[i][j] = 1 + rng.Intn(50)
			}
		}
	}
	m, err := matrix.FromRows(rows)
	require.NoError(t, err)
	nodes := make([]model.Node, n)
	for i := 1; i < n; i++ {
		nodes[i] = model.Node{Delivery: 1}
	}
	inst, err := model.NewInstance(nodes, 2, 4, model.PickupCarried)
	require.NoError(t, err)

	res, err := Solve(context.Background(), inst, m, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, Distance(m, res.Solution), res.Distance)
	assert.LessOrEqual(t, res.Distance, res.Metrics.ConstructedDistance)
}

func TestSnapshotsRecorded(t *testing.T) {
	inst, m := lineInstance(t)
	sol := model.NewSolution(1)
	sol.Routes[0].Nodes = []int{3, 1, 2}

	res, err := Improve(context.Background(), inst, m, sol, Options{SnapshotEvery: 1})
	require.NoError(t, err)
	require.Len(t, res.Metrics.Snapshots, res.Metrics.MovesApplied())
	assert.Equal(t, res.Distance, res.Metrics.Snapshots[len(res.Metrics.Snapshots)-1].Distance)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, FirstImprovement, s)

	s, err = ParseStrategy("best")
	require.NoError(t, err)
	assert.Equal(t, BestImprovement, s)

	_, err = ParseStrategy("greedy")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
