package planner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetvrp/internal/config"
	"fleetvrp/internal/events"
	"fleetvrp/internal/matrix"
	"fleetvrp/internal/model"
	"fleetvrp/internal/store"
	"fleetvrp/internal/webhooks"
)

func newTestPlanner(t *testing.T) (*Planner, *store.Memory, *events.Broker) {
	t.Helper()
	st := store.NewMemory()
	br := events.NewBroker()
	p := New(st, br, webhooks.NewPublisher(st), matrix.NewCache(8), config.Default().Solver)
	return p, st, br
}

func lineRequest() Request {
	return Request{
		Locations:  []model.Location{{X: 0}, {X: 10}, {X: 20}, {X: 30}},
		Deliveries: []int{0, 1, 1, 1},
		Vehicles:   1,
		Capacity:   10,
	}
}

func TestPlanCompletesAndRecordsRun(t *testing.T) {
	p, st, _ := newTestPlanner(t)
	req := lineRequest()
	req.CallbackURL = "https://hooks.example.com/vrp"
	req.CallbackSecret = "s3cret"

	run, err := p.Plan(context.Background(), "acme", req)
	require.NoError(t, err)

	assert.Equal(t, store.StatusCompleted, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 60, run.Summary.TotalDistance)
	assert.Equal(t, []int{0, 1, 2, 3, 0}, run.Summary.Routes[0].Stops)
	assert.Equal(t, "converged", run.Summary.State)
	require.NotNil(t, run.FinishedAt)
	require.NotNil(t, run.Metrics)

	got, err := st.GetRun(context.Background(), "acme", run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)

	cbs, err := st.ListCallbacks(context.Background(), "acme", run.ID)
	require.NoError(t, err)
	require.Len(t, cbs, 1)
	assert.Equal(t, events.SolveCompleted, cbs[0].EventType)
	assert.Equal(t, "s3cret", cbs[0].Secret)

	var env webhooks.Envelope
	require.NoError(t, json.Unmarshal(cbs[0].Payload, &env))
	assert.Equal(t, run.ID, env.RunID)
	data := env.Data.(map[string]any)
	assert.Equal(t, float64(60), data["totalDistance"])
}

func TestPlanDefaultsCapacityToTotalDemand(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	req := lineRequest()
	req.Capacity = 0
	req.Vehicles = 0

	run, err := p.Plan(context.Background(), "acme", req)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Capacity)
	assert.Equal(t, config.Default().Solver.Vehicles, run.Vehicles)
}

func TestPlanInputErrorsCreateNoRun(t *testing.T) {
	p, st, _ := newTestPlanner(t)

	cases := map[string]struct {
		mutate func(*Request)
		want   error
	}{
		"deliveries length": {func(r *Request) { r.Deliveries = []int{0, 1} }, model.ErrInvalidInput},
		"single location":   {func(r *Request) { r.Locations = r.Locations[:1]; r.Deliveries = r.Deliveries[:1] }, model.ErrInvalidInput},
		"bad strategy":      {func(r *Request) { r.Options.Strategy = "greedy" }, model.ErrInvalidInput},
		"bad mode":          {func(r *Request) { r.PickupMode = "both" }, model.ErrInvalidInput},
		"huge budget":       {func(r *Request) { r.Options.TimeBudgetMs = int(time.Hour.Milliseconds()) }, model.ErrInvalidInput},
		"too many workers":  {func(r *Request) { r.Options.Workers = 1000 }, model.ErrInvalidInput},
		"matrix size":       {func(r *Request) { r.DistanceMatrix = [][]int{{0, 1}, {1, 0}} }, model.ErrInvalidInput},
		"oversized demand":  {func(r *Request) { r.Deliveries = []int{0, 1, 11, 1} }, model.ErrInfeasibleInstance},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := lineRequest()
			tc.mutate(&req)
			_, err := p.Plan(context.Background(), "acme", req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	runs, _, err := st.ListRuns(context.Background(), "acme", "", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPlanPartialRun(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	req := Request{
		Locations:  []model.Location{{X: 0}, {X: 10}, {X: 20}, {X: 30}},
		Deliveries: []int{0, 6, 6, 6},
		Vehicles:   2,
		Capacity:   10,
	}

	run, err := p.Plan(context.Background(), "acme", req)
	require.ErrorIs(t, err, model.ErrUnroutableNodes)
	assert.Equal(t, store.StatusPartial, run.Status)
	assert.Equal(t, "unroutable_nodes", run.ErrorKind)
	require.NotNil(t, run.Summary)
	assert.Len(t, run.Summary.Unassigned, 1)
}

func TestPlanCancelledContextFails(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := p.Plan(ctx, "acme", lineRequest())
	require.ErrorIs(t, err, model.ErrNoSolution)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.Equal(t, "no_solution", run.ErrorKind)
	assert.Nil(t, run.Summary)
}

func TestPlanExplicitMatrix(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	req := lineRequest()
	req.DistanceMatrix = [][]int{
		{0, 1, 1, 1},
		{1, 0, 1, 1},
		{1, 1, 0, 1},
		{1, 1, 1, 0},
	}

	run, err := p.Plan(context.Background(), "acme", req)
	require.NoError(t, err)
	assert.Equal(t, 4, run.Summary.TotalDistance)
}

func TestSubmitSolvesInBackground(t *testing.T) {
	p, st, br := newTestPlanner(t)

	run, err := p.Submit(context.Background(), "acme", lineRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, store.StatusPending, run.Status)

	ch := br.Subscribe(run.ID)
	defer br.Unsubscribe(run.ID, ch)
	p.Wait()

	got, err := st.GetRun(context.Background(), "acme", run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	assert.Equal(t, 60, got.Summary.TotalDistance)

	_, err = st.GetRun(context.Background(), "other", run.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPlanPublishesLifecycleEvents(t *testing.T) {
	st := store.NewMemory()
	rec := &recordingBroker{}
	p := New(st, rec, nil, nil, config.Default().Solver)

	run, err := p.Plan(context.Background(), "acme", lineRequest())
	require.NoError(t, err)

	require.Len(t, rec.events, 2)
	assert.Equal(t, events.SolveStarted, rec.events[0].Type)
	assert.Equal(t, events.SolveCompleted, rec.events[1].Type)
	assert.Equal(t, run.ID, rec.events[1].RunID)
	assert.True(t, rec.events[1].Terminal())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "invalid_input", ErrorKind(&model.InvalidInputError{Reason: "x"}))
	assert.Equal(t, "infeasible_instance", ErrorKind(&model.InfeasibleInstanceError{}))
	assert.Equal(t, "unroutable_nodes", ErrorKind(&model.UnroutableNodesError{}))
	assert.Equal(t, "no_solution", ErrorKind(&model.NoSolutionError{}))
	assert.Equal(t, "internal", ErrorKind(context.Canceled))
}

type recordingBroker struct {
	events []events.Event
}

func (r *recordingBroker) Subscribe(string) chan events.Event    { return make(chan events.Event) }
func (r *recordingBroker) Unsubscribe(string, chan events.Event) {}
func (r *recordingBroker) Publish(_ string, evt events.Event)    { r.events = append(r.events, evt) }

func TestTerminalEvent(t *testing.T) {
	evt := TerminalEvent(store.Run{ID: "r1", Status: store.StatusFailed, ErrorKind: "no_solution", Error: "no solution found"})
	assert.Equal(t, events.SolveFailed, evt.Type)
	assert.Equal(t, "r1", evt.RunID)
	assert.Equal(t, "no_solution", evt.Data["errorKind"])
	assert.NotContains(t, evt.Data, "totalDistance")
}
