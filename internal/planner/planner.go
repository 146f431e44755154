// Package planner runs solve requests end to end: it validates input, builds
// the distance matrix, solves, records the run and announces its outcome.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"fleetvrp/internal/config"
	"fleetvrp/internal/events"
	"fleetvrp/internal/matrix"
	"fleetvrp/internal/metrics"
	"fleetvrp/internal/model"
	"fleetvrp/internal/opt"
	"fleetvrp/internal/platform/obs"
	"fleetvrp/internal/report"
	"fleetvrp/internal/store"
	"fleetvrp/internal/webhooks"
)

// MaxTimeBudget bounds the per-request improver budget accepted from callers.
const MaxTimeBudget = 5 * time.Minute

// Request is a solve submission. Zero-valued tuning fields fall back to the
// configured solver defaults.
type Request struct {
	Locations      []model.Location `json:"locations"`
	Deliveries     []int            `json:"deliveries"`
	Pickups        []int            `json:"pickups,omitempty"`
	Vehicles       int              `json:"vehicles,omitempty"`
	Capacity       int              `json:"capacity,omitempty"`
	PickupMode     string           `json:"pickupMode,omitempty"`
	DistanceMatrix [][]int          `json:"distanceMatrix,omitempty"`
	Options        RequestOptions   `json:"options"`
	CallbackURL    string           `json:"callbackUrl,omitempty"`
	CallbackSecret string           `json:"callbackSecret,omitempty"`
}

type RequestOptions struct {
	Strategy      string `json:"strategy,omitempty"`
	MaxIterations int    `json:"maxIterations,omitempty"`
	TimeBudgetMs  int    `json:"timeBudgetMs,omitempty"`
	Workers       int    `json:"workers,omitempty"`
}

// Planner is safe for concurrent use. Events, Callbacks and Cache are optional.
type Planner struct {
	Store     store.Store
	Events    events.EventBroker
	Callbacks *webhooks.Publisher
	Cache     *matrix.Cache
	Defaults  config.Solver

	wg sync.WaitGroup
}

func New(s store.Store, ev events.EventBroker, cb *webhooks.Publisher, cache *matrix.Cache, defaults config.Solver) *Planner {
	return &Planner{Store: s, Events: ev, Callbacks: cb, Cache: cache, Defaults: defaults}
}

// job is a validated request ready to solve.
type job struct {
	inst   *model.Instance
	m      *matrix.Matrix
	opts   opt.Options
	req    Request
	tenant string
}

// Plan solves req synchronously. Input errors return before a run exists.
// An unroutable instance returns the recorded partial run together with the
// UnroutableNodesError.
func (p *Planner) Plan(ctx context.Context, tenant string, req Request) (store.Run, error) {
	j, err := p.prepare(ctx, tenant, req)
	if err != nil {
		return store.Run{}, err
	}
	run, err := p.Store.SaveRun(ctx, p.newRun(j))
	if err != nil {
		return store.Run{}, fmt.Errorf("save run: %w", err)
	}
	return p.execute(ctx, j, run)
}

// Submit validates req, records a pending run and solves it in the
// background. The returned run carries the id to poll or subscribe to.
func (p *Planner) Submit(ctx context.Context, tenant string, req Request) (store.Run, error) {
	j, err := p.prepare(ctx, tenant, req)
	if err != nil {
		return store.Run{}, err
	}
	run, err := p.Store.SaveRun(ctx, p.newRun(j))
	if err != nil {
		return store.Run{}, fmt.Errorf("save run: %w", err)
	}
	bg := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.execute(bg, j, run); err != nil && !errors.Is(err, model.ErrUnroutableNodes) {
			log.Printf("planner: run_id=%s tenant=%s err=%v", run.ID, tenant, err)
		}
	}()
	return run, nil
}

// Wait blocks until every submitted run has finished.
func (p *Planner) Wait() { p.wg.Wait() }

func (p *Planner) newRun(j *job) store.Run {
	return store.Run{
		Tenant:    j.tenant,
		Status:    store.StatusPending,
		CreatedAt: time.Now().UTC(),
		Locations: j.inst.Locations(),
		Vehicles:  j.inst.NumVehicles(),
		Capacity:  j.inst.Capacity(),
	}
}

func (p *Planner) prepare(ctx context.Context, tenant string, req Request) (*job, error) {
	if req.Pickups == nil {
		req.Pickups = make([]int, len(req.Locations))
	}
	nodes, err := model.BuildNodes(req.Locations, req.Deliveries, req.Pickups)
	if err != nil {
		return nil, err
	}
	vehicles := req.Vehicles
	if vehicles == 0 {
		vehicles = p.Defaults.Vehicles
	}
	capacity := req.Capacity
	if capacity == 0 {
		capacity = p.Defaults.CapacityFor(nodes)
	}
	modeStr := req.PickupMode
	if modeStr == "" {
		modeStr = p.Defaults.PickupMode
	}
	mode, err := model.ParsePickupMode(modeStr)
	if err != nil {
		return nil, err
	}
	opts, err := p.options(req.Options)
	if err != nil {
		return nil, err
	}
	inst, err := model.NewInstance(nodes, vehicles, capacity, mode)
	if err != nil {
		return nil, err
	}
	m, err := p.matrix(ctx, req)
	if err != nil {
		return nil, err
	}
	if m.Len() != inst.NumNodes() {
		return nil, &model.InvalidInputError{Field: "distanceMatrix", Reason: fmt.Sprintf("covers %d locations, request has %d", m.Len(), inst.NumNodes())}
	}
	return &job{inst: inst, m: m, opts: opts, req: req, tenant: tenant}, nil
}

func (p *Planner) options(in RequestOptions) (opt.Options, error) {
	o := p.Defaults.Options()
	if in.Strategy != "" {
		s, err := opt.ParseStrategy(in.Strategy)
		if err != nil {
			return opt.Options{}, err
		}
		o.Strategy = s
	}
	if in.MaxIterations < 0 {
		return opt.Options{}, &model.InvalidInputError{Field: "options.maxIterations", Reason: "must be >= 0"}
	}
	if in.MaxIterations > 0 {
		o.MaxIterations = in.MaxIterations
	}
	budget := time.Duration(in.TimeBudgetMs) * time.Millisecond
	if in.TimeBudgetMs < 0 || budget > MaxTimeBudget {
		return opt.Options{}, &model.InvalidInputError{Field: "options.timeBudgetMs", Reason: fmt.Sprintf("must be between 0 and %d", MaxTimeBudget.Milliseconds())}
	}
	if budget > 0 {
		o.TimeBudget = budget
	}
	if in.Workers < 0 || in.Workers > 64 {
		return opt.Options{}, &model.InvalidInputError{Field: "options.workers", Reason: "must be between 0 and 64"}
	}
	if in.Workers > 0 {
		o.Workers = in.Workers
	}
	return o, nil
}

func (p *Planner) matrix(ctx context.Context, req Request) (m *matrix.Matrix, err error) {
	done := obs.Time(ctx, "matrix")
	defer func() { metrics.SolveDuration.WithLabelValues("matrix").Observe(done(&err).Seconds()) }()
	if req.DistanceMatrix != nil {
		return matrix.FromRows(req.DistanceMatrix)
	}
	if p.Cache == nil {
		return matrix.Euclidean(req.Locations)
	}
	m, hit, err := p.Cache.Lookup(req.Locations)
	if err == nil {
		if hit {
			metrics.MatrixCache.WithLabelValues("hit").Inc()
		} else {
			metrics.MatrixCache.WithLabelValues("miss").Inc()
		}
	}
	return m, err
}

// execute solves j and records the outcome on run.
func (p *Planner) execute(ctx context.Context, j *job, run store.Run) (store.Run, error) {
	ctx = obs.WithRunID(ctx, run.ID)
	run.Status = store.StatusRunning
	if saved, err := p.Store.SaveRun(ctx, run); err == nil {
		run = saved
	} else {
		log.Printf("planner: run_id=%s mark running err=%v", run.ID, err)
	}
	p.publish(run.ID, events.SolveStarted, map[string]any{"vehicles": run.Vehicles, "capacity": run.Capacity, "locations": len(run.Locations)})

	res, solveErr := p.solve(ctx, j)
	now := time.Now().UTC()
	run.FinishedAt = &now
	switch {
	case solveErr == nil:
		run.Status = store.StatusCompleted
	case errors.Is(solveErr, model.ErrUnroutableNodes):
		run.Status = store.StatusPartial
	default:
		run.Status = store.StatusFailed
	}
	if solveErr != nil {
		run.ErrorKind = ErrorKind(solveErr)
		run.Error = solveErr.Error()
	}
	if run.Status != store.StatusFailed {
		sum := report.Build(j.inst, j.m, res)
		run.Summary = &sum
		mt := res.Metrics
		run.Metrics = &mt
		observe(res)
	}
	metrics.Solves.WithLabelValues(run.Status).Inc()

	saved, err := p.Store.SaveRun(ctx, run)
	if err != nil {
		return run, fmt.Errorf("save run: %w", err)
	}
	run = saved
	log.Printf("planner: run_id=%s tenant=%s status=%s distance=%d", run.ID, run.Tenant, run.Status, res.Distance)
	p.announce(ctx, j, run)
	return run, solveErr
}

func (p *Planner) solve(ctx context.Context, j *job) (res opt.Result, err error) {
	done := obs.Time(ctx, "solve")
	defer func() { done(&err) }()
	if ctx.Err() != nil {
		return opt.Result{}, &model.NoSolutionError{Reason: "cancelled before solving"}
	}
	return opt.Solve(ctx, j.inst, j.m, j.opts)
}

func observe(res opt.Result) {
	metrics.SolveDuration.WithLabelValues("construct").Observe(res.Metrics.ConstructElapsed.Seconds())
	metrics.SolveDuration.WithLabelValues("improve").Observe(res.Metrics.Elapsed.Seconds())
	metrics.ImproverPasses.Observe(float64(res.Metrics.Passes))
	for kind, n := range res.Metrics.MovesByKind() {
		if n > 0 {
			metrics.MovesApplied.WithLabelValues(kind).Add(float64(n))
		}
	}
	metrics.TerminalStates.WithLabelValues(res.State.String()).Inc()
	metrics.RouteDistance.Observe(float64(res.Distance))
}

// announce publishes the terminal event and queues the callback, if any.
func (p *Planner) announce(ctx context.Context, j *job, run store.Run) {
	evt := TerminalEvent(run)
	if p.Events != nil {
		p.Events.Publish(run.ID, evt)
	}
	if p.Callbacks == nil || j.req.CallbackURL == "" {
		return
	}
	if _, err := p.Callbacks.Emit(ctx, run.Tenant, run.ID, evt.Type, j.req.CallbackURL, j.req.CallbackSecret, evt.Data); err != nil {
		log.Printf("planner: run_id=%s enqueue callback err=%v", run.ID, err)
	}
}

// TerminalEvent describes a finished run the way subscribers and callback
// receivers see it.
func TerminalEvent(run store.Run) events.Event {
	typ := events.SolveCompleted
	if run.Status == store.StatusFailed {
		typ = events.SolveFailed
	}
	data := map[string]any{"status": run.Status}
	if run.Summary != nil {
		data["totalDistance"] = run.Summary.TotalDistance
		data["state"] = run.Summary.State
		if len(run.Summary.Unassigned) > 0 {
			data["unassigned"] = run.Summary.Unassigned
		}
	}
	if run.ErrorKind != "" {
		data["errorKind"] = run.ErrorKind
		data["error"] = run.Error
	}
	return events.Event{Type: typ, RunID: run.ID, Data: data}
}

func (p *Planner) publish(runID, typ string, data map[string]any) {
	if p.Events == nil {
		return
	}
	p.Events.Publish(runID, events.Event{Type: typ, RunID: runID, Data: data})
}

// ErrorKind is the stable name of a solve error, used in runs and API problems.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, model.ErrInfeasibleInstance):
		return "infeasible_instance"
	case errors.Is(err, model.ErrUnroutableNodes):
		return "unroutable_nodes"
	case errors.Is(err, model.ErrNoSolution):
		return "no_solution"
	}
	return "internal"
}
