package opt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetvrp/internal/matrix"
	"fleetvrp/internal/model"
)

// Strategy decides which improving move a pass applies.
type Strategy string

const (
	// FirstImprovement applies the first improving move in scan order.
	FirstImprovement Strategy = "first"
	// BestImprovement scans the whole neighbourhood and applies the largest gain.
	BestImprovement Strategy = "best"
)

// ParseStrategy maps a config/API string onto a Strategy. Empty selects
// first-improvement.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return FirstImprovement, nil
	case FirstImprovement, BestImprovement:
		return Strategy(s), nil
	}
	return "", &model.InvalidInputError{Field: "strategy", Reason: "must be first or best, got " + s}
}

// Options bound and steer the local search.
type Options struct {
	Strategy Strategy
	// MaxIterations caps the number of passes; <= 0 means no cap.
	MaxIterations int
	// TimeBudget caps wall-clock time, checked between passes; <= 0 means none.
	TimeBudget time.Duration
	// Workers > 1 evaluates neighbourhood groups concurrently.
	Workers int
	// SnapshotEvery records the running distance every N passes; 0 disables.
	SnapshotEvery int
	// Trace records every state transition in Result.Trace.
	Trace bool
}

// DefaultOptions mirrors what the CLI and API use when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Strategy:      FirstImprovement,
		MaxIterations: 10000,
		TimeBudget:    2 * time.Second,
		Workers:       1,
		SnapshotEvery: 50,
	}
}

// State is a step of the improver's lifecycle.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateImprovingMoveFound
	StateApplying
	StateConverged
	StateBudgetExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateImprovingMoveFound:
		return "improving_move_found"
	case StateApplying:
		return "applying"
	case StateConverged:
		return "converged"
	case StateBudgetExhausted:
		return "budget_exhausted"
	}
	return "unknown"
}

// Terminal reports whether the improver stops in this state.
func (s State) Terminal() bool { return s == StateConverged || s == StateBudgetExhausted }

// Result is the outcome of Improve or Solve. Both terminal states carry a
// valid solution.
type Result struct {
	Solution model.Solution
	Distance int
	State    State
	Metrics  Metrics
	Trace    []State
}

// Improve runs local search on a capacity-feasible solution and returns one
// whose total distance is never greater. Unassigned customers of a partial
// solution stay unassigned. The budget and ctx are only consulted between
// passes, so a move is never left half applied.
func Improve(ctx context.Context, inst *model.Instance, m *matrix.Matrix, sol model.Solution, opts Options) (Result, error) {
	if m.Len() != inst.NumNodes() {
		return Result{}, &model.InvalidInputError{Field: "matrix", Reason: fmt.Sprintf("covers %d locations, instance has %d", m.Len(), inst.NumNodes())}
	}
	if err := checkRoutes(inst, sol); err != nil {
		return Result{}, err
	}
	if opts.Strategy == "" {
		opts.Strategy = FirstImprovement
	}
	if opts.Strategy != FirstImprovement && opts.Strategy != BestImprovement {
		return Result{}, &model.InvalidInputError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", opts.Strategy)}
	}

	start := time.Now()
	cur := sol.Clone()
	dist := Distance(m, cur)
	sc := &scanner{
		inst:      inst,
		m:         m,
		symmetric: m.Symmetric(),
		first:     opts.Strategy == FirstImprovement,
		workers:   opts.Workers,
		groups:    neighbourhood(len(cur.Routes)),
	}
	res := Result{State: StateIdle}
	res.Metrics.InitialDistance = dist
	to := func(s State) {
		res.State = s
		res.Metrics.Transitions++
		if opts.Trace {
			res.Trace = append(res.Trace, s)
		}
	}
	if opts.Trace {
		res.Trace = []State{StateIdle}
	}

	for {
		if budgetExhausted(ctx, opts, start, res.Metrics.Passes) {
			to(StateBudgetExhausted)
			break
		}
		to(StateScanning)
		mv, ok := sc.scan(cur)
		res.Metrics.Passes++
		if !ok {
			to(StateConverged)
			break
		}
		to(StateImprovingMoveFound)
		to(StateApplying)
		apply(&cur, mv)
		dist -= mv.gain
		res.Metrics.record(mv.kind)
		if opts.SnapshotEvery > 0 && res.Metrics.Passes%opts.SnapshotEvery == 0 {
			res.Metrics.Snapshots = append(res.Metrics.Snapshots, Snapshot{Pass: res.Metrics.Passes, Distance: dist})
		}
	}

	res.Solution = cur
	res.Distance = dist
	res.Metrics.FinalDistance = dist
	res.Metrics.Elapsed = time.Since(start)
	return res, nil
}

func budgetExhausted(ctx context.Context, opts Options, start time.Time, passes int) bool {
	if ctx.Err() != nil {
		return true
	}
	if opts.MaxIterations > 0 && passes >= opts.MaxIterations {
		return true
	}
	return opts.TimeBudget > 0 && time.Since(start) >= opts.TimeBudget
}

// scanner runs one pass over the neighbourhood.
type scanner struct {
	inst      *model.Instance
	m         *matrix.Matrix
	symmetric bool
	first     bool
	workers   int
	groups    []group
}

// preferred reports whether a beats b under the active strategy. Earlier
// groups win ties so serial and parallel scans pick the same move.
func (sc *scanner) preferred(a, b move) bool {
	if sc.first {
		return a.group < b.group
	}
	return a.gain > b.gain || (a.gain == b.gain && a.group < b.group)
}

func (sc *scanner) scan(s model.Solution) (move, bool) {
	if sc.workers > 1 {
		return sc.scanParallel(s)
	}
	ev := newEvaluator(sc.inst, sc.m, sc.symmetric, sc.first)
	var best move
	found := false
	for gi, g := range sc.groups {
		mv, ok := ev.evalGroup(s, gi, g)
		if !ok {
			continue
		}
		if sc.first {
			return mv, true
		}
		if !found || sc.preferred(mv, best) {
			best, found = mv, true
		}
	}
	return best, found
}

// scanParallel evaluates groups concurrently against the read-only solution.
// Workers publish into a shared best-so-far under mu; the winner is applied
// by the caller once every worker has returned.
func (sc *scanner) scanParallel(s model.Solution) (move, bool) {
	var (
		mu    sync.Mutex
		best  move
		found bool
	)
	var g errgroup.Group
	g.SetLimit(sc.workers)
	evs := make(chan *evaluator, sc.workers)
	for i := 0; i < sc.workers; i++ {
		evs <- newEvaluator(sc.inst, sc.m, sc.symmetric, sc.first)
	}
	for gi, grp := range sc.groups {
		g.Go(func() error {
			if sc.first {
				mu.Lock()
				skip := found && best.group < gi
				mu.Unlock()
				if skip {
					return nil
				}
			}
			ev := <-evs
			mv, ok := ev.evalGroup(s, gi, grp)
			evs <- ev
			if !ok {
				return nil
			}
			mu.Lock()
			if !found || sc.preferred(mv, best) {
				best, found = mv, true
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return best, found
}
