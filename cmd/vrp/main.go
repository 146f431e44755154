// Command vrp solves a capacitated vehicle routing instance read from a CSV or
// XLSX table and prints the routes.
//
//	vrp [flags] customers.csv
//
// Exit status is 0 when every customer is routed, 2 when some could not be
// placed (the partial routes are still printed) and 1 on any other failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleetvrp/internal/buildinfo"
	"fleetvrp/internal/config"
	"fleetvrp/internal/integrations/source"
	"fleetvrp/internal/matrix"
	"fleetvrp/internal/model"
	"fleetvrp/internal/opt"
	"fleetvrp/internal/platform/obs"
	"fleetvrp/internal/report"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitUnroutable = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type cliFlags struct {
	config        string
	vehicles      int
	capacity      int
	pickupMode    string
	strategy      string
	timeBudget    time.Duration
	maxIterations int
	workers       int
	svg           string
	xlsx          string
	json          bool
	version       bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)
	fs := flag.NewFlagSet("vrp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f cliFlags
	fs.StringVar(&f.config, "config", "", "YAML config file")
	fs.IntVar(&f.vehicles, "vehicles", 0, "number of vehicles (default from config, 3)")
	fs.IntVar(&f.capacity, "capacity", -1, "vehicle capacity; 0 means total demand (default from config)")
	fs.StringVar(&f.pickupMode, "pickup-mode", "", "carried or separate")
	fs.StringVar(&f.strategy, "strategy", "", "first or best improvement")
	fs.DurationVar(&f.timeBudget, "time-budget", 0, "local search time budget, e.g. 2s")
	fs.IntVar(&f.maxIterations, "max-iterations", 0, "local search pass cap")
	fs.IntVar(&f.workers, "workers", 0, "goroutines evaluating moves")
	fs.StringVar(&f.svg, "svg", "", "write a route plot to this SVG file")
	fs.StringVar(&f.xlsx, "xlsx", "", "write the routes to this XLSX workbook")
	fs.BoolVar(&f.json, "json", false, "print the report as JSON")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: vrp [flags] <customers.csv|customers.xlsx>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}
	if f.version {
		fmt.Fprintln(stdout, buildinfo.String())
		return exitOK
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitFailure
	}

	config.LoadDotEnv()
	cfg, err := config.Load(f.config)
	if err != nil {
		log.Printf("vrp: %v", err)
		return exitFailure
	}
	applyFlags(&cfg.Solver, f)
	if err := cfg.Validate(); err != nil {
		log.Printf("vrp: %v", err)
		return exitFailure
	}

	res, inst, m, err := solve(ctx, fs.Arg(0), cfg.Solver)
	if err != nil && !errors.Is(err, model.ErrUnroutableNodes) {
		if errors.Is(err, model.ErrNoSolution) {
			fmt.Fprintln(stdout, "No solution found.")
		}
		log.Printf("vrp: %v", err)
		return exitFailure
	}

	sum := report.Build(inst, m, res)
	if f.json {
		err = report.JSON(stdout, sum)
	} else {
		err = report.Text(stdout, sum)
	}
	if err != nil {
		log.Printf("vrp: write report: %v", err)
		return exitFailure
	}
	if f.svg != "" {
		if err := writeSVG(f.svg, inst.Locations(), sum); err != nil {
			log.Printf("vrp: %v", err)
			return exitFailure
		}
	}
	if f.xlsx != "" {
		if err := report.XLSX(f.xlsx, sum); err != nil {
			log.Printf("vrp: %v", err)
			return exitFailure
		}
	}
	if len(sum.Unassigned) > 0 {
		return exitUnroutable
	}
	return exitOK
}

// applyFlags overlays explicitly set flags on the configured solver section.
func applyFlags(s *config.Solver, f cliFlags) {
	if f.vehicles != 0 {
		s.Vehicles = f.vehicles
	}
	if f.capacity >= 0 {
		s.Capacity = f.capacity
	}
	if f.pickupMode != "" {
		s.PickupMode = f.pickupMode
	}
	if f.strategy != "" {
		s.Strategy = f.strategy
	}
	if f.timeBudget != 0 {
		s.TimeBudget = f.timeBudget
	}
	if f.maxIterations != 0 {
		s.MaxIterations = f.maxIterations
	}
	if f.workers != 0 {
		s.Workers = f.workers
	}
}

var errInterrupted = &model.NoSolutionError{Reason: "interrupted before solving"}

func solve(ctx context.Context, path string, sc config.Solver) (res opt.Result, inst *model.Instance, m *matrix.Matrix, err error) {
	done := obs.Time(ctx, "solve_file")
	defer func() { done(&err) }()

	loader, err := source.ForPath(path)
	if err != nil {
		return opt.Result{}, nil, nil, err
	}
	if ctx.Err() != nil {
		return opt.Result{}, nil, nil, errInterrupted
	}
	table, err := loader.Load(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return opt.Result{}, nil, nil, errInterrupted
		}
		return opt.Result{}, nil, nil, err
	}
	nodes, err := table.Nodes()
	if err != nil {
		return opt.Result{}, nil, nil, err
	}
	inst, err = model.NewInstance(nodes, sc.Vehicles, sc.CapacityFor(nodes), sc.Mode())
	if err != nil {
		return opt.Result{}, nil, nil, err
	}
	m, err = matrix.Euclidean(inst.Locations())
	if err != nil {
		return opt.Result{}, nil, nil, err
	}
	if ctx.Err() != nil {
		return opt.Result{}, nil, nil, errInterrupted
	}
	res, err = opt.Solve(ctx, inst, m, sc.Options())
	if err != nil && !errors.Is(err, model.ErrUnroutableNodes) {
		return opt.Result{}, nil, nil, err
	}
	return res, inst, m, err
}

func writeSVG(path string, locs []model.Location, sum report.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := report.SVG(f, locs, sum); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
