package store

import (
	"context"
	"errors"
	"time"

	"fleetvrp/internal/model"
	"fleetvrp/internal/opt"
	"fleetvrp/internal/report"
)

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Run is one solve request and, once finished, its outcome.
type Run struct {
	ID         string           `json:"id"`
	Tenant     string           `json:"tenant"`
	Status     string           `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
	Locations  []model.Location `json:"locations"`
	Vehicles   int              `json:"vehicles"`
	Capacity   int              `json:"capacity"`
	Summary    *report.Summary  `json:"summary,omitempty"`
	Metrics    *opt.Metrics     `json:"metrics,omitempty"`
	// ErrorKind is invalid_input, infeasible_instance, unroutable_nodes or no_solution.
	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Terminal reports whether the run will not change any more.
func (r Run) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusPartial || r.Status == StatusFailed
}

// Store is the persistence interface used by the planner, API and callback worker.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run Run) (Run, error)
	GetRun(ctx context.Context, tenantID, id string) (Run, error)
	ListRuns(ctx context.Context, tenantID, cursor string, limit int) (items []Run, nextCursor string, err error)

	// Callback deliveries
	EnqueueCallback(ctx context.Context, tenantID, runID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error)
	MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListCallbacks(ctx context.Context, tenantID, runID string) ([]CallbackDelivery, error)

	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const defaultLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultLimit
	}
	return limit
}
