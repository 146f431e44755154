// Package obs holds small logging helpers shared across packages.
package obs

import (
	"context"
	"log"
	"time"
)

type ctxKey string

// RunIDKey tags log lines with the solve run they belong to.
const RunIDKey ctxKey = "run_id"

// WithRunID returns ctx carrying id for Time.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}

// RunID returns the run id stored in ctx, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(RunIDKey).(string)
	return id
}

// Time logs the duration of an operation when the returned func is called,
// typically deferred with a pointer to the named error result.
func Time(ctx context.Context, name string) func(errp *error) time.Duration {
	start := time.Now()
	runID := RunID(ctx)
	return func(errp *error) time.Duration {
		dur := time.Since(start)
		if errp != nil && *errp != nil {
			log.Printf("run_id=%s op=%s dur=%dms err=%v", runID, name, dur.Milliseconds(), *errp)
			return dur
		}
		log.Printf("run_id=%s op=%s dur=%dms", runID, name, dur.Milliseconds())
		return dur
	}
}
