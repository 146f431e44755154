package api

import (
	"net/http"
	"time"

	"fleetvrp/internal/buildinfo"
)

// DebugJSON reports build info and the non-secret parts of the configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	if p.Role != "admin" {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	c := s.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":                c.Server.Port,
			"authMode":            s.Auth.Mode,
			"rateRps":             c.Server.RateRPS,
			"rateBurst":           c.Server.RateBurst,
			"matrixCacheSize":     c.Server.MatrixCacheSize,
			"callbackMaxAttempts": c.Callbacks.MaxAttempts,
			"hasDatabaseUrl":      c.Storage.DatabaseURL != "",
			"hasRedisUrl":         c.Events.RedisURL != "",
			"solverStrategy":      c.Solver.Strategy,
			"solverTimeBudgetMs":  c.Solver.TimeBudget.Milliseconds(),
		},
	})
}
