package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetvrp/internal/model"
	"fleetvrp/internal/planner"
	"fleetvrp/internal/report"
	"fleetvrp/internal/store"
)

// maxBodyBytes caps solve request bodies.
const maxBodyBytes = 8 << 20

// SolvesHandler handles POST/GET /v1/solves
func (s *Server) SolvesHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		if !p.CanSubmit() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "planner or admin required", r.URL.Path)
			return
		}
		var req planner.Request
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateSolveRequest(&req); err != nil {
			writeError(w, r, err)
			return
		}
		if v := r.URL.Query().Get("async"); strings.EqualFold(v, "true") || v == "1" {
			run, err := s.Planner.Submit(r.Context(), p.Tenant, req)
			if err != nil {
				writeError(w, r, err)
				return
			}
			w.Header().Set("Location", "/v1/solves/"+run.ID)
			writeJSON(w, http.StatusAccepted, run)
			return
		}
		run, err := s.Planner.Plan(r.Context(), p.Tenant, req)
		if err != nil && !errors.Is(err, model.ErrUnroutableNodes) {
			if run.ID != "" {
				w.Header().Set("Location", "/v1/solves/"+run.ID)
			}
			writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/solves/"+run.ID)
		writeJSON(w, http.StatusOK, run)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			_, _ = fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List solves failed", err.Error(), r.URL.Path)
			return
		}
		if items == nil {
			items = []store.Run{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SolveByIDHandler handles GET /v1/solves/{id} and its sub-resources.
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r)
	if !ok {
		return
	}
	id, sub, _ := strings.Cut(rest, "/")
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch sub {
	case "":
		writeJSON(w, http.StatusOK, run)
	case "report.svg":
		if !s.requireSummary(w, r, run) {
			return
		}
		var buf bytes.Buffer
		if err := report.SVG(&buf, run.Locations, *run.Summary); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Render failed", err.Error(), r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write(buf.Bytes())
	case "report.txt":
		if !s.requireSummary(w, r, run) {
			return
		}
		var buf bytes.Buffer
		if err := report.Text(&buf, *run.Summary); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Render failed", err.Error(), r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	case "callbacks":
		items, err := s.Store.ListCallbacks(r.Context(), p.Tenant, run.ID)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List callbacks failed", err.Error(), r.URL.Path)
			return
		}
		if items == nil {
			items = []store.CallbackDelivery{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case "stream":
		s.streamSSE(w, r, p, run)
	case "events":
		s.streamWS(w, r, p, run)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// requireSummary writes 409 while the run has no routes to render.
func (s *Server) requireSummary(w http.ResponseWriter, r *http.Request, run store.Run) bool {
	if run.Summary != nil {
		return true
	}
	detail := "solve is " + run.Status
	if run.Error != "" {
		detail += ": " + run.Error
	}
	writeProblem(w, http.StatusConflict, "No routes", detail, r.URL.Path)
	return false
}

// SolverConfigHandler returns the defaults applied to zero-valued request fields.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.principal(w, r); !ok {
		return
	}
	c := s.Config.Solver
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicles":        c.Vehicles,
		"capacity":        c.Capacity,
		"pickupMode":      c.Mode(),
		"strategy":        c.Options().Strategy,
		"maxIterations":   c.MaxIterations,
		"timeBudgetMs":    c.TimeBudget.Milliseconds(),
		"workers":         c.Workers,
		"snapshotEvery":   c.SnapshotEvery,
		"maxTimeBudgetMs": planner.MaxTimeBudget.Milliseconds(),
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the store and, when it has one, the broker's backend.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	if pb, ok := s.Broker.(pinger); ok {
		if err := pb.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Event broker unavailable", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
