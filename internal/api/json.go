package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fleetvrp/internal/model"
	"fleetvrp/internal/planner"
	"fleetvrp/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps solver and store errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := http.StatusInternalServerError, "Internal Error"
	switch {
	case errors.Is(err, store.ErrNotFound):
		status, title = http.StatusNotFound, "Not Found"
	case errors.Is(err, model.ErrInvalidInput):
		status, title = http.StatusBadRequest, "Invalid Input"
	case errors.Is(err, model.ErrInfeasibleInstance):
		status, title = http.StatusUnprocessableEntity, "Infeasible Instance"
	case errors.Is(err, model.ErrNoSolution):
		status, title = http.StatusUnprocessableEntity, "No Solution"
	}
	kind := ""
	if status != http.StatusNotFound {
		kind = planner.ErrorKind(err)
	}
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   err.Error(),
		Instance: r.URL.Path,
		Kind:     kind,
	})
}
