package api

import (
	"fmt"
	"net/url"

	"fleetvrp/internal/model"
	"fleetvrp/internal/planner"
)

// Request size bounds; the improver is quadratic per pass.
const (
	maxLocations = 5000
	maxVehicles  = 1000
)

// validateSolveRequest checks request shape. Semantic checks (demand vs
// capacity, matrix values) happen in the planner.
func validateSolveRequest(req *planner.Request) error {
	if len(req.Locations) < 2 {
		return &model.InvalidInputError{Field: "locations", Reason: "need a depot and at least one customer"}
	}
	if len(req.Locations) > maxLocations {
		return &model.InvalidInputError{Field: "locations", Reason: fmt.Sprintf("at most %d locations", maxLocations)}
	}
	if req.Vehicles < 0 || req.Vehicles > maxVehicles {
		return &model.InvalidInputError{Field: "vehicles", Reason: fmt.Sprintf("must be between 0 and %d", maxVehicles)}
	}
	if req.Capacity < 0 {
		return &model.InvalidInputError{Field: "capacity", Reason: "must be >= 0"}
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &model.InvalidInputError{Field: "callbackUrl", Reason: "must be an absolute http(s) URL"}
		}
	}
	if req.CallbackSecret != "" && req.CallbackURL == "" {
		return &model.InvalidInputError{Field: "callbackSecret", Reason: "requires callbackUrl"}
	}
	return nil
}
