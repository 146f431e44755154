// Package report renders solver results for people: a text listing in the
// classic per-vehicle format, JSON, an SVG route plot and an Excel sheet.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fleetvrp/internal/matrix"
	"fleetvrp/internal/model"
	"fleetvrp/internal/opt"
)

// RouteSummary describes one vehicle's tour.
type RouteSummary struct {
	VehicleID int   `json:"vehicleId"`
	Stops     []int `json:"stops"`
	Distance  int   `json:"distance"`
	Delivered int   `json:"delivered"`
	PickedUp  int   `json:"pickedUp"`
	MaxLoad   int   `json:"maxLoad"`
}

// Summary is everything a reporter needs; it carries no solver internals.
type Summary struct {
	Routes        []RouteSummary `json:"routes"`
	TotalDistance int            `json:"totalDistance"`
	State         string         `json:"state"`
	Unassigned    []int          `json:"unassigned,omitempty"`
	Capacity      int            `json:"capacity"`
}

// Build summarises res against the instance it was solved for.
func Build(inst *model.Instance, m *matrix.Matrix, res opt.Result) Summary {
	s := Summary{
		Routes:     make([]RouteSummary, 0, len(res.Solution.Routes)),
		State:      res.State.String(),
		Unassigned: opt.Unassigned(inst, res.Solution),
		Capacity:   inst.Capacity(),
	}
	for _, r := range res.Solution.Routes {
		rs := RouteSummary{
			VehicleID: r.VehicleID,
			Stops:     r.Stops(inst.Depot()),
			Distance:  opt.RouteDistance(m, r.Nodes),
		}
		for _, n := range r.Nodes {
			rs.Delivered += inst.Delivery(n)
			rs.PickedUp += inst.Pickup(n)
		}
		for _, l := range inst.LoadProfile(r.Nodes) {
			rs.MaxLoad = max(rs.MaxLoad, l)
		}
		s.TotalDistance += rs.Distance
		s.Routes = append(s.Routes, rs)
	}
	return s
}

// Text writes one line per vehicle and the grand total.
func Text(w io.Writer, s Summary) error {
	for _, r := range s.Routes {
		if _, err := fmt.Fprintf(w, "Route for vehicle %d: %s | Distance: %d\n", r.VehicleID, formatStops(r.Stops), r.Distance); err != nil {
			return err
		}
	}
	if len(s.Unassigned) > 0 {
		if _, err := fmt.Fprintf(w, "Unassigned nodes: %s\n", formatStops(s.Unassigned)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Total distance of all routes: %d\n", s.TotalDistance)
	return err
}

func formatStops(stops []int) string {
	parts := make([]string, len(stops))
	for i, n := range stops {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// JSON writes the summary as indented JSON.
func JSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
