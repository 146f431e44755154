package model

// Core domain types shared by the solver, loaders, reporters and the API.

// Location is an immutable planar coordinate pair. Index 0 of any location
// list is the depot.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a location with the quantities dropped off and collected there.
type Node struct {
	Location
	Delivery int `json:"delivery"`
	Pickup   int `json:"pickup"`
}

// PickupMode selects how pickup quantities interact with vehicle capacity.
type PickupMode string

const (
	// PickupCarried: the vehicle leaves the depot holding every delivery of its
	// route; each stop unloads its delivery and loads its pickup. The load
	// after every stop must fit the capacity.
	PickupCarried PickupMode = "carried"
	// PickupSeparate: deliveries and pickups occupy independent pools, each
	// bounded by the capacity on its own.
	PickupSeparate PickupMode = "separate"
)

// ParsePickupMode maps a config/API string onto a PickupMode. Empty selects
// the default.
func ParsePickupMode(s string) (PickupMode, error) {
	switch PickupMode(s) {
	case "":
		return PickupCarried, nil
	case PickupCarried, PickupSeparate:
		return PickupMode(s), nil
	}
	return "", &InvalidInputError{Field: "pickupMode", Reason: "must be carried or separate, got " + s}
}

// Route is the customer sequence served by one vehicle. The depot is implicit
// at both ends.
type Route struct {
	VehicleID int   `json:"vehicleId"`
	Nodes     []int `json:"nodes"`
}

// Stops returns the traversal order including the depot at both ends.
func (r Route) Stops(depot int) []int {
	out := make([]int, 0, len(r.Nodes)+2)
	out = append(out, depot)
	out = append(out, r.Nodes...)
	return append(out, depot)
}

// Empty reports whether the vehicle leaves the depot at all.
func (r Route) Empty() bool { return len(r.Nodes) == 0 }

// Solution holds one route per vehicle, indexed by vehicle id.
type Solution struct {
	Routes []Route `json:"routes"`
}

// NewSolution returns a solution with an empty route for every vehicle.
func NewSolution(vehicles int) Solution {
	s := Solution{Routes: make([]Route, vehicles)}
	for v := range s.Routes {
		s.Routes[v] = Route{VehicleID: v, Nodes: []int{}}
	}
	return s
}

// Clone deep-copies the route slices.
func (s Solution) Clone() Solution {
	out := Solution{Routes: make([]Route, len(s.Routes))}
	for i, r := range s.Routes {
		out.Routes[i] = Route{VehicleID: r.VehicleID, Nodes: append([]int{}, r.Nodes...)}
	}
	return out
}

// Assigned counts the customers placed on any route.
func (s Solution) Assigned() int {
	n := 0
	for _, r := range s.Routes {
		n += len(r.Nodes)
	}
	return n
}

// RouteLists renders every route as a depot-bracketed index list, the shape
// handed to reporters.
func (s Solution) RouteLists(depot int) [][]int {
	out := make([][]int, len(s.Routes))
	for i, r := range s.Routes {
		out[i] = r.Stops(depot)
	}
	return out
}
