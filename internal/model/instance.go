package model

import (
	"fmt"
	"math"
)

// Depot is the node index every route starts and ends at.
const Depot = 0

// MaxQuantity bounds capacity, vehicle count and the summed demand of an
// instance. Load arithmetic then never overflows and values fit an INT column.
const MaxQuantity = math.MaxInt32

// Instance is a validated, read-only capacitated routing problem.
type Instance struct {
	nodes    []Node
	vehicles int
	capacity int
	mode     PickupMode
}

// BuildNodes zips the three equal-length input columns into nodes.
func BuildNodes(locs []Location, deliveries, pickups []int) ([]Node, error) {
	if len(deliveries) != len(locs) {
		return nil, &InvalidInputError{Field: "deliveries", Reason: fmt.Sprintf("length %d does not match %d locations", len(deliveries), len(locs))}
	}
	if len(pickups) != len(locs) {
		return nil, &InvalidInputError{Field: "pickups", Reason: fmt.Sprintf("length %d does not match %d locations", len(pickups), len(locs))}
	}
	nodes := make([]Node, len(locs))
	for i := range locs {
		nodes[i] = Node{Location: locs[i], Delivery: deliveries[i], Pickup: pickups[i]}
	}
	return nodes, nil
}

// NewInstance validates the problem data. Structural problems yield an
// InvalidInputError; a node too large for any vehicle yields an
// InfeasibleInstanceError, before any solving starts.
func NewInstance(nodes []Node, vehicles, capacity int, mode PickupMode) (*Instance, error) {
	if len(nodes) < 2 {
		return nil, &InvalidInputError{Field: "nodes", Reason: "need a depot and at least one customer"}
	}
	total := 0
	for i, n := range nodes {
		if math.IsNaN(n.X) || math.IsNaN(n.Y) || math.IsInf(n.X, 0) || math.IsInf(n.Y, 0) {
			return nil, &InvalidInputError{Field: fmt.Sprintf("nodes[%d]", i), Reason: "coordinates must be finite"}
		}
		if n.Delivery < 0 || n.Pickup < 0 {
			return nil, &InvalidInputError{Field: fmt.Sprintf("nodes[%d]", i), Reason: "demand must be non-negative"}
		}
		if n.Delivery > MaxQuantity || n.Pickup > MaxQuantity {
			return nil, &InvalidInputError{Field: fmt.Sprintf("nodes[%d]", i), Reason: fmt.Sprintf("demand must be at most %d", MaxQuantity)}
		}
		total += n.Delivery + n.Pickup
		if total > MaxQuantity {
			return nil, &InvalidInputError{Field: fmt.Sprintf("nodes[%d]", i), Reason: fmt.Sprintf("total demand exceeds %d", MaxQuantity)}
		}
	}
	if vehicles < 1 || vehicles > MaxQuantity {
		return nil, &InvalidInputError{Field: "vehicles", Reason: fmt.Sprintf("must be between 1 and %d", MaxQuantity)}
	}
	if capacity < 1 || capacity > MaxQuantity {
		return nil, &InvalidInputError{Field: "capacity", Reason: fmt.Sprintf("must be between 1 and %d", MaxQuantity)}
	}
	if mode == "" {
		mode = PickupCarried
	}
	if mode != PickupCarried && mode != PickupSeparate {
		return nil, &InvalidInputError{Field: "pickupMode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
	if nodes[Depot].Delivery != 0 || nodes[Depot].Pickup != 0 {
		return nil, &InvalidInputError{Field: "nodes[0]", Reason: "depot must have zero demand"}
	}
	for i := 1; i < len(nodes); i++ {
		// A lone visit loads the delivery on departure and the pickup on the way
		// back, so both must fit.
		d := max(nodes[i].Delivery, nodes[i].Pickup)
		if d > capacity {
			return nil, &InfeasibleInstanceError{Node: i, Demand: d, Capacity: capacity}
		}
	}
	return &Instance{
		nodes:    append([]Node(nil), nodes...),
		vehicles: vehicles,
		capacity: capacity,
		mode:     mode,
	}, nil
}

func (in *Instance) NumNodes() int    { return len(in.nodes) }
func (in *Instance) NumVehicles() int { return in.vehicles }
func (in *Instance) Capacity() int    { return in.capacity }
func (in *Instance) Depot() int       { return Depot }
func (in *Instance) Mode() PickupMode { return in.mode }

func (in *Instance) Delivery(i int) int      { return in.nodes[i].Delivery }
func (in *Instance) Pickup(i int) int        { return in.nodes[i].Pickup }
func (in *Instance) Location(i int) Location { return in.nodes[i].Location }
func (in *Instance) Node(i int) Node         { return in.nodes[i] }

// Locations returns a copy of all coordinates, depot first.
func (in *Instance) Locations() []Location {
	out := make([]Location, len(in.nodes))
	for i, n := range in.nodes {
		out[i] = n.Location
	}
	return out
}

// Customers lists every non-depot node index in ascending order.
func (in *Instance) Customers() []int {
	out := make([]int, 0, len(in.nodes)-1)
	for i := range in.nodes {
		if i != Depot {
			out = append(out, i)
		}
	}
	return out
}

// TotalDemand sums deliveries and pickups over every node. Used to derive a
// capacity that never binds. The sum saturates at MaxQuantity+1, which
// NewInstance rejects.
func TotalDemand(nodes []Node) int {
	t := 0
	for _, n := range nodes {
		if n.Delivery > MaxQuantity || n.Pickup > MaxQuantity {
			return MaxQuantity + 1
		}
		t += max(n.Delivery, 0) + max(n.Pickup, 0)
		if t > MaxQuantity {
			return MaxQuantity + 1
		}
	}
	return t
}
