package model

// LoadProfile returns the vehicle load when leaving the depot followed by the
// load after each stop of the customer sequence. In separate mode the value
// is the fuller of the two pools.
func (in *Instance) LoadProfile(nodes []int) []int {
	out := make([]int, 0, len(nodes)+1)
	dropped, collected := 0, 0
	for _, n := range nodes {
		dropped += in.nodes[n].Delivery
	}
	onboard := dropped
	out = append(out, onboard)
	for _, n := range nodes {
		nd := in.nodes[n]
		switch in.mode {
		case PickupSeparate:
			dropped -= nd.Delivery
			collected += nd.Pickup
			out = append(out, max(dropped, collected))
		default:
			onboard += nd.Pickup - nd.Delivery
			out = append(out, onboard)
		}
	}
	return out
}

// RouteFeasible checks capacity at every prefix of the traversal rather than
// only the route total.
func (in *Instance) RouteFeasible(nodes []int) bool {
	deliveries := 0
	for _, n := range nodes {
		deliveries += in.nodes[n].Delivery
	}
	if deliveries > in.capacity {
		return false
	}
	onboard, collected := deliveries, 0
	for _, n := range nodes {
		nd := in.nodes[n]
		if in.mode == PickupSeparate {
			collected += nd.Pickup
			if collected > in.capacity {
				return false
			}
			continue
		}
		onboard += nd.Pickup - nd.Delivery
		if onboard > in.capacity {
			return false
		}
	}
	return true
}
