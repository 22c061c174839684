package opt

import (
	"math"
)

type insertion struct {
	route, node, pos int
	cost             float64
}

// Construct builds the initial feasible solution by cheapest insertion.
//
// Every step scans all (route, unassigned node, slot) triples that respect
// capacity and applies the one with the smallest marginal cost. Scanning
// routes in vehicle order, then nodes ascending, then slots ascending with a
// strict comparison resolves ties towards the lowest vehicle, node and slot.
// Nothing is returned on failure, so a partial solution never escapes.
func Construct(in Instance, o DistanceOracle, t *CapacityTracker) (*Solution, error) {
	remaining := in.customers()
	if bad := t.Unplaceable(remaining); len(bad) > 0 {
		return nil, &InfeasibleError{Reason: ReasonDemandExceedsCapacity, Nodes: bad}
	}
	if !t.FleetFits() {
		return nil, &InfeasibleError{Reason: ReasonFleetCapacityExceeded}
	}
	sol := newSolution(in.Depot, in.NumVehicles)
	for len(remaining) > 0 {
		best, ok := cheapestInsertion(sol, o, t, remaining)
		if !ok {
			return nil, &InfeasibleError{Reason: ReasonNoFeasibleAssignment, Nodes: append([]int(nil), remaining...)}
		}
		node := remaining[best.node]
		r := &sol.Routes[best.route]
		r.Stops = insertAt(r.Stops, node, best.pos)
		t.Apply(best.route, node)
		remaining = removeAt(remaining, best.node)
	}
	return sol, nil
}

// cheapestInsertion returns the best triple; best.node indexes into remaining.
func cheapestInsertion(sol *Solution, o DistanceOracle, t *CapacityTracker, remaining []int) (insertion, bool) {
	best := insertion{cost: math.Inf(1)}
	found := false
	for ri := range sol.Routes {
		stops := sol.Routes[ri].Stops
		for ni, node := range remaining {
			if !t.CanAdd(ri, node) {
				continue
			}
			for pos := 0; pos <= len(stops); pos++ {
				c := insertionDelta(o, sol.Depot, stops, node, pos)
				if c < best.cost {
					best = insertion{route: ri, node: ni, pos: pos, cost: c}
					found = true
				}
			}
		}
	}
	return best, found
}
