package opt

import (
	"gonum.org/v1/gonum/floats"
)

// loadEps absorbs float noise when summing demands against a capacity.
const loadEps = 1e-9

// CapacityTracker keeps the cumulative load of every route of one invocation.
type CapacityTracker struct {
	demands    []float64
	capacities []float64
	loads      []float64
}

// NewCapacityTracker creates a tracker with one empty route per vehicle.
// The depot's demand is treated as zero.
func NewCapacityTracker(in Instance) *CapacityTracker {
	demands := append([]float64(nil), in.Demands...)
	demands[in.Depot] = 0
	return &CapacityTracker{
		demands:    demands,
		capacities: append([]float64(nil), in.Capacities...),
		loads:      make([]float64, len(in.Capacities)),
	}
}

// CanAdd reports whether node fits on route without exceeding its vehicle capacity.
func (t *CapacityTracker) CanAdd(route, node int) bool {
	return t.loads[route]+t.demands[node] <= t.capacities[route]+loadEps
}

// CanExchange reports whether route stays within capacity after trading out for in.
func (t *CapacityTracker) CanExchange(route, out, in int) bool {
	return t.loads[route]-t.demands[out]+t.demands[in] <= t.capacities[route]+loadEps
}

// Apply adds node's demand to route.
func (t *CapacityTracker) Apply(route, node int) { t.loads[route] += t.demands[node] }

// Remove subtracts node's demand from route.
func (t *CapacityTracker) Remove(route, node int) { t.loads[route] -= t.demands[node] }

// Load is the current load of route.
func (t *CapacityTracker) Load(route int) float64 { return t.loads[route] }

// Capacity is the capacity of route's vehicle.
func (t *CapacityTracker) Capacity(route int) float64 { return t.capacities[route] }

// Demand of a node (zero for the depot).
func (t *CapacityTracker) Demand(node int) float64 { return t.demands[node] }

// Unplaceable returns the nodes whose demand exceeds every vehicle's capacity.
func (t *CapacityTracker) Unplaceable(nodes []int) []int {
	maxCap := floats.Max(t.capacities)
	var out []int
	for _, n := range nodes {
		if t.demands[n] > maxCap+loadEps {
			out = append(out, n)
		}
	}
	return out
}

// FleetFits reports whether total demand is within total fleet capacity.
func (t *CapacityTracker) FleetFits() bool {
	return floats.Sum(t.demands) <= floats.Sum(t.capacities)+loadEps
}
