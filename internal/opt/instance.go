package opt

import (
	"math"
	"time"
)

// Instance is a single CVRP problem. Node indices are used directly; the depot
// anchors every route and is never served.
type Instance struct {
	Distances     [][]float64
	Depot         int
	NumVehicles   int
	Capacities    []float64
	Demands       []float64
	ReturnToDepot bool
}

// SearchBudget bounds the local search. Zero values mean "no limit" for that
// dimension; the search still stops once a full pass finds no improving move.
type SearchBudget struct {
	TimeLimit time.Duration
	MaxMoves  int
}

// N is the number of nodes including the depot.
func (in Instance) N() int { return len(in.Distances) }

// Validate checks structural well-formedness and reports the first violation.
func (in Instance) Validate() error {
	n := len(in.Distances)
	if n == 0 {
		return invalid("distance_matrix", "must contain at least one row")
	}
	for i, row := range in.Distances {
		if len(row) != n {
			return invalid("distance_matrix", "row %d has %d columns, want %d", i, len(row), n)
		}
		for j, c := range row {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return invalid("distance_matrix", "cost [%d][%d] is not finite", i, j)
			}
			if c < 0 {
				return invalid("distance_matrix", "cost [%d][%d] is negative", i, j)
			}
		}
	}
	if in.Depot < 0 || in.Depot >= n {
		return invalid("depot", "index %d out of range [0,%d)", in.Depot, n)
	}
	if in.NumVehicles < 1 {
		return invalid("num_vehicles", "must be positive, got %d", in.NumVehicles)
	}
	if len(in.Capacities) != in.NumVehicles {
		return invalid("vehicle_capacities", "length %d does not match num_vehicles %d", len(in.Capacities), in.NumVehicles)
	}
	if len(in.Demands) != n {
		return invalid("demands", "length %d does not match node count %d", len(in.Demands), n)
	}
	for i, d := range in.Demands {
		if i == in.Depot {
			// depot demand is ignored
			continue
		}
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return invalid("demands", "demand of node %d must be a non-negative number", i)
		}
	}
	for v, c := range in.Capacities {
		if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
			return invalid("vehicle_capacities", "capacity of vehicle %d must be a non-negative number", v)
		}
	}
	return nil
}

// customers lists every non-depot node in ascending order.
func (in Instance) customers() []int {
	out := make([]int, 0, in.N())
	for i := 0; i < in.N(); i++ {
		if i != in.Depot {
			out = append(out, i)
		}
	}
	return out
}
