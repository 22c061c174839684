package opt

import (
	"gonum.org/v1/gonum/floats"
)

// Route is the customer sequence of one vehicle. The depot is implicit at both
// ends; an empty Stops slice is an unused vehicle.
type Route struct {
	Vehicle int
	Stops   []int
}

// Solution holds one route per vehicle, indexed by vehicle.
type Solution struct {
	Depot  int
	Routes []Route
}

func newSolution(depot, vehicles int) *Solution {
	s := &Solution{Depot: depot, Routes: make([]Route, vehicles)}
	for v := range s.Routes {
		s.Routes[v] = Route{Vehicle: v, Stops: []int{}}
	}
	return s
}

// Clone returns a deep copy.
func (s *Solution) Clone() *Solution {
	out := &Solution{Depot: s.Depot, Routes: make([]Route, len(s.Routes))}
	for i, r := range s.Routes {
		out.Routes[i] = Route{Vehicle: r.Vehicle, Stops: append([]int(nil), r.Stops...)}
	}
	return out
}

// Cost is the total round-trip distance over all routes.
func (s *Solution) Cost(o DistanceOracle) float64 {
	per := make([]float64, len(s.Routes))
	for i, r := range s.Routes {
		per[i] = routeDistance(o, s.Depot, r.Stops)
	}
	return floats.Sum(per)
}

// routeDistance sums depot -> stops... -> depot. An empty route costs nothing.
func routeDistance(o DistanceOracle, depot int, stops []int) float64 {
	if len(stops) == 0 {
		return 0
	}
	total := o.Cost(depot, stops[0])
	for i := 1; i < len(stops); i++ {
		total += o.Cost(stops[i-1], stops[i])
	}
	return total + o.Cost(stops[len(stops)-1], depot)
}

// neighbours returns the nodes around insertion slot pos (0..len(stops)).
func neighbours(depot int, stops []int, pos int) (prev, next int) {
	prev, next = depot, depot
	if pos > 0 {
		prev = stops[pos-1]
	}
	if pos < len(stops) {
		next = stops[pos]
	}
	return prev, next
}

// insertionDelta is the marginal cost of inserting node at slot pos.
func insertionDelta(o DistanceOracle, depot int, stops []int, node, pos int) float64 {
	if len(stops) == 0 {
		return o.Cost(depot, node) + o.Cost(node, depot)
	}
	prev, next := neighbours(depot, stops, pos)
	return o.Cost(prev, node) + o.Cost(node, next) - o.Cost(prev, next)
}

// removalDelta is the (non-positive in metric instances) cost change of
// removing stops[pos].
func removalDelta(o DistanceOracle, depot int, stops []int, pos int) float64 {
	node := stops[pos]
	if len(stops) == 1 {
		return -(o.Cost(depot, node) + o.Cost(node, depot))
	}
	prev, _ := neighbours(depot, stops, pos)
	_, next := neighbours(depot, stops, pos+1)
	return o.Cost(prev, next) - o.Cost(prev, node) - o.Cost(node, next)
}

// insertAt returns stops with node placed at pos, reusing the backing array.
func insertAt(stops []int, node, pos int) []int {
	stops = append(stops, 0)
	copy(stops[pos+1:], stops[pos:])
	stops[pos] = node
	return stops
}

// removeAt drops stops[pos] in place.
func removeAt(stops []int, pos int) []int {
	return append(stops[:pos], stops[pos+1:]...)
}
