package opt

import (
	"fmt"
)

// EmittedRoute is the externally visible form of one vehicle's route.
type EmittedRoute struct {
	Vehicle  int     `json:"vehicle"`
	Label    string  `json:"label"`
	Nodes    []int   `json:"nodes"`
	Distance float64 `json:"distance"`
	Load     float64 `json:"load"`
}

// Result is the emitted solution, one route per vehicle in vehicle order.
type Result struct {
	Routes        []EmittedRoute `json:"routes"`
	TotalDistance float64        `json:"totalDistance"`
}

// VehicleLabel names vehicle k as driver<k+1>.
func VehicleLabel(k int) string { return fmt.Sprintf("driver%d", k+1) }

// Emit renders sol without mutating it. Routes run depot..depot; the trailing
// depot is dropped when returnToDepot is false. Unused vehicles are [depot].
// Distance always includes the closing edge.
func Emit(sol *Solution, o DistanceOracle, t *CapacityTracker, returnToDepot bool) Result {
	res := Result{Routes: make([]EmittedRoute, len(sol.Routes))}
	for i, r := range sol.Routes {
		nodes := make([]int, 0, len(r.Stops)+2)
		nodes = append(nodes, sol.Depot)
		nodes = append(nodes, r.Stops...)
		if len(r.Stops) > 0 {
			nodes = append(nodes, sol.Depot)
		}
		if !returnToDepot && len(nodes) > 1 && nodes[len(nodes)-1] == sol.Depot {
			nodes = nodes[:len(nodes)-1]
		}
		load := 0.0
		for _, n := range r.Stops {
			load += t.Demand(n)
		}
		d := routeDistance(o, sol.Depot, r.Stops)
		res.Routes[i] = EmittedRoute{Vehicle: r.Vehicle, Label: VehicleLabel(r.Vehicle), Nodes: nodes, Distance: d, Load: load}
		res.TotalDistance += d
	}
	return res
}

// Mapping returns the label -> node sequence view of the result.
func (r Result) Mapping() map[string][]int {
	out := make(map[string][]int, len(r.Routes))
	for _, rt := range r.Routes {
		out[rt.Label] = rt.Nodes
	}
	return out
}
