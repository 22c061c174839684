package opt

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asymRows = [][]float64{
	{0, 1, 9, 9, 2},
	{9, 0, 1, 9, 9},
	{9, 9, 0, 1, 9},
	{9, 9, 9, 0, 1},
	{1, 9, 9, 9, 0},
}

func TestRouteDistance(t *testing.T) {
	o := NewMatrixOracle(asymRows)
	assert.Zero(t, routeDistance(o, 0, nil))
	assert.Equal(t, 5.0, routeDistance(o, 0, []int{1, 2, 3, 4}))
	assert.Equal(t, 38.0, routeDistance(o, 0, []int{4, 3, 2, 1}))
}

func TestInsertionAndRemovalDeltas(t *testing.T) {
	o := NewMatrixOracle(asymRows)
	stops := []int{1, 3}
	base := routeDistance(o, 0, stops)
	for pos := 0; pos <= len(stops); pos++ {
		d := insertionDelta(o, 0, stops, 2, pos)
		after := routeDistance(o, 0, insertAt(append([]int(nil), stops...), 2, pos))
		assert.InDelta(t, after-base, d, 1e-12, "pos %d", pos)
	}
	full := []int{1, 2, 3}
	for i := range full {
		d := removalDelta(o, 0, full, i)
		after := routeDistance(o, 0, removeAt(append([]int(nil), full...), i))
		assert.InDelta(t, after-routeDistance(o, 0, full), d, 1e-12, "index %d", i)
	}
	assert.Equal(t, 18.0, insertionDelta(o, 0, nil, 2, 0))
}

func TestTwoOptPricesAsymmetricReversal(t *testing.T) {
	in := Instance{Distances: asymRows, NumVehicles: 1, Capacities: []float64{10}, Demands: make([]float64, 5), ReturnToDepot: true}
	o := NewMatrixOracle(in.Distances)
	tr := NewCapacityTracker(in)
	sol := newSolution(0, 1)
	sol.Routes[0].Stops = []int{4, 3, 2, 1}
	before := sol.Cost(o)
	op := NewOptimizer(o, tr, SearchBudget{})
	op.ctx = context.Background()
	// each accepted reversal must lower the recomputed cost
	for op.twoOpt(sol) {
		after := sol.Cost(o)
		require.Less(t, after, before)
		before = after
	}
	st := op.Improve(context.Background(), sol)
	require.Equal(t, StopLocalOptimum, st.StopReason)
	assert.Less(t, sol.Cost(o), 38.0)
}

func TestCloneIsDeep(t *testing.T) {
	sol := newSolution(0, 2)
	sol.Routes[0].Stops = []int{1, 2}
	c := sol.Clone()
	c.Routes[0].Stops[0] = 9
	assert.Equal(t, 1, sol.Routes[0].Stops[0])
}

func TestCapacityTracker(t *testing.T) {
	in := Instance{Distances: make([][]float64, 3), Depot: 0, NumVehicles: 2, Capacities: []float64{5, 3}, Demands: []float64{100, 3, 2}}
	tr := NewCapacityTracker(in)
	assert.Zero(t, tr.Demand(0))
	require.True(t, tr.CanAdd(0, 1))
	tr.Apply(0, 1)
	assert.True(t, tr.CanAdd(0, 2))
	tr.Apply(0, 2)
	assert.Equal(t, 5.0, tr.Load(0))
	assert.False(t, tr.CanAdd(0, 1))
	assert.True(t, tr.CanExchange(1, 0, 1))
	assert.False(t, tr.CanExchange(0, 2, 1))
	tr.Remove(0, 1)
	assert.Equal(t, 2.0, tr.Load(0))
	assert.True(t, tr.FleetFits())
	assert.Empty(t, tr.Unplaceable([]int{1, 2}))
}

func TestHaversineMatrix(t *testing.T) {
	m := HaversineMatrix([]GeoPoint{{0, 0}, {0, 1}, {1, 0}})
	require.Len(t, m, 3)
	for i := range m {
		assert.Zero(t, m[i][i])
		for j := range m {
			assert.Equal(t, m[i][j], m[j][i])
		}
	}
	// one degree of arc on a 6371 km sphere
	assert.InDelta(t, 6371000*math.Pi/180, m[0][1], 1)
	assert.InDelta(t, m[0][1], m[0][2], 1)
}
