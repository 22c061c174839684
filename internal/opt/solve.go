package opt

import (
	"context"
	"time"
)

// Metrics summarizes one Solve invocation.
type Metrics struct {
	InitialCost     float64       `json:"initialCost"`
	FinalCost       float64       `json:"finalCost"`
	Passes          int           `json:"passes"`
	Evaluations     int           `json:"evaluations"`
	Moves           MoveCounts    `json:"moves"`
	StopReason      string        `json:"stopReason"`
	BudgetExhausted bool          `json:"budgetExhausted"`
	VehiclesUsed    int           `json:"vehiclesUsed"`
	ConstructTime   time.Duration `json:"constructTimeNs"`
	SearchTime      time.Duration `json:"searchTimeNs"`
}

// Improvement is the cost removed by local search.
func (m Metrics) Improvement() float64 { return m.InitialCost - m.FinalCost }

// Solve validates the instance, constructs a feasible solution, improves it
// within budget and emits the routes. Errors match ErrInvalidInstance or
// ErrInfeasible; budget exhaustion is reported in Metrics, never as an error.
func Solve(ctx context.Context, in Instance, budget SearchBudget) (Result, Metrics, error) {
	if err := in.Validate(); err != nil {
		return Result{}, Metrics{}, err
	}
	oracle := NewMatrixOracle(in.Distances)
	tracker := NewCapacityTracker(in)

	start := time.Now()
	sol, err := Construct(in, oracle, tracker)
	if err != nil {
		return Result{}, Metrics{}, err
	}
	m := Metrics{InitialCost: sol.Cost(oracle), ConstructTime: time.Since(start)}

	start = time.Now()
	st := NewOptimizer(oracle, tracker, budget).Improve(ctx, sol)
	m.SearchTime = time.Since(start)
	m.Passes = st.Passes
	m.Evaluations = st.Evaluations
	m.Moves = st.Moves
	m.StopReason = st.StopReason
	m.BudgetExhausted = st.BudgetExhausted
	m.FinalCost = sol.Cost(oracle)
	for _, r := range sol.Routes {
		if len(r.Stops) > 0 {
			m.VehiclesUsed++
		}
	}
	return Emit(sol, oracle, tracker, in.ReturnToDepot), m, nil
}
