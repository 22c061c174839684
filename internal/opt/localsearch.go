package opt

import (
	"context"
	"time"
)

// improveEps is the minimum gain for a move to count as improving; smaller
// gains are float noise and applying them could cycle.
const improveEps = 1e-9

// checkEvery is how many move evaluations run between deadline checks.
const checkEvery = 1024

// Stop reasons reported in SearchStats.
const (
	StopLocalOptimum = "local_optimum"
	StopMaxMoves     = "max_moves"
	StopTimeLimit    = "time_limit"
	StopCanceled     = "canceled"
)

// MoveCounts tallies accepted moves per family.
type MoveCounts struct {
	TwoOpt   int `json:"twoOpt"`
	OrOpt    int `json:"orOpt"`
	Relocate int `json:"relocate"`
	Swap     int `json:"swap"`
}

// Total is the number of accepted moves.
func (m MoveCounts) Total() int { return m.TwoOpt + m.OrOpt + m.Relocate + m.Swap }

// SearchStats describes one local search run.
type SearchStats struct {
	Passes          int
	Evaluations     int
	Moves           MoveCounts
	StopReason      string
	BudgetExhausted bool
}

// Optimizer improves a feasible solution with first-improvement local search.
type Optimizer struct {
	oracle  DistanceOracle
	tracker *CapacityTracker
	budget  SearchBudget
	now     func() time.Time

	ctx      context.Context
	deadline time.Time
	stats    SearchStats
	scratch  []int
}

// NewOptimizer binds the search to the oracle and tracker used at construction.
func NewOptimizer(o DistanceOracle, t *CapacityTracker, budget SearchBudget) *Optimizer {
	return &Optimizer{oracle: o, tracker: t, budget: budget, now: time.Now}
}

// Improve mutates sol in place. Every applied move strictly lowers total cost
// and keeps coverage and capacity intact, so sol stays feasible whenever the
// search stops.
func (op *Optimizer) Improve(ctx context.Context, sol *Solution) SearchStats {
	op.ctx = ctx
	op.stats = SearchStats{}
	op.deadline = time.Time{}
	if op.budget.TimeLimit > 0 {
		op.deadline = op.now().Add(op.budget.TimeLimit)
	}
	for {
		if op.expired() {
			break
		}
		op.stats.Passes++
		if !op.pass(sol) {
			if op.stats.StopReason == "" {
				op.stats.StopReason = StopLocalOptimum
			}
			break
		}
		if op.budget.MaxMoves > 0 && op.stats.Moves.Total() >= op.budget.MaxMoves {
			op.stats.StopReason = StopMaxMoves
			op.stats.BudgetExhausted = true
			break
		}
	}
	return op.stats
}

// pass applies the first improving move found, trying families in a fixed order.
func (op *Optimizer) pass(sol *Solution) bool {
	if op.twoOpt(sol) {
		op.stats.Moves.TwoOpt++
		return true
	}
	if op.stats.StopReason != "" {
		return false
	}
	if op.orOpt(sol) {
		op.stats.Moves.OrOpt++
		return true
	}
	if op.stats.StopReason != "" {
		return false
	}
	if op.relocate(sol) {
		op.stats.Moves.Relocate++
		return true
	}
	if op.stats.StopReason != "" {
		return false
	}
	if op.swap(sol) {
		op.stats.Moves.Swap++
		return true
	}
	return false
}

// tick counts one evaluation and reports whether the search must stop.
func (op *Optimizer) tick() bool {
	op.stats.Evaluations++
	if op.stats.Evaluations%checkEvery != 0 {
		return false
	}
	return op.expired()
}

func (op *Optimizer) expired() bool {
	if op.stats.StopReason != "" && op.stats.StopReason != StopLocalOptimum {
		return true
	}
	if op.ctx != nil && op.ctx.Err() != nil {
		op.stats.StopReason = StopCanceled
		op.stats.BudgetExhausted = true
		return true
	}
	if !op.deadline.IsZero() && !op.now().Before(op.deadline) {
		op.stats.StopReason = StopTimeLimit
		op.stats.BudgetExhausted = true
		return true
	}
	return false
}

// twoOpt reverses a segment s[i..k] of one route. Forward and reverse inner
// path costs are accumulated so asymmetric matrices are priced exactly.
func (op *Optimizer) twoOpt(sol *Solution) bool {
	o := op.oracle
	for ri := range sol.Routes {
		s := sol.Routes[ri].Stops
		n := len(s)
		for i := 0; i < n-1; i++ {
			prev, _ := neighbours(sol.Depot, s, i)
			fwd, rev := 0.0, 0.0
			for k := i + 1; k < n; k++ {
				fwd += o.Cost(s[k-1], s[k])
				rev += o.Cost(s[k], s[k-1])
				if op.tick() {
					return false
				}
				_, next := neighbours(sol.Depot, s, k+1)
				before := o.Cost(prev, s[i]) + fwd + o.Cost(s[k], next)
				after := o.Cost(prev, s[k]) + rev + o.Cost(s[i], next)
				if after-before < -improveEps {
					reverse(s, i, k)
					return true
				}
			}
		}
	}
	return false
}

func reverse(s []int, i, k int) {
	for ; i < k; i, k = i+1, k-1 {
		s[i], s[k] = s[k], s[i]
	}
}

// orOpt moves a single customer to another slot of the same route.
func (op *Optimizer) orOpt(sol *Solution) bool {
	for ri := range sol.Routes {
		s := sol.Routes[ri].Stops
		if len(s) < 3 {
			// two stops can only be reordered by reversal, which 2-opt covers
			continue
		}
		for i := range s {
			node := s[i]
			rem := removalDelta(op.oracle, sol.Depot, s, i)
			op.scratch = append(op.scratch[:0], s[:i]...)
			op.scratch = append(op.scratch, s[i+1:]...)
			for pos := 0; pos <= len(op.scratch); pos++ {
				if pos == i {
					continue
				}
				if op.tick() {
					return false
				}
				if rem+insertionDelta(op.oracle, sol.Depot, op.scratch, node, pos) < -improveEps {
					out := make([]int, 0, len(s))
					out = append(out, op.scratch...)
					sol.Routes[ri].Stops = insertAt(out, node, pos)
					return true
				}
			}
		}
	}
	return false
}

// relocate moves one customer to its cheapest feasible slot on another route.
func (op *Optimizer) relocate(sol *Solution) bool {
	o, t := op.oracle, op.tracker
	for ra := range sol.Routes {
		for i := 0; i < len(sol.Routes[ra].Stops); i++ {
			sa := sol.Routes[ra].Stops
			node := sa[i]
			rem := removalDelta(o, sol.Depot, sa, i)
			for rb := range sol.Routes {
				if rb == ra || !t.CanAdd(rb, node) {
					continue
				}
				sb := sol.Routes[rb].Stops
				bestPos, bestIns := -1, 0.0
				for pos := 0; pos <= len(sb); pos++ {
					if op.tick() {
						return false
					}
					c := insertionDelta(o, sol.Depot, sb, node, pos)
					if bestPos < 0 || c < bestIns {
						bestPos, bestIns = pos, c
					}
				}
				if rem+bestIns < -improveEps {
					sol.Routes[ra].Stops = removeAt(sa, i)
					sol.Routes[rb].Stops = insertAt(sb, node, bestPos)
					t.Remove(ra, node)
					t.Apply(rb, node)
					return true
				}
			}
		}
	}
	return false
}

// swap exchanges two customers between two routes, each taking the other's slot.
func (op *Optimizer) swap(sol *Solution) bool {
	o, t := op.oracle, op.tracker
	for ra := 0; ra < len(sol.Routes); ra++ {
		for rb := ra + 1; rb < len(sol.Routes); rb++ {
			sa, sb := sol.Routes[ra].Stops, sol.Routes[rb].Stops
			for i, a := range sa {
				pa, _ := neighbours(sol.Depot, sa, i)
				_, na := neighbours(sol.Depot, sa, i+1)
				outA := o.Cost(pa, a) + o.Cost(a, na)
				for j, b := range sb {
					if op.tick() {
						return false
					}
					if !t.CanExchange(ra, a, b) || !t.CanExchange(rb, b, a) {
						continue
					}
					pb, _ := neighbours(sol.Depot, sb, j)
					_, nb := neighbours(sol.Depot, sb, j+1)
					delta := o.Cost(pa, b) + o.Cost(b, na) - outA +
						o.Cost(pb, a) + o.Cost(a, nb) - o.Cost(pb, b) - o.Cost(b, nb)
					if delta < -improveEps {
						sa[i], sb[j] = b, a
						t.Remove(ra, a)
						t.Apply(ra, b)
						t.Remove(rb, b)
						t.Apply(rb, a)
						return true
					}
				}
			}
		}
	}
	return false
}
