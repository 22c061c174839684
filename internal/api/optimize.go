package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleetroute/internal/cache"
	"fleetroute/internal/metrics"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
)

// solveOutcome is an engine result plus where it came from.
type solveOutcome struct {
	cache.Entry
	Fingerprint string
	CacheHit    bool
	Shared      bool
}

type verboseResponse struct {
	PlanID         string             `json:"planId,omitempty"`
	Routes         map[string][]int   `json:"routes"`
	TotalDistance  float64            `json:"totalDistance"`
	RouteDistances map[string]float64 `json:"routeDistances"`
	RouteLoads     map[string]float64 `json:"routeLoads"`
	Metrics        model.PlanMetrics  `json:"metrics"`
}

type infeasibleResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	Nodes  []int  `json:"nodes"`
	PlanID string `json:"planId,omitempty"`
}

// OptimizeHandler handles POST /optimize and POST /v1/optimize.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanPlan() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	in, err := BuildInstance(&req, s.Cfg.Optimizer.MaxNodes)
	if err != nil {
		s.writeSolveError(w, r, p.Tenant, opt.Instance{}, "", err)
		return
	}
	budget := s.resolveBudget(r.Context(), p.Tenant, &req)

	started := time.Now()
	out, err := s.solve(r.Context(), in, budget)
	if err != nil {
		s.writeSolveError(w, r, p.Tenant, in, cache.Fingerprint(in, budget), err)
		return
	}
	observeSolve(out)

	pm := planMetrics(p.Tenant, out, time.Since(started))
	plan := s.savePlan(r.Context(), model.Plan{
		TenantID:      p.Tenant,
		Status:        model.PlanSolved,
		Fingerprint:   out.Fingerprint,
		NumNodes:      in.N(),
		NumVehicles:   in.NumVehicles,
		ReturnToDepot: in.ReturnToDepot,
		Routes:        planRoutes(out.Result),
		TotalDistance: out.Result.TotalDistance,
	}, &pm)
	s.Log.Infow("plan solved", map[string]any{
		"tenant":      p.Tenant,
		"planId":      plan.ID,
		"nodes":       in.N(),
		"vehicles":    in.NumVehicles,
		"cost":        out.Result.TotalDistance,
		"stopReason":  out.Metrics.StopReason,
		"cacheHit":    out.CacheHit,
		"shared":      out.Shared,
		"duration_ms": pm.DurationMs,
	})

	if plan.ID != "" {
		w.Header().Set("X-Plan-Id", plan.ID)
	}
	if !isVerbose(r) {
		writeJSON(w, http.StatusOK, out.Result.Mapping())
		return
	}
	resp := verboseResponse{
		PlanID:         plan.ID,
		Routes:         out.Result.Mapping(),
		TotalDistance:  out.Result.TotalDistance,
		RouteDistances: make(map[string]float64, len(out.Result.Routes)),
		RouteLoads:     make(map[string]float64, len(out.Result.Routes)),
		Metrics:        pm,
	}
	for _, rt := range out.Result.Routes {
		resp.RouteDistances[rt.Label] = rt.Distance
		resp.RouteLoads[rt.Label] = rt.Load
	}
	writeJSON(w, http.StatusOK, resp)
}

// solve answers from the cache when it can and otherwise runs the engine,
// sharing one run between concurrent identical requests.
func (s *Server) solve(ctx context.Context, in opt.Instance, budget opt.SearchBudget) (solveOutcome, error) {
	key := cache.Fingerprint(in, budget)
	out := solveOutcome{Fingerprint: key}
	if s.Cache != nil {
		e, ok, err := s.Cache.Get(ctx, key)
		if err != nil {
			s.Log.Warnf("result cache get failed: %v", err)
		} else if ok {
			out.Entry = e
			out.CacheHit = true
			return out, nil
		}
	}
	flight := fmt.Sprintf("%s/%d", key, budget.TimeLimit)
	v, err, shared := s.solves.Do(flight, func() (any, error) {
		res, m, err := opt.Solve(ctx, in, budget)
		if err != nil {
			return nil, err
		}
		observeEngine(in.N(), m)
		e := cache.Entry{Result: res, Metrics: m}
		if s.Cache != nil && cache.Cacheable(m) {
			if err := s.Cache.Put(context.WithoutCancel(ctx), key, e); err != nil {
				s.Log.Warnf("result cache put failed: %v", err)
			}
		}
		return e, nil
	})
	if err != nil {
		return out, err
	}
	out.Entry = v.(cache.Entry)
	out.Shared = shared
	return out, nil
}

// writeSolveError renders invalid instances as 400 problems and infeasible
// ones as the 422 body, recording the infeasible plan first.
func (s *Server) writeSolveError(w http.ResponseWriter, r *http.Request, tenant string, in opt.Instance, fingerprint string, err error) {
	var inv *opt.InvalidInstanceError
	var inf *opt.InfeasibleError
	switch {
	case errors.As(err, &inv):
		metrics.SolveOutcomes.WithLabelValues("invalid").Inc()
		writeFieldProblem(w, http.StatusBadRequest, "Invalid instance", inv.Field, inv.Reason, r.URL.Path)
	case errors.As(err, &inf):
		metrics.SolveOutcomes.WithLabelValues("infeasible").Inc()
		nodes := inf.Nodes
		if nodes == nil {
			nodes = []int{}
		}
		plan := s.savePlan(r.Context(), model.Plan{
			TenantID:      tenant,
			Status:        model.PlanInfeasible,
			Fingerprint:   fingerprint,
			NumNodes:      in.N(),
			NumVehicles:   in.NumVehicles,
			ReturnToDepot: in.ReturnToDepot,
			Reason:        inf.Reason,
			Nodes:         nodes,
		}, nil)
		s.Log.Infow("plan infeasible", map[string]any{"tenant": tenant, "planId": plan.ID, "reason": inf.Reason, "nodes": len(nodes)})
		writeJSON(w, http.StatusUnprocessableEntity, infeasibleResponse{Error: "No solution found", Reason: inf.Reason, Nodes: nodes, PlanID: plan.ID})
	default:
		s.Log.Errorf("solve failed: %v", err)
		writeProblem(w, http.StatusInternalServerError, "Solve failed", err.Error(), r.URL.Path)
	}
}

// savePlan persists the plan and its metrics and announces it. Storage
// failures are logged; the caller still answers with the solution.
func (s *Server) savePlan(ctx context.Context, plan model.Plan, pm *model.PlanMetrics) model.Plan {
	plan.CreatedAt = time.Now().UTC()
	saved, err := s.Store.SavePlan(ctx, plan)
	if err != nil {
		s.Log.Errorf("save plan failed tenant=%s: %v", plan.TenantID, err)
		return plan
	}
	if pm != nil {
		pm.PlanID = saved.ID
		pm.CreatedAt = saved.CreatedAt
		if err := s.Store.SavePlanMetrics(ctx, *pm); err != nil {
			s.Log.Warnf("save plan metrics failed plan=%s: %v", saved.ID, err)
		}
	}
	s.publishPlan(ctx, saved)
	return saved
}

func (s *Server) publishPlan(ctx context.Context, plan model.Plan) {
	evt := model.PlanEvent{
		Type:          model.EventPlanSolved,
		TenantID:      plan.TenantID,
		PlanID:        plan.ID,
		Status:        plan.Status,
		TotalDistance: plan.TotalDistance,
		Reason:        plan.Reason,
		TS:            plan.CreatedAt.Format(time.RFC3339),
	}
	if plan.Status == model.PlanInfeasible {
		evt.Type = model.EventPlanInfeasible
	}
	s.Broker.Publish(plan.TenantID, SSEEvent{Type: evt.Type, Data: evt})
	s.Pub.Emit(ctx, plan.TenantID, evt.Type, evt)
}

func planRoutes(res opt.Result) []model.PlanRoute {
	out := make([]model.PlanRoute, len(res.Routes))
	for i, rt := range res.Routes {
		out[i] = model.PlanRoute{Vehicle: rt.Vehicle, Label: rt.Label, Nodes: rt.Nodes, Distance: rt.Distance, Load: rt.Load}
	}
	return out
}

func planMetrics(tenant string, out solveOutcome, elapsed time.Duration) model.PlanMetrics {
	m := out.Metrics
	return model.PlanMetrics{
		TenantID:    tenant,
		Status:      model.PlanSolved,
		InitialCost: m.InitialCost,
		FinalCost:   m.FinalCost,
		Passes:      m.Passes,
		Evaluations: m.Evaluations,
		Moves: map[string]int{
			"twoOpt":   m.Moves.TwoOpt,
			"orOpt":    m.Moves.OrOpt,
			"relocate": m.Moves.Relocate,
			"swap":     m.Moves.Swap,
		},
		StopReason:      m.StopReason,
		BudgetExhausted: m.BudgetExhausted,
		VehiclesUsed:    m.VehiclesUsed,
		CacheHit:        out.CacheHit,
		DurationMs:      float64(elapsed.Microseconds()) / 1000,
	}
}

func observeSolve(out solveOutcome) {
	if out.CacheHit {
		metrics.SolveOutcomes.WithLabelValues("cached").Inc()
		return
	}
	metrics.SolveOutcomes.WithLabelValues("solved").Inc()
}

// observeEngine records one engine run.
func observeEngine(nodes int, m opt.Metrics) {
	metrics.SolveDuration.WithLabelValues(m.StopReason).Observe((m.ConstructTime + m.SearchTime).Seconds())
	metrics.MovesApplied.WithLabelValues("two_opt").Add(float64(m.Moves.TwoOpt))
	metrics.MovesApplied.WithLabelValues("or_opt").Add(float64(m.Moves.OrOpt))
	metrics.MovesApplied.WithLabelValues("relocate").Add(float64(m.Moves.Relocate))
	metrics.MovesApplied.WithLabelValues("swap").Add(float64(m.Moves.Swap))
	metrics.InstanceNodes.Observe(float64(nodes))
	if m.InitialCost > 0 {
		metrics.CostImprovement.Observe(m.Improvement() / m.InitialCost)
	}
}

func isVerbose(r *http.Request) bool {
	v := r.URL.Query().Get("verbose")
	return strings.EqualFold(v, "true") || v == "1"
}
