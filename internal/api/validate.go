package api

import (
	"context"
	"fmt"
	"time"

	"fleetroute/internal/model"
	"fleetroute/internal/opt"
)

// BuildInstance turns a decoded request into an engine instance and validates
// it. When distance_matrix is absent the matrix is derived from locations.
func BuildInstance(req *model.OptimizeRequest, maxNodes int) (opt.Instance, error) {
	dist := req.DistanceMatrix
	if len(dist) == 0 && len(req.Locations) > 0 {
		pts := make([]opt.GeoPoint, len(req.Locations))
		for i, l := range req.Locations {
			if l.Lat < -90 || l.Lat > 90 || l.Lng < -180 || l.Lng > 180 {
				return opt.Instance{}, &opt.InvalidInstanceError{Field: "locations", Reason: fmt.Sprintf("location %d out of range", i)}
			}
			pts[i] = opt.GeoPoint{Lat: l.Lat, Lng: l.Lng}
		}
		dist = opt.HaversineMatrix(pts)
	}
	if maxNodes > 0 && len(dist) > maxNodes {
		return opt.Instance{}, &opt.InvalidInstanceError{Field: "distance_matrix", Reason: fmt.Sprintf("%d nodes exceeds the limit of %d", len(dist), maxNodes)}
	}
	if req.TimeBudgetMs != nil && *req.TimeBudgetMs < 0 {
		return opt.Instance{}, &opt.InvalidInstanceError{Field: "time_budget_ms", Reason: "must be >= 0"}
	}
	if req.MaxMoves != nil && *req.MaxMoves < 0 {
		return opt.Instance{}, &opt.InvalidInstanceError{Field: "max_moves", Reason: "must be >= 0"}
	}
	in := opt.Instance{
		Distances:     dist,
		Depot:         req.Depot,
		NumVehicles:   req.NumVehicles,
		Capacities:    req.VehicleCapacities,
		Demands:       req.Demands,
		ReturnToDepot: true,
	}
	if req.ReturnToDepot != nil {
		in.ReturnToDepot = *req.ReturnToDepot
	}
	if err := in.Validate(); err != nil {
		return opt.Instance{}, err
	}
	return in, nil
}

// resolveBudget layers the request over the tenant config over the service
// defaults. An explicit zero in the request means unlimited.
func (s *Server) resolveBudget(ctx context.Context, tenant string, req *model.OptimizeRequest) opt.SearchBudget {
	timeMs := s.Cfg.Optimizer.TimeBudgetMs
	moves := s.Cfg.Optimizer.MaxMoves
	if tc, err := s.Store.GetOptimizerConfig(ctx, tenant); err != nil {
		s.Log.Warnf("optimizer config lookup failed tenant=%s: %v", tenant, err)
	} else if tc != nil {
		if tc.TimeBudgetMs > 0 {
			timeMs = tc.TimeBudgetMs
		}
		if tc.MaxMoves > 0 {
			moves = tc.MaxMoves
		}
	}
	if req.TimeBudgetMs != nil {
		timeMs = *req.TimeBudgetMs
	}
	if req.MaxMoves != nil {
		moves = *req.MaxMoves
	}
	return opt.SearchBudget{TimeLimit: time.Duration(timeMs) * time.Millisecond, MaxMoves: moves}
}
