package model

import "time"

// OptimizeRequest is the inbound solve request. Field names follow the
// snake_case contract existing clients already send.
type OptimizeRequest struct {
	DistanceMatrix    [][]float64 `json:"distance_matrix,omitempty"`
	Depot             int         `json:"depot"`
	NumVehicles       int         `json:"num_vehicles"`
	VehicleCapacities []float64   `json:"vehicle_capacities"`
	Demands           []float64   `json:"demands"`
	// ReturnToDepot defaults to true when omitted.
	ReturnToDepot *bool `json:"return_to_depot,omitempty"`
	// Locations replace DistanceMatrix with great-circle meters when the matrix is absent.
	Locations    []GeoPoint `json:"locations,omitempty"`
	TimeBudgetMs *int       `json:"time_budget_ms,omitempty"`
	MaxMoves     *int       `json:"max_moves,omitempty"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Plan statuses.
const (
	PlanSolved     = "solved"
	PlanInfeasible = "infeasible"
)

// Plan is a persisted solve outcome.
type Plan struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenantId"`
	Status        string       `json:"status"`
	Fingerprint   string       `json:"fingerprint,omitempty"`
	NumNodes      int          `json:"numNodes"`
	NumVehicles   int          `json:"numVehicles"`
	ReturnToDepot bool         `json:"returnToDepot"`
	Routes        []PlanRoute  `json:"routes,omitempty"`
	TotalDistance float64      `json:"totalDistance"`
	Reason        string       `json:"reason,omitempty"`
	Nodes         []int        `json:"nodes,omitempty"`
	Metrics       *PlanMetrics `json:"metrics,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

type PlanRoute struct {
	Vehicle  int     `json:"vehicle"`
	Label    string  `json:"label"`
	Nodes    []int   `json:"nodes"`
	Distance float64 `json:"distance"`
	Load     float64 `json:"load"`
}

// PlanMetrics captures how one solve went.
type PlanMetrics struct {
	PlanID          string         `json:"planId"`
	TenantID        string         `json:"tenantId"`
	Status          string         `json:"status"`
	InitialCost     float64        `json:"initialCost"`
	FinalCost       float64        `json:"finalCost"`
	Passes          int            `json:"passes"`
	Evaluations     int            `json:"evaluations"`
	Moves           map[string]int `json:"moves,omitempty"`
	StopReason      string         `json:"stopReason,omitempty"`
	BudgetExhausted bool           `json:"budgetExhausted"`
	VehiclesUsed    int            `json:"vehiclesUsed"`
	CacheHit        bool           `json:"cacheHit"`
	DurationMs      float64        `json:"durationMs"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// OptimizerConfig is a tenant's default search budget. Zero fields fall back
// to the service defaults.
type OptimizerConfig struct {
	TimeBudgetMs int `json:"timeBudgetMs"`
	MaxMoves     int `json:"maxMoves"`
}

// PlanEvent is broadcast to live feeds and webhook subscribers.
type PlanEvent struct {
	Type          string  `json:"type"`
	TenantID      string  `json:"tenantId"`
	PlanID        string  `json:"planId"`
	Status        string  `json:"status"`
	TotalDistance float64 `json:"totalDistance,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	TS            string  `json:"ts"`
}

// Event types.
const (
	EventPlanSolved     = "plan.solved"
	EventPlanInfeasible = "plan.infeasible"
)

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
