//go:build postgres_integration

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"fleetroute/internal/model"
)

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	ctx := context.Background()
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate should be a no-op: %v", err)
	}

	tenant := "t_it_" + time.Now().Format("150405.000")
	pl, err := p.SavePlan(ctx, model.Plan{TenantID: tenant, Status: model.PlanSolved, NumNodes: 4, NumVehicles: 1, ReturnToDepot: true,
		Routes: []model.PlanRoute{{Vehicle: 0, Label: "driver1", Nodes: []int{0, 2, 3, 1, 0}, Distance: 80, Load: 15}}, TotalDistance: 80})
	if err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	if err := p.SavePlanMetrics(ctx, model.PlanMetrics{PlanID: pl.ID, TenantID: tenant, Status: model.PlanSolved, FinalCost: 80, Moves: map[string]int{"twoOpt": 1}}); err != nil {
		t.Fatalf("SavePlanMetrics: %v", err)
	}
	got, err := p.GetPlan(ctx, tenant, pl.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got.Metrics == nil || got.Metrics.FinalCost != 80 || len(got.Routes) != 1 {
		t.Fatalf("unexpected plan: %+v", got)
	}
	if _, err := p.GetPlan(ctx, "other", pl.ID); err != ErrNotFound {
		t.Fatalf("cross-tenant read should be not found, got %v", err)
	}
	items, _, err := p.ListPlans(ctx, tenant, "", "", 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("ListPlans: %v %d", err, len(items))
	}
}
