package opt

import (
	"errors"
	"math"
	"testing"
)

func TestValidate_ReportsFirstBadField(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*Instance)
		field string
	}{
		{"empty matrix", func(in *Instance) { in.Distances = nil }, "distance_matrix"},
		{"ragged matrix", func(in *Instance) { in.Distances[2] = []float64{1, 2} }, "distance_matrix"},
		{"negative cost", func(in *Instance) { in.Distances[1][2] = -1 }, "distance_matrix"},
		{"nan cost", func(in *Instance) { in.Distances[3][0] = math.NaN() }, "distance_matrix"},
		{"depot out of range", func(in *Instance) { in.Depot = 4 }, "depot"},
		{"negative depot", func(in *Instance) { in.Depot = -1 }, "depot"},
		{"no vehicles", func(in *Instance) { in.NumVehicles = 0; in.Capacities = nil }, "num_vehicles"},
		{"capacity count", func(in *Instance) { in.NumVehicles = 2 }, "vehicle_capacities"},
		{"demand count", func(in *Instance) { in.Demands = []float64{0, 1} }, "demands"},
		{"negative demand", func(in *Instance) { in.Demands[2] = -3 }, "demands"},
		{"infinite demand", func(in *Instance) { in.Demands[1] = math.Inf(1) }, "demands"},
		{"negative capacity", func(in *Instance) { in.Capacities[0] = -1 }, "vehicle_capacities"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := exampleInstance()
			tc.mut(&in)
			err := in.Validate()
			if !errors.Is(err, ErrInvalidInstance) {
				t.Fatalf("want ErrInvalidInstance, got %v", err)
			}
			var ie *InvalidInstanceError
			if !errors.As(err, &ie) {
				t.Fatalf("want *InvalidInstanceError, got %T", err)
			}
			if ie.Field != tc.field {
				t.Fatalf("field: got %q want %q (%v)", ie.Field, tc.field, err)
			}
		})
	}
}

func TestValidate_AcceptsNegativeDepotDemand(t *testing.T) {
	in := exampleInstance()
	in.Demands[0] = -7
	if err := in.Validate(); err != nil {
		t.Fatalf("depot demand should be ignored: %v", err)
	}
}

func TestValidate_AcceptsAsymmetricMatrix(t *testing.T) {
	in := exampleInstance()
	in.Distances[1][2] = 99
	if err := in.Validate(); err != nil {
		t.Fatalf("asymmetric matrix rejected: %v", err)
	}
}

func TestCustomersSkipDepot(t *testing.T) {
	in := exampleInstance()
	in.Depot = 2
	got := in.customers()
	want := []int{0, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
