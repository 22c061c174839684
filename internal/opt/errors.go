package opt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInstance marks structural problems with an inbound instance.
	ErrInvalidInstance = errors.New("invalid instance")
	// ErrInfeasible marks well-formed instances with no capacity-feasible assignment.
	ErrInfeasible = errors.New("infeasible instance")
)

// InvalidInstanceError names the first field that failed validation.
type InvalidInstanceError struct {
	Field  string
	Reason string
}

func (e *InvalidInstanceError) Error() string {
	return fmt.Sprintf("invalid instance: %s: %s", e.Field, e.Reason)
}

func (e *InvalidInstanceError) Is(target error) bool { return target == ErrInvalidInstance }

func invalid(field, format string, args ...any) error {
	return &InvalidInstanceError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Infeasibility reasons reported by the constructor.
const (
	ReasonDemandExceedsCapacity = "demand_exceeds_capacity"
	ReasonFleetCapacityExceeded = "fleet_capacity_exceeded"
	ReasonNoFeasibleAssignment  = "no_feasible_assignment"
)

// InfeasibleError reports why no solution exists and which nodes could not be placed.
type InfeasibleError struct {
	Reason string
	Nodes  []int
}

func (e *InfeasibleError) Error() string {
	if len(e.Nodes) == 0 {
		return "infeasible: " + e.Reason
	}
	ids := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		ids[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("infeasible: %s (nodes %s)", e.Reason, strings.Join(ids, ","))
}

func (e *InfeasibleError) Is(target error) bool { return target == ErrInfeasible }
