package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	SolveOutcomes.WithLabelValues("solved").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(SolveOutcomes.WithLabelValues("solved")), 1.0)

	mfs, err := Registry.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["fleetroute_solves_total"])
	assert.True(t, names["go_goroutines"])
}
