package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"fleetroute/internal/opt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instance() opt.Instance {
	return opt.Instance{
		Distances:     [][]float64{{0, 10, 15}, {10, 0, 35}, {15, 35, 0}},
		NumVehicles:   1,
		Capacities:    []float64{10},
		Demands:       []float64{0, 2, 3},
		ReturnToDepot: true,
	}
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint(instance(), opt.SearchBudget{})
	assert.Len(t, base, 64)

	t.Run("stable", func(t *testing.T) {
		assert.Equal(t, base, Fingerprint(instance(), opt.SearchBudget{}))
	})
	t.Run("ignores time limit and depot demand", func(t *testing.T) {
		in := instance()
		in.Demands[0] = 99
		assert.Equal(t, base, Fingerprint(in, opt.SearchBudget{TimeLimit: time.Second}))
	})
	t.Run("sensitive to inputs", func(t *testing.T) {
		in := instance()
		in.Distances[1][2] = 36
		assert.NotEqual(t, base, Fingerprint(in, opt.SearchBudget{}))
		in = instance()
		in.ReturnToDepot = false
		assert.NotEqual(t, base, Fingerprint(in, opt.SearchBudget{}))
		assert.NotEqual(t, base, Fingerprint(instance(), opt.SearchBudget{MaxMoves: 3}))
	})
}

func TestCacheable(t *testing.T) {
	assert.True(t, Cacheable(opt.Metrics{StopReason: opt.StopLocalOptimum}))
	assert.True(t, Cacheable(opt.Metrics{StopReason: opt.StopMaxMoves}))
	assert.False(t, Cacheable(opt.Metrics{StopReason: opt.StopTimeLimit}))
	assert.False(t, Cacheable(opt.Metrics{StopReason: opt.StopCanceled}))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2, 0)
	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	e := Entry{Result: opt.Result{TotalDistance: 42}, Metrics: opt.Metrics{FinalCost: 42}}
	require.NoError(t, c.Put(ctx, "a", e))
	got, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42.0, got.Result.TotalDistance)

	require.NoError(t, c.Put(ctx, "b", e))
	require.NoError(t, c.Put(ctx, "c", e))
	assert.Equal(t, 2, c.Len())
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted")
}

func TestRedisCache_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedis(url, time.Minute)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	key := Fingerprint(instance(), opt.SearchBudget{MaxMoves: 7})
	e := Entry{Result: opt.Result{Routes: []opt.EmittedRoute{{Label: "driver1", Nodes: []int{0, 1, 2, 0}}}, TotalDistance: 60}}
	require.NoError(t, c.Put(ctx, key, e))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.Result, got.Result)

	_, ok, err = c.Get(ctx, "missing-"+key)
	require.NoError(t, err)
	assert.False(t, ok)
}
