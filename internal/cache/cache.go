// Package cache memoizes solve results by instance fingerprint.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"fleetroute/internal/opt"
)

// Entry is a cached solve outcome.
type Entry struct {
	Result  opt.Result  `json:"result"`
	Metrics opt.Metrics `json:"metrics"`
}

// ResultCache stores entries by fingerprint. A miss is (Entry{}, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
}

type canonical struct {
	Distances     [][]float64 `json:"d"`
	Depot         int         `json:"o"`
	Capacities    []float64   `json:"c"`
	Demands       []float64   `json:"q"`
	ReturnToDepot bool        `json:"r"`
	MaxMoves      int         `json:"m"`
}

// Fingerprint hashes everything that determines an uncut solve: the instance
// and the move budget. The depot's demand is ignored by the engine and is
// zeroed here too. The time limit is left out because only results the clock
// did not cut are cached.
func Fingerprint(in opt.Instance, budget opt.SearchBudget) string {
	demands := append([]float64(nil), in.Demands...)
	if in.Depot >= 0 && in.Depot < len(demands) {
		demands[in.Depot] = 0
	}
	b, _ := json.Marshal(canonical{
		Distances:     in.Distances,
		Depot:         in.Depot,
		Capacities:    in.Capacities,
		Demands:       demands,
		ReturnToDepot: in.ReturnToDepot,
		MaxMoves:      budget.MaxMoves,
	})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Cacheable reports whether a result is reproducible from its fingerprint alone.
func Cacheable(m opt.Metrics) bool {
	return m.StopReason != opt.StopTimeLimit && m.StopReason != opt.StopCanceled
}
