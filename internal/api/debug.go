package api

import (
	"encoding/json"
	"net/http"
	"time"

	"fleetroute/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Cfg
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"addr":               c.HTTP.Addr,
			"allowOrigins":       c.HTTP.AllowOrigins,
			"rateRps":            c.HTTP.RateRPS,
			"rateBurst":          c.HTTP.RateBurst,
			"timeBudgetMs":       c.Optimizer.TimeBudgetMs,
			"maxMoves":           c.Optimizer.MaxMoves,
			"maxNodes":           c.Optimizer.MaxNodes,
			"webhookMaxAttempts": c.Webhooks.MaxAttempts,
			"hasDatabaseUrl":     c.Store.DatabaseURL != "",
			"hasRedisUrl":        c.Redis.URL != "",
			"logLevel":           c.Logging.Level,
			"authMode":           c.Auth.Mode,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
