package api

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/singleflight"

	"fleetroute/internal/auth"
	"fleetroute/internal/cache"
	"fleetroute/internal/config"
	"fleetroute/internal/logger"
	"fleetroute/internal/store"
	"fleetroute/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Cache  cache.ResultCache
	Log    logger.Logger
	Cfg    *config.Config
	// Auth is nil when callers are identified by headers alone.
	Auth *auth.Verifier

	// solves coalesces concurrent identical solves.
	solves  singleflight.Group
	closers []io.Closer
}

// NewServer wires the backends named by cfg. Without a database URL the store
// is in-memory; without a Redis URL the cache and broker are in-process.
func NewServer(ctx context.Context, cfg *config.Config, log logger.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &Server{Cfg: cfg, Log: log}
	if cfg.Auth.Mode != "" && cfg.Auth.Mode != "none" {
		s.Auth = auth.NewVerifier(auth.Options{
			Mode:        cfg.Auth.Mode,
			HMACSecret:  cfg.Auth.HMACSecret,
			JWKSURL:     cfg.Auth.JWKSURL,
			TenantClaim: cfg.Auth.TenantClaim,
			RoleClaim:   cfg.Auth.RoleClaim,
		})
	}

	if cfg.Store.DatabaseURL == "" {
		s.Store = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if !cfg.Store.SkipMigrate {
			mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err = pg.Migrate(mctx)
			cancel()
			if err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		s.Store = pg
		s.closers = append(s.closers, pg)
	}

	if cfg.Redis.URL == "" {
		s.Cache = cache.NewMemory(cfg.Optimizer.CacheSize, cfg.Redis.CacheTTL())
		s.Broker = NewBroker()
	} else {
		rc, err := cache.NewRedis(cfg.Redis.URL, cfg.Redis.CacheTTL())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		s.Cache = rc
		s.closers = append(s.closers, rc)
		rb, err := NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			log.Warnf("redis broker unavailable, using in-process broker: %v", err)
			s.Broker = NewBroker()
		} else {
			s.Broker = rb
			s.closers = append(s.closers, rb)
		}
	}

	s.Pub = webhooks.NewPublisher(s.Store, log.With(map[string]any{"component": "webhooks"}))
	return s, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	c := s.Cfg.Webhooks
	return webhooks.NewWorker(s.Store, s.Log.With(map[string]any{"component": "webhook-worker"}), webhooks.Options{
		MaxAttempts: c.MaxAttempts,
		Interval:    time.Duration(c.PollIntervalMs) * time.Millisecond,
		Timeout:     time.Duration(c.TimeoutMs) * time.Millisecond,
	})
}

// Close releases database and Redis connections.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.Log.Warnf("close: %v", err)
		}
	}
	s.closers = nil
}
