package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"fleetroute/internal/config"
	"fleetroute/internal/logger"
	"fleetroute/internal/metrics"
)

// Run serves the API and the webhook worker until ctx is canceled, then
// shuts the listener down gracefully.
func Run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	metrics.RegisterDefault()
	s, err := NewServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("API listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.NewWebhookWorker().Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout())
		defer cancel()
		log.Infof("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
