package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"fleetroute/internal/api"
	"fleetroute/internal/config"
	"fleetroute/internal/logger"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML or JSON config file")
	flag.Parse()

	boot := logger.New("main")
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		boot.Errorf("failed to load config: %v", err)
		os.Exit(1)
	}
	log := logger.NewZerologLogger("api", cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := api.Run(ctx, cfg, log); err != nil {
		log.Errorf("server error: %v", err)
		stop()
		os.Exit(1)
	}
}
