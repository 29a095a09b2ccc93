// Command thorium-api runs the HTTP API surface (spec §6): sample/repo
// ingestion, reaction lifecycle, network-policy CRUD, and system/node/
// worker administration, bound to the metadata, coordination, and object
// store adapters.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thoriumlabs/thorium/pkg/api"
	"github.com/thoriumlabs/thorium/pkg/cleanup"
	"github.com/thoriumlabs/thorium/pkg/config"
	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/networkpolicy"
	"github.com/thoriumlabs/thorium/pkg/objectstore"
	"github.com/thoriumlabs/thorium/pkg/reaction"
)

// retentionSweepInterval is independent of the retention windows
// themselves; an hourly sweep is frequent enough to keep table growth
// bounded without competing for the metadata pool during request traffic.
const retentionSweepInterval = time.Hour

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	addr := flag.String("addr", getEnv("HTTP_ADDR", ":8080"), "HTTP listen address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := slog.With("component", "thorium-api")
	log.Info("starting thorium-api", "config_dir", *configDir)

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	meta, err := metadata.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Error("failed to connect to metadata store", "error", err)
		os.Exit(1)
	}
	defer meta.Close()
	log.Info("connected to metadata store")

	coord, err := coordination.NewClient(ctx, cfg.Coordination)
	if err != nil {
		log.Error("failed to connect to coordination store", "error", err)
		os.Exit(1)
	}
	defer coord.Close()
	log.Info("connected to coordination store")

	objects, err := objectstore.NewClient(ctx, cfg.ObjectStore)
	if err != nil {
		log.Error("failed to connect to object store", "error", err)
		os.Exit(1)
	}
	log.Info("connected to object store")

	reactions := reaction.New(meta, coord, objects)
	policies := networkpolicy.New(meta, coord)

	retention := cleanup.NewService(&cfg.Retention, meta, retentionSweepInterval)
	retention.Start(ctx)
	defer retention.Stop()

	server := api.NewServer(cfg, meta, coord, objects, reactions, policies)

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", *addr)
		if err := server.Start(*addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("HTTP server exited", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("error during graceful shutdown", "error", err)
	}
}
