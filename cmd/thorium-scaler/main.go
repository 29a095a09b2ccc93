// Command thorium-scaler runs one scaler control loop (spec §4.8) per
// configured scaler kind: refreshing its cache, draining due deadlines,
// placing and spawning workers, reconciling deletes, and sweeping zombies.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/thoriumlabs/thorium/pkg/backend"
	"github.com/thoriumlabs/thorium/pkg/backend/cluster"
	"github.com/thoriumlabs/thorium/pkg/backend/external"
	"github.com/thoriumlabs/thorium/pkg/config"
	"github.com/thoriumlabs/thorium/pkg/coordination"
	"github.com/thoriumlabs/thorium/pkg/metadata"
	"github.com/thoriumlabs/thorium/pkg/models"
	"github.com/thoriumlabs/thorium/pkg/objectstore"
	"github.com/thoriumlabs/thorium/pkg/reaction"
	"github.com/thoriumlabs/thorium/pkg/scaler"
)

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
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := slog.With("component", "thorium-scaler")
	log.Info("starting thorium-scaler", "config_dir", *configDir)

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

	coord, err := coordination.NewClient(ctx, cfg.Coordination)
	if err != nil {
		log.Error("failed to connect to coordination store", "error", err)
		os.Exit(1)
	}
	defer coord.Close()

	objects, err := objectstore.NewClient(ctx, cfg.ObjectStore)
	if err != nil {
		log.Error("failed to connect to object store", "error", err)
		os.Exit(1)
	}

	reactions := reaction.New(meta, coord, objects)

	if len(cfg.Scalers) == 0 {
		log.Error("no scalers configured, nothing to run")
		os.Exit(1)
	}

	scalers := make([]*scaler.Scaler, 0, len(cfg.Scalers))
	for _, scCfg := range cfg.Scalers {
		kind := models.ScalerKind(scCfg.Kind)
		clusters := driversFor(kind, cfg)

		s := scaler.New(kind, meta, coord, reactions, clusters, scCfg)
		if err := s.Setup(ctx); err != nil {
			log.Error("failed to set up scaler", "scaler", kind, "error", err)
			os.Exit(1)
		}
		s.Start(ctx)
		scalers = append(scalers, s)
		log.Info("scaler started", "scaler", kind, "tick_interval", scCfg.TickInterval)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, stopping scalers")
	for _, s := range scalers {
		s.Stop()
	}
}

// driversFor builds the Clusters registry (cluster name -> Driver) for one
// scaler kind from its configured backend. Deployments run one backend
// configuration per scaler kind (pkg/config.BackendConfig carries no
// separate cluster-name list), so the configured driver is registered
// under its namespace prefix (cluster driver) or scaler kind name
// (external/stub drivers) as the single cluster name that kind's nodes and
// workers are expected to report (see DESIGN.md Open Question decisions).
func driversFor(kind models.ScalerKind, cfg *config.Config) scaler.Clusters {
	log := slog.With("scaler", kind)

	backendCfg, ok := cfg.BackendByKind(string(kind))
	if !ok {
		log.Warn("no backend configured for scaler kind, registering unavailable stub driver")
		return scaler.Clusters{string(kind): &backend.StubDriver{Kind: string(kind)}}
	}

	switch kind {
	case models.ScalerCluster:
		driver, err := cluster.New(backendCfg.Kubeconfig, backendCfg.NamespacePrefix, backendCfg.HostAliases)
		if err != nil {
			log.Error("failed to build cluster driver, registering unavailable stub driver", "error", err)
			return scaler.Clusters{string(kind): &backend.StubDriver{Kind: string(kind)}}
		}
		name := backendCfg.NamespacePrefix
		if name == "" {
			name = string(kind)
		}
		return scaler.Clusters{name: driver}

	case models.ScalerExternal:
		driver := external.New(backendCfg.ExternalEndpoint, backendCfg.ExternalTimeout)
		return scaler.Clusters{string(kind): driver}

	default:
		return scaler.Clusters{string(kind): &backend.StubDriver{Kind: string(kind)}}
	}
}
