// Command tradeready runs the trading-session readiness synchronizer.
// It reconciles the remote gateway's config, credential, provider, trade,
// activity and stats feeds into a single can-enable decision and serves
// the result over a live dashboard.
//
// Usage:
//
//	tradeready --config config.yaml
//	tradeready --setup (interactive wizard, then starts on the result)
//
// Environment variables:
//
//	GATEWAY_API_TOKEN: bearer token for the gateway
//	GATEWAY_URL, SESSION_ID, NATS_URL, DASHBOARD_ADDR: override the config file
//	BINANCE_API_KEY, BINANCE_API_SECRET: optional, probes work keyless
//	BYBIT_API_KEY, BYBIT_API_SECRET: optional
//	HYPERLIQUID_PRIVATE_KEY: enables the hyperliquid probe
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/tradeready/config"
	"github.com/vadiminshakov/tradeready/dashboard"
	"github.com/vadiminshakov/tradeready/internal/clients"
	"github.com/vadiminshakov/tradeready/internal/events"
	"github.com/vadiminshakov/tradeready/internal/gateway"
	"github.com/vadiminshakov/tradeready/internal/services/fetcher"
	"github.com/vadiminshakov/tradeready/internal/services/probe"
	"github.com/vadiminshakov/tradeready/internal/services/synchronizer"
	"github.com/vadiminshakov/tradeready/internal/setup"
	"github.com/vadiminshakov/tradeready/internal/storage/snapshots"
)

func main() {
	runSetup := flag.Bool("setup", false, "run the interactive setup wizard first")

	cfg, err := config.Get()
	if *runSetup {
		if werr := setup.RunTUI(); werr != nil {
			log.Fatal(werr)
		}
		cfg, err = config.Load(setup.GeneratedPath)
	}
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := gateway.NewClient(cfg.Gateway.URL, os.Getenv("GATEWAY_API_TOKEN"))
	coordinator := fetcher.New(gw, cfg.FetcherConfig(), logger)

	store, err := snapshots.NewWALStore(cfg.WALDir)
	if err != nil {
		logger.Fatal("open snapshot journal", zap.Error(err))
	}
	defer store.Close()

	broadcaster := events.NewStatusBroadcaster(0)

	opts := []synchronizer.Option{
		synchronizer.WithIntervals(cfg.StatusInterval.Std(), cfg.ReadinessInterval.Std()),
		synchronizer.WithRequiredCategories(cfg.Categories()),
		synchronizer.WithSink(broadcaster),
		synchronizer.WithJournal(store),
	}
	if cfg.Probe.Enabled {
		opts = append(opts, synchronizer.WithProbe(buildProbes(logger, cfg)))
	}

	syncer, err := synchronizer.New(logger, coordinator, gw, synchronizer.StaticIdentity(cfg.SessionID), opts...)
	if err != nil {
		logger.Fatal("create synchronizer", zap.Error(err))
	}
	syncer.Start(ctx)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	g, gctx := errgroup.WithContext(runCtx)

	if cfg.NATS.URL != "" {
		nc, nerr := events.DialNATS(ctx, logger, cfg.NATS.URL)
		if nerr != nil {
			logger.Error("nats unavailable, transitions will not be published", zap.Error(nerr))
		} else {
			defer nc.Close()

			sub := broadcaster.Subscribe()
			defer broadcaster.Unsubscribe(sub)

			g.Go(func() error {
				events.NewTransitionPublisher(logger, nc, cfg.NATS.Subject).Run(gctx, sub)
				return nil
			})
		}
	}

	server := dashboard.NewServer(cfg.Dashboard.Addr, syncer, store, broadcaster, logger)
	g.Go(func() error {
		if len(cfg.Dashboard.TLSDomains) > 0 {
			return server.StartWithAutoTLS(gctx, cfg.Dashboard.TLSDomains, cfg.Dashboard.CertCacheDir)
		}
		return server.Start(gctx)
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("shutdown signal received")
			syncer.Stop()
		case <-syncer.Done():
			logger.Info("synchronizer stopped, shutting down")
			cancelRun()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", zap.Error(err))
	}
}

// buildProbes registers the advisory venue checks. Binance and bybit run
// against public endpoints, hyperliquid needs a configured private key.
func buildProbes(logger *zap.Logger, cfg *config.Config) *probe.Registry {
	registry := probe.NewRegistry(logger)

	registry.Register("binance", probe.Binance(clients.NewBinanceClient(
		os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"))))
	registry.Register("bybit", probe.Bybit(clients.NewBybitClient(
		os.Getenv("BYBIT_API_KEY"), os.Getenv("BYBIT_API_SECRET"))))

	if cfg.Probe.HyperliquidKey != "" {
		hl, err := clients.NewHyperliquidClient(cfg.Probe.HyperliquidKey, cfg.Probe.HyperliquidURL)
		if err != nil {
			logger.Warn("hyperliquid probe disabled", zap.Error(err))
		} else {
			registry.Register("hyperliquid", probe.Hyperliquid(hl))
		}
	}

	return registry
}
