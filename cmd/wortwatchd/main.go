// wortwatchd ingests field-node report files into the hot cache and
// durable store and serves the read API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/wortwatch/wortwatch/internal/config"
	"github.com/wortwatch/wortwatch/internal/logging"
	"github.com/wortwatch/wortwatch/internal/metrics"
	"github.com/wortwatch/wortwatch/internal/query"
	"github.com/wortwatch/wortwatch/internal/server"
	"github.com/wortwatch/wortwatch/internal/stats"
	"github.com/wortwatch/wortwatch/internal/storage"
	"github.com/wortwatch/wortwatch/internal/storage/cache"
	"github.com/wortwatch/wortwatch/internal/storage/durable"
	"github.com/wortwatch/wortwatch/internal/watcher"
)

// Version is set at build time via ldflags
var Version = "dev"

// connectWindow bounds startup retries per tier before giving up.
const connectWindow = 30 * time.Second

func main() {
	cfgPath := flag.String("config", "wortwatch.yaml", "config file path")
	dir := flag.String("dir", "", "landing directory (overrides config)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("no config file at %s, using defaults", *cfgPath)
			cfg = config.DefaultConfig()
		} else {
			log.Fatalf("load config: %v", err)
		}
	}

	// CLI overrides
	if *dir != "" {
		cfg.Landing.Dir = *dir
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("invalid log level: %v", err)
	}
	logging.Init(level, cfg.Logging.Format == "json")

	logging.Info("wortwatchd starting", "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Tier connections
	// =========================================================================

	cacheTier, err := connectCache(ctx, cfg.Cache)
	if err != nil {
		logging.Error("hot cache unavailable", "error", err)
		os.Exit(1)
	}

	durableTier, err := connectDurable(ctx, cfg.Durable)
	if err != nil {
		cacheTier.Close(context.Background())
		logging.Error("durable store unavailable", "error", err)
		os.Exit(1)
	}

	store := storage.NewTieredStore(cacheTier, durableTier)

	// =========================================================================
	// Components
	// =========================================================================

	if err := os.MkdirAll(cfg.Landing.Dir, 0o755); err != nil {
		logging.Error("create landing directory", "dir", cfg.Landing.Dir, "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	w := watcher.New(cfg.Landing, store, m)
	srv := server.New(server.Config{
		HTTP:     cfg.Server,
		Queries:  query.New(cfg.Query, store),
		Stats:    stats.New(store),
		Store:    store,
		Metrics:  m,
		Gatherer: reg,
	})

	if err := w.Start(); err != nil {
		logging.Error("start watcher", "error", err)
		os.Exit(1)
	}

	// =========================================================================
	// Run until signalled
	// =========================================================================

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run()
	})

	g.Go(func() error {
		<-gctx.Done()

		// Ingestion drains first so nothing new needs the tiers, then
		// the HTTP server finishes in-flight reads.
		w.Stop()

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(closeCtx); err != nil {
		logging.Warn("closing tiers", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logging.Error("wortwatchd exited", "error", runErr)
		os.Exit(1)
	}
	logging.Info("wortwatchd stopped")
}

// connectCache dials the hot cache, retrying with exponential backoff
// until the connect window closes.
func connectCache(ctx context.Context, cfg config.CacheConfig) (*cache.Cache, error) {
	var c *cache.Cache
	err := retryConnect(ctx, "cache", func() error {
		c = cache.New(cfg)
		if err := c.Ping(ctx); err != nil {
			c.Close(ctx)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, &storage.TierUnavailableError{Tier: storage.TierCache, Err: err}
	}
	return c, nil
}

// connectDurable dials the durable store and ensures its indexes.
func connectDurable(ctx context.Context, cfg config.DurableConfig) (*durable.Store, error) {
	var s *durable.Store
	err := retryConnect(ctx, "durable", func() error {
		store, err := durable.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close(ctx)
			return err
		}
		s = store
		return nil
	})
	if err != nil {
		return nil, &storage.TierUnavailableError{Tier: storage.TierDurable, Err: err}
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

func retryConnect(ctx context.Context, tier string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectWindow
	return backoff.Retry(func() error {
		if err := op(); err != nil {
			logging.Warn("tier connection failed, retrying", "tier", tier, "error", err)
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}
