package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sgerhart/aegisflux/analyzer/internal/analyzer"
	"github.com/sgerhart/aegisflux/analyzer/internal/api"
	"github.com/sgerhart/aegisflux/analyzer/internal/config"
	"github.com/sgerhart/aegisflux/analyzer/internal/logging"
	"github.com/sgerhart/aegisflux/analyzer/internal/metrics"
	analyzerNats "github.com/sgerhart/aegisflux/analyzer/internal/nats"
	"github.com/sgerhart/aegisflux/analyzer/internal/rules"
	"github.com/sgerhart/aegisflux/analyzer/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analyzer service (HTTP API and optional NATS subscriber)",
	Long: `Starts the HTTP API and, when ANALYZER_NATS_URL is set, a NATS queue
subscriber on changes.detected that publishes classifications to
changes.classified. Settings come from ANALYZER_* environment variables;
--rules, --platform and --log-level override them.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	cfg.RulesPath = rootFlags.rulesPath
	cfg.LogLevel = rootFlags.logLevel
	platform, err := selectedPlatform()
	if err != nil {
		return err
	}
	cfg.Platform = platform

	logger := logging.New(os.Stdout, cfg.LogLevel, "analyzer")
	slog.SetDefault(logger)

	logger.Info("Starting AegisFlux Analyzer Service", "version", version)
	logger.Info("Configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"nats_url", cfg.NatsURL,
		"nats_queue", cfg.NatsQueue,
		"rules_path", cfg.RulesPath,
		"hot_reload", cfg.HotReload,
		"debounce_ms", cfg.DebounceMs,
		"platform", cfg.Platform,
		"max_results", cfg.MaxResults,
		"dedupe_cap", cfg.DedupeCap,
		"regex_cache", cfg.RegexCacheSize)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prometheusMetrics := metrics.NewMetrics()
	overrideManager := rules.NewOverrideManagerWithMetrics(logger, prometheusMetrics)

	engine, err := analyzer.New(cfg.Platform, logger,
		analyzer.WithOverrides(overrideManager),
		analyzer.WithMetrics(prometheusMetrics),
		analyzer.WithRegexCacheSize(cfg.RegexCacheSize))
	if err != nil {
		return err
	}

	repo := rules.NewRepository(cfg.RulesPath, logger)
	var loader *rules.Loader
	if dirLoader, ok := repo.(*rules.Loader); ok && cfg.HotReload {
		loader = rules.NewLoader(dirLoader.Source(), true, cfg.DebounceMs, logger)
		repo = loader
	}

	// a failed load already left an empty rule set installed
	_ = engine.Reload(repo)

	memoryStore := store.NewMemoryStore(cfg.MaxResults, cfg.DedupeCap)
	logger.Info("Memory store initialized", "max_results", cfg.MaxResults, "dedupe_cap", cfg.DedupeCap)

	var nc *nats.Conn
	if cfg.NatsEnabled() {
		nc, err = nats.Connect(cfg.NatsURL,
			nats.Name(logging.ServiceName),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				prometheusMetrics.SetNatsConnected(false)
				if err != nil {
					logger.Warn("NATS disconnected", "error", err)
				}
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				prometheusMetrics.SetNatsConnected(true)
				logger.Info("NATS reconnected")
			}))
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			return err
		}
		defer nc.Close()
		logger.Info("Connected to NATS")
	} else {
		logger.Info("NATS disabled")
	}

	httpAPI := api.NewHTTPAPI(engine, repo, memoryStore, prometheusMetrics, nc, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpAPI,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down analyzer service...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
			return err
		}
		return nil
	})

	if nc != nil {
		subscriber := analyzerNats.NewSubscriber(nc, cfg.NatsQueue, engine, memoryStore, prometheusMetrics, logger)
		g.Go(func() error {
			logger.Info("Starting NATS subscriber")
			return subscriber.Subscribe(gctx)
		})
	}

	if loader != nil {
		updates := loader.Subscribe()
		loader.OnReloadFailure(engine.LoadFailed)
		if err := loader.WatchForChanges(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-updates:
					snapshot := loader.GetSnapshot()
					engine.Install(snapshot)
					logger.Info("Rule set swapped", "rules", snapshot.Len(), "version", snapshot.Version)
				}
			}
		})
	}

	logger.Info("Analyzer service started successfully")
	err = g.Wait()
	logger.Info("Analyzer service stopped")
	return err
}
