// SPDX-License-Identifier: MIT

// Command cloudd runs the cloud session core daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/openglass/cloudcore/internal/api"
	"github.com/openglass/cloudcore/internal/auth"
	"github.com/openglass/cloudcore/internal/cache"
	"github.com/openglass/cloudcore/internal/config"
	"github.com/openglass/cloudcore/internal/log"
	"github.com/openglass/cloudcore/internal/session"
	"github.com/openglass/cloudcore/internal/storage"
	"github.com/openglass/cloudcore/internal/store"
	"github.com/openglass/cloudcore/internal/stt"
	"github.com/openglass/cloudcore/internal/telemetry"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownGrace = 15 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until config is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "cloudcore",
		Version: version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectiveConfigPath := strings.TrimSpace(*configPath)
	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting cloudd")

	traces, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled: cfg.TracingEnabled,
		Service: cfg.TracingService,
		Version: cfg.Version,
	})
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "tracing.init_failed").Msg("failed to init tracing")
	}
	if cfg.TracingEnabled {
		logger.Info().Str("service", cfg.TracingService).Msg("→ Tracing: enabled")
	}

	// -------------------------------------------------------------------------
	// Stores and collaborators
	// -------------------------------------------------------------------------
	st, err := store.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "store.open_failed").Msg("failed to open store")
	}
	defer func() { _ = st.Close() }()

	gallery, err := store.OpenSqliteGallery(cfg.GalleryPath)
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "gallery.open_failed").Msg("failed to open gallery")
	}
	defer func() { _ = gallery.Close() }()

	var installCache cache.Cache
	if cfg.RedisAddr != "" {
		redis, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log.WithComponent("cache"))
		if err != nil {
			logger.Fatal().Err(err).Str(log.FieldEvent, "redis.connect_failed").Msg("failed to connect to redis")
		}
		defer func() { _ = redis.Close() }()
		installCache = redis
		logger.Info().Str("addr", cfg.RedisAddr).Msg("→ Install cache: redis")
	} else {
		installCache = cache.NewMemoryCache(time.Minute)
		logger.Info().Msg("→ Install cache: in-memory")
	}

	var objects storage.ObjectStore
	if cfg.MediaDir != "" {
		fsStore, err := storage.NewFSStore(cfg.MediaDir, cfg.MediaBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Str(log.FieldEvent, "media.open_failed").Msg("failed to open media dir")
		}
		objects = fsStore
		logger.Info().Str("dir", cfg.MediaDir).Msg("→ Media store: filesystem")
	} else {
		objects = storage.NewMemStore(cfg.MediaBaseURL)
		logger.Warn().Msg("→ Media store: in-memory (uploads are not persisted)")
	}

	verifier := &auth.StoreVerifier{Store: st}

	registry := session.NewRegistry(cfg, session.Deps{
		Store:        st,
		InstallState: cache.NewInstallState(installCache, st),
		SttProvider:  stt.NoopProvider{},
	})

	server := api.New(cfg, api.Deps{
		Registry: registry,
		Store:    st,
		Gallery:  gallery,
		Objects:  objects,
		Verifier: verifier,
	})

	// -------------------------------------------------------------------------
	// Serve
	// -------------------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	apiSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("→ Metrics: enabled")
	}

	// Config watcher is best-effort: startup must not fail without it.
	if effectiveConfigPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, effectiveConfigPath, version, func(next config.AppConfig) {
				log.Configure(log.Config{
					Level:   next.LogLevel,
					Service: next.LogService,
					Version: next.Version,
				})
				logger.Info().Str(log.FieldEvent, "config.reloaded").Str("log_level", next.LogLevel).Send()
			})
			if err != nil {
				logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_failed").Send()
			}
			return nil
		})
	}

	// Shutdown sequencing: stop accepting, drain sessions, stop metrics.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "shutdown.api").Send()
		}
		if err := registry.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "shutdown.sessions").Send()
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Str(log.FieldEvent, "shutdown.metrics").Send()
			}
		}
		if err := traces.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "shutdown.tracing").Send()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("daemon failed")
	}
	logger.Info().Msg("server exiting")
}
