package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/helmsman/internal/auth"
	"github.com/af-corp/helmsman/internal/classifier"
	"github.com/af-corp/helmsman/internal/config"
	"github.com/af-corp/helmsman/internal/cost"
	"github.com/af-corp/helmsman/internal/feedback"
	"github.com/af-corp/helmsman/internal/httpapi"
	"github.com/af-corp/helmsman/internal/ratelimit"
	"github.com/af-corp/helmsman/internal/registry"
	"github.com/af-corp/helmsman/internal/router"
	"github.com/af-corp/helmsman/internal/telemetry"
	"github.com/af-corp/helmsman/internal/tracker"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logLevel := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	logLevel.Set(parseLogLevel(cfg.Telemetry.LogLevel))

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (routerd will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (key cache and rate limiting disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	// Model catalog
	catalog := registry.New(registry.NewFileSource(cfg.Registry.CatalogPath), logger)
	refreshCtx, cancelRefresh := context.WithTimeout(context.Background(), cfg.Registry.RefreshTimeout)
	_, err = catalog.Refresh(refreshCtx)
	cancelRefresh()
	if err != nil {
		logger.Error("initial catalog load failed", "error", err, "path", cfg.Registry.CatalogPath)
		os.Exit(1)
	}
	metrics.RecordRegistryRefresh(true, len(catalog.Snapshot().Models))

	// Background catalog refresh
	refreshDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Registry.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				refreshCatalog(catalog, metrics, cfg.Registry.RefreshTimeout, logger)
			case <-refreshDone:
				return
			}
		}
	}()
	defer close(refreshDone)

	// Config hot reload also picks up catalog edits: the watcher covers the
	// whole config directory.
	loader.OnReload(func() {
		logLevel.Set(parseLogLevel(loader.Config().Telemetry.LogLevel))
		refreshCatalog(catalog, metrics, cfg.Registry.RefreshTimeout, logger)
		logger.Info("routing weight or cache changes take effect on restart")
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// Core engine
	classRequirements, err := cfg.Routing.ParsedClassRequirements()
	if err != nil {
		logger.Error("invalid class requirements", "error", err)
		os.Exit(1)
	}

	trk := tracker.New(cfg.Tracker.EWMAAlpha, cfg.Tracker.ErrorWindow)
	estimator := cost.NewEstimator(cost.CharEstimator{CharsPerToken: cfg.Cost.CharsPerToken}, cfg.Cost.OutputRatio)
	cls := classifier.New(cfg.Classifier.MaxChars)

	rt := router.New(router.Config{
		Weights: router.Weights{
			Perf:       cfg.Routing.WeightPerf,
			Cost:       cfg.Routing.WeightCost,
			Capability: cfg.Routing.WeightCapability,
		},
		CacheTTL:          cfg.Routing.CacheTTL,
		CacheMaxEntries:   cfg.Routing.CacheMaxEntries,
		MaxFallbacks:      cfg.Routing.MaxFallbacks,
		ClassRequirements: classRequirements,
	}, catalog, trk, estimator, cls, logger)

	emitter := telemetry.NewEmitter(&telemetry.SlogSink{Logger: logger}, metrics, cfg.Telemetry.EmitterBuffer)
	defer emitter.Close()

	recorder := feedback.NewRecorder(catalog, trk, emitter, logger)

	// Service surface
	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	limiter := ratelimit.NewLimiter(rdb)
	budget := ratelimit.NewBudgetTracker(rdb)
	handler := httpapi.NewHandler(rt, recorder, catalog, metrics, emitter, budget)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/helmsman/v1/health", healthHandler)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		if cfg.RateLimit.Enabled {
			r.Use(ratelimit.Middleware(limiter, budget, metrics, int(cfg.RateLimit.RequestsPerMinute), cfg.RateLimit.Window))
		}
		r.Post("/v1/route", handler.Route)
		r.Post("/v1/feedback", handler.Feedback)
		r.Post("/v1/registry/refresh", handler.RefreshRegistry)
		r.Get("/v1/models", handler.ListModels)
	})

	// Prometheus metrics on its own listener
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
		logger.Info("metrics server starting", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("routerd starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("routerd stopped")
}

func refreshCatalog(catalog *registry.Registry, metrics *telemetry.Metrics, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := catalog.Refresh(ctx); err != nil {
		metrics.RecordRegistryRefresh(false, 0)
		logger.Error("catalog refresh failed, keeping previous snapshot", "error", err)
		return
	}
	metrics.RecordRegistryRefresh(true, len(catalog.Snapshot().Models))
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type contextKey string

const requestIDKey contextKey = "request_id"

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
