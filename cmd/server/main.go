// Package main is the entrypoint for the ReviewRelay API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kiranshivaraju/reviewrelay/internal/ai"
	"github.com/kiranshivaraju/reviewrelay/internal/api"
	"github.com/kiranshivaraju/reviewrelay/internal/api/handler"
	mw "github.com/kiranshivaraju/reviewrelay/internal/api/middleware"
	"github.com/kiranshivaraju/reviewrelay/internal/api/response"
	"github.com/kiranshivaraju/reviewrelay/internal/archive"
	"github.com/kiranshivaraju/reviewrelay/internal/cache"
	"github.com/kiranshivaraju/reviewrelay/internal/config"
	"github.com/kiranshivaraju/reviewrelay/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"store_driver", cfg.Database.Driver,
		"text_model", cfg.AI.Text.Model,
		"vision_model", cfg.AI.Vision.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the review store and apply migrations
	reviews, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()
	slog.Info("review store ready", "driver", cfg.Database.Driver)

	// 3. Cache (optional)
	c, closeCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	// 4. Prompts and model gateways
	prompts, err := ai.LoadPrompts(cfg.AI.PromptsFile)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	gateways := ai.NewGateways(cfg.AI)
	if cfg.AI.Text.APIKey == "" || cfg.AI.Vision.APIKey == "" {
		slog.Warn("model API key missing; affected requests will return an error answer",
			"text_key_set", cfg.AI.Text.APIKey != "",
			"vision_key_set", cfg.AI.Vision.APIKey != "",
		)
	}

	svc := ai.NewService(gateways, c, prompts, ai.Options{
		Timeout:     cfg.AI.InferenceTimeout,
		Temperature: cfg.AI.Temperature,
		MaxRetries:  cfg.AI.MaxRetries,
		CacheTTL:    cfg.AI.AnswerCacheTTL,
	})

	// 5. Image archive (optional)
	var images handler.ImageArchive
	if cfg.Minio.Enabled() {
		a, err := archive.New(ctx, cfg.Minio)
		if err != nil {
			return fmt.Errorf("create image archive: %w", err)
		}
		images = a
		slog.Info("image archive enabled", "endpoint", cfg.Minio.Endpoint, "bucket", cfg.Minio.Bucket)
	}

	// 6. Build router with dependencies
	auth := mw.NewAuth(cfg.Server.APIKeyHash)
	if !auth.Enabled() {
		slog.Warn("RELAY_API_KEY_HASH not set; API is unauthenticated")
	}

	deps := api.Dependencies{
		Auth:        auth,
		RateLimit:   mw.NewRateLimit(c, cfg.Server.RateLimitPerMin),
		CORSOrigins: cfg.Server.CORSAllowedOrigins,

		HealthHandler:       healthHandler(reviews, c),
		AskHandler:          handler.NewAskHandler(svc),
		AnalyzeImageHandler: handler.NewAnalyzeImageHandler(svc, images, cfg.Server.MaxImageBytes),
		AddReviewHandler:    handler.NewAddReviewHandler(reviews),
		ListReviewsHandler:  handler.NewListReviewsHandler(reviews),
		DeleteReviewHandler: handler.NewDeleteReviewHandler(reviews),
		TagGraphHandler:     handler.NewTagGraphHandler(reviews),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Two sequential model calls must fit inside one response.
		WriteTimeout: 2*cfg.AI.InferenceTimeout*time.Duration(cfg.AI.MaxRetries+1) + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore opens the configured backend and applies its migrations.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := store.RunMigrations(cfg.URL); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return store.NewPostgresStore(pool), pool.Close, nil

	case config.DriverSQLite:
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := store.RunSQLiteMigrations(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return store.NewSQLiteStore(db), func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// openCache connects to Redis when configured. Without a URL it returns a
// NopCache: no answer caching and no rate limiting.
func openCache(ctx context.Context, cfg config.RedisConfig) (cache.Cache, func(), error) {
	if cfg.URL == "" {
		slog.Warn("REDIS_URL not set; answer caching and rate limiting disabled")
		return cache.NopCache{}, func() {}, nil
	}

	redisCache, err := cache.NewRedisCache(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return redisCache, func() { redisCache.Close() }, nil
}

// pinger is the slice of store.Store the health check needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(s pinger, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			slog.Warn("health: database ping failed", "error", err)
			checks["database"] = "degraded"
		}
		if _, ok := c.(cache.NopCache); ok {
			checks["cache"] = "disabled"
		} else if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health: cache ping failed", "error", err)
			checks["cache"] = "degraded"
		}

		var degraded []string
		for name, status := range checks {
			if status == "degraded" {
				degraded = append(degraded, name)
			}
		}
		if len(degraded) > 0 {
			sort.Strings(degraded)
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"Degraded services: "+strings.Join(degraded, ", "))
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
