// Package main is the entrypoint for the Noosphera API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/noosphera/internal/api"
	"github.com/kiranshivaraju/noosphera/internal/api/handler"
	mw "github.com/kiranshivaraju/noosphera/internal/api/middleware"
	"github.com/kiranshivaraju/noosphera/internal/api/response"
	"github.com/kiranshivaraju/noosphera/internal/auth"
	"github.com/kiranshivaraju/noosphera/internal/cache"
	"github.com/kiranshivaraju/noosphera/internal/config"
	"github.com/kiranshivaraju/noosphera/internal/credential"
	"github.com/kiranshivaraju/noosphera/internal/logging"
	"github.com/kiranshivaraju/noosphera/internal/metrics"
	"github.com/kiranshivaraju/noosphera/internal/store"
	"github.com/kiranshivaraju/noosphera/internal/tenant"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.SetDefault(logging.New("info", os.Stdout))

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
	slog.SetDefault(logging.New(cfg.Server.LogLevel, os.Stdout))
	logConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Run migrations with the admin role
	if err := store.RunMigrations(cfg.Database.AdminURL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 3. Connect to database with the app role; namespaces are provisioned by tenantctl
	pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 4. Optional Redis for rate limiting
	var counter cache.Counter
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		counter = redisCache
		slog.Info("redis connected")
	} else {
		slog.Info("REDIS_URL not set, rate limiting disabled")
	}

	// 5. Credential hashing pool
	hasher, err := credential.NewHasher(credential.HasherConfig{
		Cost:     cfg.Auth.HashCost,
		Workers:  cfg.Auth.HashWorkers,
		MaxQueue: hashQueue(cfg.Auth.HashQueue),
	})
	if err != nil {
		return fmt.Errorf("create hasher: %w", err)
	}

	// 6. Registries and gate
	pgStore := store.NewPostgresStore(pool)
	keys := tenant.NewKeys(pgStore, hasher)
	gate := auth.NewGate(keys, hasher, cfg.Auth.TouchTimeout)
	defer gate.Wait()

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(gate, cfg.Auth.APIKeyHeader),
		RateLimit: mw.NewRateLimit(counter, cfg.Auth.RateLimitPerMinute),

		HealthHandler:  healthHandler(pgStore, counter),
		MetricsHandler: metrics.Handler(),
		WhoAmIHandler:  handler.NewWhoAmIHandler(pgStore.Namespaces()),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// logConfig records the non-secret settings the process started with.
func logConfig(cfg *config.Config) {
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"auth_header", cfg.Auth.APIKeyHeader,
		"rate_limit_per_minute", cfg.Auth.RateLimitPerMinute,
		"redis_enabled", cfg.Redis.URL != "",
	)
}

// hashQueue converts the configured queue length to the hasher's convention,
// where zero selects the default and a negative value disables waiting.
func hashQueue(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity. A nil cache is
// reported as disabled.
func healthHandler(db pinger, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if c == nil {
			checks["cache"] = "disabled"
		} else if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] == "degraded" || checks["cache"] == "degraded"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
