// tenantctl administers tenants and their API keys. Every invocation applies
// pending migrations before running its command.
//
// Usage:
//
//	tenantctl <command> [flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/noosphera/internal/config"
	"github.com/kiranshivaraju/noosphera/internal/credential"
	"github.com/kiranshivaraju/noosphera/internal/logging"
	"github.com/kiranshivaraju/noosphera/internal/store"
	"github.com/kiranshivaraju/noosphera/internal/tenant"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	act, err := parse(args, out)
	if err != nil {
		return err
	}
	if act == nil {
		return nil
	}

	a, cleanup, err := connect(ctx, out)
	if err != nil {
		return err
	}
	defer cleanup()

	return act(ctx, a)
}

// connect loads configuration, applies migrations, and builds the
// registries over the admin and application pools.
func connect(ctx context.Context, out io.Writer) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logging.New(cfg.Server.LogLevel, os.Stderr))

	if err := store.RunMigrations(cfg.Database.AdminURL, cfg.Database.MigrationsDir); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	adminPool, err := store.Connect(ctx, cfg.Database.AdminURL, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect admin database: %w", err)
	}
	pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database)
	if err != nil {
		adminPool.Close()
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	cleanup := func() {
		pool.Close()
		adminPool.Close()
	}

	hasher, err := credential.NewHasher(credential.HasherConfig{
		Cost:    cfg.Auth.HashCost,
		Workers: 1,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create hasher: %w", err)
	}

	pgStore := store.NewPostgresStore(pool)
	return &app{
		registry: tenant.NewRegistry(pgStore, store.NewProvisioner(adminPool)),
		keys:     tenant.NewKeys(pgStore, hasher),
		out:      out,
	}, cleanup, nil
}
