package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	oauth "github.com/giantswarm/oauth-grants"
	"github.com/giantswarm/oauth-grants/instrumentation"
	"github.com/giantswarm/oauth-grants/storage/memory"
	"github.com/giantswarm/oauth-grants/storage/sqlstore"
	"github.com/giantswarm/oauth-grants/storage/valkey"
)

// Storage backend names accepted by --store
const (
	storeMemory   = "memory"
	storeValkey   = "valkey"
	storeSQLite   = "sqlite"
	storePostgres = "postgres"
)

type backendOptions struct {
	Kind            string
	DSN             string
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
	CleanupInterval time.Duration
	Instrumentation *instrumentation.Instrumentation
}

// openBackend opens the configured store. The returned func releases it.
func openBackend(ctx context.Context, opts backendOptions, logger *slog.Logger) (oauth.Backend, func(), error) {
	switch opts.Kind {
	case storeMemory, "":
		store := memory.NewWithInterval(opts.CleanupInterval)
		store.SetLogger(logger)
		if opts.Instrumentation != nil {
			store.SetInstrumentation(opts.Instrumentation)
		}
		logger.Warn("Using in-memory storage; state is lost on restart")
		return store, store.Stop, nil

	case storeValkey:
		store, err := valkey.New(valkey.Config{
			Address:   opts.ValkeyAddress,
			Password:  opts.ValkeyPassword,
			DB:        opts.ValkeyDB,
			KeyPrefix: opts.ValkeyKeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case storeSQLite, storePostgres:
		return openSQLStore(ctx, opts, logger)

	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory, valkey, sqlite or postgres)", opts.Kind)
	}
}

func openSQLStore(ctx context.Context, opts backendOptions, logger *slog.Logger) (oauth.Backend, func(), error) {
	if opts.DSN == "" {
		return nil, nil, fmt.Errorf("--dsn is required for the %s store", opts.Kind)
	}

	driver := sqlstore.DriverPostgres
	if opts.Kind == storeSQLite {
		driver = sqlstore.DriverSQLite
	}

	db, err := sqlstore.Open(driver, opts.DSN)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlstore.New(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := store.CreateSchema(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	store.StartCleanup(opts.CleanupInterval)

	logger.Info("Connected to SQL storage", "driver", driver)
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close SQL storage", "error", err)
		}
	}, nil
}
