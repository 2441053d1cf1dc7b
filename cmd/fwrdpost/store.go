package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pders01/fwrdpost/internal/config"
	"github.com/pders01/fwrdpost/internal/host"
	"github.com/pders01/fwrdpost/internal/session"
	"github.com/pders01/fwrdpost/internal/storage"
	"github.com/pders01/fwrdpost/internal/storage/postgres"
	"github.com/pders01/fwrdpost/internal/supervisor"
)

// taskStore is everything serve and import need from a store.
type taskStore interface {
	supervisor.TaskSource
	session.Store
	host.WatermarkStore
	storage.Writer
	Close() error
}

func openStore(ctx context.Context, cfg *config.Config) (taskStore, error) {
	switch cfg.Database.Driver {
	case "postgres":
		st, err := postgres.Open(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return storage.NewStoreWithTimeout(cfg.Database.Path, cfg.Database.Timeout)
	}
}
