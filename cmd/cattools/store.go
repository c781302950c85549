package main

import (
	"context"
	"fmt"

	"github.com/LopezGroup-ICIQ/cattools"
	"github.com/LopezGroup-ICIQ/cattools/sqlstore"
)

// recordStore is a store the command can also import records into.
type recordStore interface {
	cattools.Store
	Put(ctx context.Context, record *cattools.ExecutionRecord) error
	AddToCollection(ctx context.Context, collection string, keys ...string) error
	Close() error
}

type fileStore struct{ *cattools.FileStore }

func (fileStore) Close() error { return nil }

type memoryStore struct{ *cattools.MemoryStore }

func (memoryStore) Close() error { return nil }

func openStore(ctx context.Context, cfg cattools.StoreConfig) (recordStore, error) {
	switch cfg.Driver {
	case cattools.DriverFile:
		store, err := cattools.NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return fileStore{store}, nil
	case cattools.DriverMemory:
		return memoryStore{cattools.NewMemoryStore()}, nil
	case cattools.DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		return openSQL(ctx, sqlstore.Config{Dialect: sqlstore.SQLite, DSN: dsn})
	case cattools.DriverPostgres:
		return openSQL(ctx, sqlstore.Config{
			Dialect:      sqlstore.Postgres,
			DSN:          cfg.DSN,
			PingRetries:  3,
			MaxOpenConns: 4,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openSQL(ctx context.Context, cfg sqlstore.Config) (recordStore, error) {
	store, err := sqlstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}
