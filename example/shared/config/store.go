package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AntonStoeckl/library-lending-go/lending"
	"github.com/AntonStoeckl/library-lending-go/lending/fileengine"
	"github.com/AntonStoeckl/library-lending-go/lending/postgresengine"
)

// OpenSnapshotStore builds the configured snapshot store.
// The returned close function releases the database connection, if any, and is never nil.
// For PostgreSQL the snapshot tables are created when missing.
func OpenSnapshotStore(
	ctx context.Context,
	cfg StoreConfig,
	logger *slog.Logger,
) (lending.SnapshotStore, func(), error) {
	noop := func() {}

	switch cfg.Kind {
	case StoreFile:
		store, err := fileengine.NewStore(cfg.Dir, fileengine.WithLogger(logger))
		if err != nil {
			return nil, noop, err
		}

		return store, noop, nil

	case StorePostgres:
		return openPostgresStore(ctx, cfg.Postgres, logger)

	default:
		return nil, noop, fmt.Errorf("%w: unknown store kind %q", ErrInvalidConfig, cfg.Kind)
	}
}

func openPostgresStore(
	ctx context.Context,
	cfg PostgresConfig,
	logger *slog.Logger,
) (lending.SnapshotStore, func(), error) {
	noop := func() {}

	options := []postgresengine.Option{
		postgresengine.WithLogger(logger),
		postgresengine.WithTablePrefix(cfg.TablePrefix),
	}

	var (
		store   *postgresengine.Store
		closeFn = noop
		err     error
	)

	switch cfg.Adapter {
	case AdapterPGX:
		pool, openErr := NewPGXPool(ctx, cfg)
		if openErr != nil {
			return nil, noop, openErr
		}

		closeFn = pool.Close
		store, err = postgresengine.NewStoreFromPGXPool(pool, options...)

	case AdapterSQL:
		db, openErr := OpenSQLDB(ctx, cfg)
		if openErr != nil {
			return nil, noop, openErr
		}

		closeFn = func() { _ = db.Close() }
		store, err = postgresengine.NewStoreFromSQLDB(db, options...)

	case AdapterSQLX:
		db, openErr := OpenSQLX(ctx, cfg)
		if openErr != nil {
			return nil, noop, openErr
		}

		closeFn = func() { _ = db.Close() }
		store, err = postgresengine.NewStoreFromSQLX(db, options...)

	default:
		return nil, noop, fmt.Errorf("%w: unknown postgres adapter %q", ErrInvalidConfig, cfg.Adapter)
	}

	if err != nil {
		closeFn()
		return nil, noop, err
	}

	if err := store.EnsureSchema(ctx); err != nil {
		closeFn()
		return nil, noop, err
	}

	return store, closeFn, nil
}
