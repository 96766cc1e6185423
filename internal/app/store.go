package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mobilsoft/backoffice/internal/observability"
	"github.com/mobilsoft/backoffice/internal/platform/db"
	"github.com/mobilsoft/backoffice/internal/recordstore"
	"github.com/mobilsoft/backoffice/internal/recordstore/cached"
	"github.com/mobilsoft/backoffice/internal/recordstore/memstore"
	"github.com/mobilsoft/backoffice/internal/recordstore/odoorpc"
	"github.com/mobilsoft/backoffice/internal/recordstore/sqlstore"
)

// StoreParams groups what BuildStore needs besides the configuration.
type StoreParams struct {
	Config  *Config
	Redis   *redis.Client
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// BuildStore opens the backend selected by STORE_DRIVER and layers metrics and
// the Redis read cache on top. The returned func releases the backend.
func BuildStore(ctx context.Context, p StoreParams) (recordstore.Store, func(), error) {
	backend, release, err := openBackend(ctx, p.Config)
	if err != nil {
		return nil, nil, err
	}
	var store recordstore.Store = observability.InstrumentStore(backend, p.Metrics, p.Logger)
	if p.Redis != nil {
		store = cached.New(store, p.Redis, p.Config.CacheTTL, p.Logger)
	}
	p.Logger.Info("record store ready", slog.String("driver", p.Config.StoreDriver), slog.Bool("cached", p.Redis != nil))
	return store, release, nil
}

func openBackend(ctx context.Context, cfg *Config) (recordstore.Store, func(), error) {
	switch cfg.StoreDriver {
	case DriverMemory:
		return memstore.New(), func() {}, nil
	case DriverOdoo:
		client := odoorpc.New(odoorpc.Config{
			URL:      cfg.OdooURL,
			Database: cfg.OdooDatabase,
			Login:    cfg.OdooLogin,
			Password: cfg.OdooPassword,
			Timeout:  cfg.OdooTimeout,
			Context:  map[string]any{"lang": cfg.OdooLang, "tz": cfg.Timezone},
		})
		return client, func() {}, nil
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		store := sqlstore.NewPostgres(pool, sqlstore.DefaultCatalog())
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		return store, pool.Close, nil
	case DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store := sqlstore.NewSQLite(conn, sqlstore.DefaultCatalog())
		if err := store.Migrate(ctx); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("migrate sqlite store: %w", err)
		}
		return store, func() { _ = conn.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
