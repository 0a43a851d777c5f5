package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/teamtask/internal/cache"
	"github.com/roach88/teamtask/internal/config"
	"github.com/roach88/teamtask/internal/eventlog"
	"github.com/roach88/teamtask/internal/store"
)

// openStore opens the configured database, creating it when missing.
func openStore(cfg *config.Config) (*store.Store, error) {
	slog.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// closeStore closes st, logging any error.
func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// openCache builds the counter store. An unreachable Redis is not fatal:
// analytics degrade to defaults until it comes back.
func openCache(ctx context.Context, cfg *config.Config) cache.Store {
	if !cfg.Redis.Enabled {
		slog.Info("cache disabled, analytics will report defaults")
		return cache.Disabled{}
	}

	rs := cache.NewRedisStore(cache.RedisOptions{
		Host:           cfg.Redis.Host,
		Port:           cfg.Redis.Port,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		DialTimeout:    cfg.Redis.DialTimeout,
		CommandTimeout: cfg.Redis.CommandTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		slog.Warn("cache unreachable, analytics degraded",
			"addr", cfg.Redis.Host,
			"port", cfg.Redis.Port,
			"error", err)
	} else {
		slog.Info("cache connected", "addr", cfg.Redis.Host, "port", cfg.Redis.Port)
	}
	return rs
}

// openArchive returns the event sink: the SQLite event log, mirrored to
// MongoDB when enabled. The returned func releases the Mongo client.
func openArchive(ctx context.Context, cfg *config.Config, st *store.Store) (eventlog.Sink, func(), error) {
	if !cfg.Mongo.Enabled {
		return st, func() {}, nil
	}

	client, err := eventlog.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to connect to event archive", err)
	}
	slog.Info("event archive connected", "database", cfg.Mongo.Database)

	sink := eventlog.Multi{st, eventlog.NewMongoSink(client.Database(cfg.Mongo.Database))}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.ConnectTimeout)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			slog.Error("error closing event archive", "error", err)
		}
	}
	return sink, release, nil
}
