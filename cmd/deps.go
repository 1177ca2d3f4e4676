package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pelusa-v/pelusa-chat/internal/config"
	"github.com/pelusa-v/pelusa-chat/internal/presence"
	"github.com/pelusa-v/pelusa-chat/internal/store"
)

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.NewSQLiteStore(cfg.SQLitePath)
	case "mongo":
		return store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// openRegistry returns the presence registry and a close func.
func openRegistry(ctx context.Context, cfg *config.Config, log zerolog.Logger) (presence.Registry, func() error, error) {
	switch strings.ToLower(cfg.PresenceDriver) {
	case "memory":
		return presence.NewMemoryRegistry(), func() error { return nil }, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Str("key", cfg.RedisKey).Msg("redis presence registry")
		return presence.NewRedisRegistry(rdb, cfg.RedisKey), rdb.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown presence driver %q", cfg.PresenceDriver)
}
