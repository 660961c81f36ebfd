package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/tylooio/tyloo/internal/config"
	"github.com/tylooio/tyloo/repository"
)

// buildRepository constructs the transaction record store named by the
// config. The returned closer releases the backing connection.
func buildRepository(ctx context.Context, cfg *config.Config, handler slog.Handler) (repository.TransactionRepository, func() error, error) {
	switch cfg.Repository.Backend {
	case config.BackendMemory:
		return repository.NewMemory(handler), func() error { return nil }, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Repository.Redis.Addr,
			Password: cfg.Repository.Redis.Password,
			DB:       cfg.Repository.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Repository.Redis.Addr, err)
		}
		repo := repository.NewRedis(client, handler,
			repository.WithRedisKeyPrefix(cfg.Repository.Redis.KeyPrefix))
		return repo, client.Close, nil

	case config.BackendSQLite:
		db, err := sql.Open("sqlite3", cfg.Repository.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite database %s: %w", cfg.Repository.SQLite.Path, err)
		}
		repo, err := repository.NewSQLite(ctx, db, handler)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown repository backend: %s", cfg.Repository.Backend)
	}
}

// loadConfig reads the --config flag, falling back to defaults when unset.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.NewConfig(path)
}
