package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/FedOAuth/FedOAuth/internal/config"
	"github.com/FedOAuth/FedOAuth/internal/db"
	"github.com/FedOAuth/FedOAuth/internal/logger"
	"github.com/FedOAuth/FedOAuth/internal/redis"
)

type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

// setupInfra opens whatever stores the configuration calls for: the
// database when it backs the transaction/remembered stores or the
// directory backend, redis when it backs the stores.
func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	needDB := cfg.StoreBackend == "postgres"
	for _, name := range cfg.AuthModules {
		if name == "directory" {
			needDB = true
		}
	}

	if needDB {
		sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}
		if err := db.RunKeystoneMigration(ctx, sqlDB); err != nil {
			return nil, err
		}
		logger.Info("database ready", nil)
		infra.DB = &db.DB{DB: sqlDB}
	}

	if cfg.StoreBackend == "redis" {
		redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		logger.Info("redis ready", nil)
		infra.Redis = redisClient
	}

	if cfg.StoreBackend != "postgres" && cfg.StoreBackend != "redis" && cfg.StoreBackend != "memory" {
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}

	return infra, nil
}

func (i *Infra) Close() error {
	if i.DB != nil {
		return i.DB.Close()
	}
	return nil
}
