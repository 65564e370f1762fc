package main

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/plextask/keygate"
	"github.com/plextask/keygate/internal/config"
	"github.com/plextask/keygate/notify"
	"github.com/plextask/keygate/storage/memory"
	"github.com/plextask/keygate/storage/mongodb"
	"github.com/plextask/keygate/storage/postgres"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}

func openRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.Addr
	var mr *miniredis.Miniredis
	if cfg.Embedded {
		var err error
		if mr, err = miniredis.Run(); err != nil {
			return nil, nil, fmt.Errorf("embedded redis: %w", err)
		}
		addr = mr.Addr()
		logger.Warn("using embedded redis; pending codes are lost on restart", zap.String("addr", addr))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	closeFn := func() {
		_ = rdb.Close()
		if mr != nil {
			mr.Close()
		}
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, closeFn, nil
}

func openAccounts(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (keygate.AccountStore, func(), error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, cfg.DSN); err != nil {
				return nil, nil, fmt.Errorf("migrate up: %w", err)
			}
		}
		db, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(db), db.Close, nil

	case "mongodb":
		store, client, err := mongodb.Open(ctx, cfg.DSN, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		disconnect := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("mongodb disconnect", zap.Error(err))
			}
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("mongodb indexes: %w", err)
		}
		return store, disconnect, nil

	default:
		logger.Warn("using in-memory account store; accounts are lost on restart")
		return memory.New(), func() {}, nil
	}
}

func newNotifier(cfg config.MailConfig, logger *zap.Logger) (keygate.Notifier, error) {
	if cfg.Driver == "smtp" {
		return notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			SSL:      cfg.SSL,
		}, logger.Named("mail"))
	}
	return notify.NewLogMailer(logger.Named("mail")), nil
}
