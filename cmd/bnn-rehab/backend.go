package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bnn-rehab/common/database"
	rediscommon "bnn-rehab/common/redis"
	"bnn-rehab/internal/config"
	"bnn-rehab/internal/remotelog"

	"go.uber.org/zap"
)

// backend holds the remote log and the connections opened for it.
// Connections are opened on first use and closed together.
type backend struct {
	cfg    *config.Config
	logger *zap.Logger

	log   remotelog.Log
	redis *rediscommon.Client
	db    *sql.DB
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{cfg: cfg, logger: logger}

	switch cfg.RemoteLog.Backend {
	case config.BackendMemory:
		logger.Warn("Using in-process remote log; records are lost on restart")
		b.log = remotelog.NewMemoryLog()
	case config.BackendRedis:
		client, err := b.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		b.log = remotelog.NewRedisLog(client, cfg.RemoteLog.KeyPrefix, logger)
	case config.BackendPostgres:
		db, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		pg := remotelog.NewPostgresLog(db, remotelog.NewPQNotifierFactory(cfg.Database.DSN(), 10*time.Second, time.Minute), logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.log = pg
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.RemoteLog.Backend)
	}

	logger.Info("Remote log ready",
		zap.String("backend", cfg.RemoteLog.Backend),
		zap.String("collection", cfg.RemoteLog.Collection),
	)
	return b, nil
}

func (b *backend) redisClient(ctx context.Context) (*rediscommon.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	client, err := rediscommon.Connect(ctx, &b.cfg.Redis)
	if err != nil {
		return nil, err
	}
	b.redis = client
	return client, nil
}

func (b *backend) postgres(ctx context.Context) (*sql.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	db, err := database.Open(ctx, &b.cfg.Database)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Connected to database", zap.String("dsn", b.cfg.Database.Redacted()))
	b.db = db
	return db, nil
}

func (b *backend) Close() {
	if m, ok := b.log.(*remotelog.MemoryLog); ok {
		_ = m.Close()
	}
	if err := rediscommon.Close(b.redis); err != nil {
		b.logger.Warn("Failed to close redis", zap.Error(err))
	}
	if err := database.Close(b.db); err != nil {
		b.logger.Warn("Failed to close database", zap.Error(err))
	}
}
