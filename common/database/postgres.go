package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bnn-rehab/common/config"

	_ "github.com/lib/pq"
)

const defaultConnectTimeout = 5 * time.Second

// Open opens the lib/pq pool and waits for the first successful ping,
// bounded by cfg.ConnectTimeout.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Redacted(), err)
	}
	applyPool(db, cfg)

	if err := ping(ctx, db, cfg.ConnectTimeout); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database %s: %w", cfg.Redacted(), err)
	}
	return db, nil
}

// applyPool sizes the pool. Idle connections never outnumber open ones.
func applyPool(db *sql.DB, cfg *config.DatabaseConfig) {
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	idle := cfg.MaxIdle
	if cfg.MaxConns > 0 && idle > cfg.MaxConns {
		idle = cfg.MaxConns
	}
	if idle > 0 {
		db.SetMaxIdleConns(idle)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func ping(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.PingContext(ctx)
}

// Close closes db when non-nil.
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
