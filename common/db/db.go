package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weftlabs/weft/common/config"
	"github.com/weftlabs/weft/common/logger"
)

const (
	connectTimeout = 5 * time.Second
	probeTimeout   = 3 * time.Second
)

// DB wraps the pgx pool every repository runs on.
type DB struct {
	*pgxpool.Pool
	log *logger.Logger
}

// New opens a pool against the configured Postgres and verifies it
// answers before handing it out.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database connected",
		"host", cfg.Database.Host,
		"db", cfg.Database.Database,
		"max_conns", cfg.Database.MaxConns)

	return &DB{Pool: pool, log: log}, nil
}

func poolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxLifetime
	poolCfg.MaxConnIdleTime = cfg.Database.MaxIdleTime
	return poolCfg, nil
}

// WithConnection acquires a pooled connection, runs fn against it, and
// releases the connection on every exit path. Repositories route all
// statements through this so acquisition and release stay paired.
func (db *DB) WithConnection(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	return db.Pool.AcquireFunc(ctx, fn)
}

// Close drains the pool.
func (db *DB) Close() {
	db.log.Info("closing database connection pool")
	db.Pool.Close()
}

// Health verifies the database still answers.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return db.Pool.Ping(ctx)
}
