// Package postgres opens the two database handles the stores use: a pgx pool
// for the domain tables and a database/sql handle for the audit tables and
// migrations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"simkyc/internal/platform/config"
)

// DB bundles both handles over the same database.
type DB struct {
	Pool *pgxpool.Pool
	SQL  *sql.DB
}

// Open connects and pings both handles.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgx pool: %w", err)
	}

	sqlDB, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	if err := sqlDB.PingContext(ctx); err != nil {
		pool.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sql db: %w", err)
	}
	return &DB{Pool: pool, SQL: sqlDB}, nil
}

// Health pings the pool.
func (d *DB) Health(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

func (d *DB) Close() {
	d.Pool.Close()
	_ = d.SQL.Close()
}
