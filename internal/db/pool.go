package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName = "feesched"
	minPoolConns    = 4
)

// NewPool creates a pgxpool shared by the reference loader and PGSource.
// statement_timeout is off because COPY of a full year and the reference
// reads that follow it run longer than a typical server default.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	params := cfg.ConnConfig.RuntimeParams
	params["statement_timeout"] = "0"
	if params["application_name"] == "" {
		params["application_name"] = applicationName
	}

	// The loader holds one connection per COPY transaction while PGSource
	// may be reading another year.
	if cfg.MaxConns < minPoolConns {
		cfg.MaxConns = minPoolConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
