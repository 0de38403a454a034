// Package store owns the Postgres connection pool and schema migrations
// shared by every component that touches persisted state (§6 "Persisted
// state layout"). It replaces the teacher's ent.Client wrapper with a raw
// pgx/v5 pool — this pack's copy of the teacher's ent/ directory contains
// only hand-written schema definitions, not a generated client, so an
// ORM surface would have to be fabricated rather than used (see
// DESIGN.md).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stationfm/segmentpipe/pkg/config"
)

// Open builds a connection pool against cfg, grounded in the teacher's
// pkg/database.NewClient: build a DSN, configure pool limits, and verify
// connectivity with a ping before handing the pool back to the caller.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
