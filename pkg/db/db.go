// Package db opens pgx connection pools with retry and exposes hook
// adapters for health checks and shutdown. The Postgres session store
// is the main consumer.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrFailedToParseConfig = errors.New("db: failed to parse connection configuration")
	ErrConnectionFailed    = errors.New("db: failed to open connection")
	ErrHealthcheckFailed   = errors.New("db: healthcheck failed")
)

// Config controls pool sizing and connection retry.
type Config struct {
	ConnectionString string
	MaxConns         int32
	MinConns         int32
	MaxConnIdleTime  time.Duration
	MaxConnLifetime  time.Duration
	RetryAttempts    int
	RetryInterval    time.Duration
}

// DefaultConfig returns sensible pool defaults for the given
// connection string.
func DefaultConfig(connString string) Config {
	return Config{
		ConnectionString: connString,
		MaxConns:         10,
		MinConns:         2,
		MaxConnIdleTime:  10 * time.Minute,
		MaxConnLifetime:  30 * time.Minute,
		RetryAttempts:    3,
		RetryInterval:    5 * time.Second,
	}
}

// Connect establishes a PostgreSQL connection pool with linear-backoff
// retry, verifying connectivity with a ping before returning.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	connConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseConfig, err)
	}
	if cfg.MaxConns > 0 {
		connConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		connConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnIdleTime > 0 {
		connConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.MaxConnLifetime > 0 {
		connConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	attempts := max(cfg.RetryAttempts, 1)
	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, connConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrConnectionFailed, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}
	return nil, ErrConnectionFailed
}

// Healthcheck returns a readiness check validating database
// connectivity.
func Healthcheck(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil {
			return ErrHealthcheckFailed
		}
		if err := pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Shutdown adapts the pool to a shutdown hook.
func Shutdown(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(context.Context) error {
		pool.Close()
		return nil
	}
}
