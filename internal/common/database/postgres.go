// Package database provides Postgres and Redis connectivity for the worker.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"companion-agent/internal/common/config"
)

// PostgresClient wraps database/sql for the call-log store.
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient opens a connection pool and verifies connectivity.
func NewPostgresClient(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// NewPostgresClientFromDB wraps an existing handle, used by tests.
func NewPostgresClientFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

// DB exposes the underlying handle.
func (c *PostgresClient) DB() *sql.DB {
	return c.db
}

// HealthCheck pings the database.
func (c *PostgresClient) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the connection pool.
func (c *PostgresClient) Close() error {
	return c.db.Close()
}
