package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the sqlite handle shared by the repositories
type DB struct {
	*sql.DB
	pool *ConnectionPool
}

// ConnectionPool records the pool limits applied to the handle
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool applies pool limits to db
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// Open opens (creating if needed) the sqlite file at path and runs migrations
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", path)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pool := NewConnectionPool(db, 8, 4, 5*time.Minute)
	database := &DB{DB: db, pool: pool}

	if err := database.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Database opened",
		"path", path,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns)

	return database, nil
}

// Migrate creates the schema. It is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS claims (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			policy_number TEXT NOT NULL,
			vehicle_company TEXT NOT NULL DEFAULT '',
			vehicle_model TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			incident_date TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			coverage TEXT NOT NULL DEFAULT '{}', -- JSON coverage terms
			image_refs TEXT NOT NULL DEFAULT '[]', -- JSON array
			status TEXT NOT NULL,
			last_error TEXT NOT NULL DEFAULT '',
			result TEXT, -- JSON processing result
			decision TEXT NOT NULL DEFAULT 'pending',
			fraud_score INTEGER,
			cost_total INTEGER,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS fraud_history (
			id TEXT PRIMARY KEY,
			claim_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			image_ref TEXT NOT NULL,
			embedding TEXT, -- JSON vector
			phash INTEGER,
			similarity_score REAL NOT NULL DEFAULT 0,
			matched_claim_id TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS repair_history (
			id TEXT PRIMARY KEY,
			vehicle_company TEXT NOT NULL,
			vehicle_model TEXT NOT NULL,
			damage_type TEXT NOT NULL,
			cost INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS zone_costs (
			zone TEXT PRIMARY KEY,
			minor_cost INTEGER NOT NULL,
			moderate_cost INTEGER NOT NULL,
			severe_cost INTEGER NOT NULL,
			labor_cost INTEGER NOT NULL,
			regional_multiplier REAL NOT NULL DEFAULT 1.0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_claims_owner_created ON claims(owner_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_decision ON claims(decision)`,
		`CREATE INDEX IF NOT EXISTS idx_fraud_history_owner ON fraud_history(owner_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_fraud_history_claim_image ON fraud_history(claim_id, image_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_repair_history_vehicle ON repair_history(vehicle_company, vehicle_model, damage_type)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// withTx runs fn in a transaction, rolling back on error
func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
