package pg

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/eternisai/agent-stream/internal/storage/sqlstore"
	_ "github.com/lib/pq"
)

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type Database struct {
	DB    *sql.DB
	Store *sqlstore.Store
}

// InitDatabase initializes the database connection and runs migrations.
func InitDatabase(databaseURL string, pool PoolConfig) (*Database, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations
	if err := sqlstore.RunMigrations(db, sqlstore.Postgres); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Database{
		DB:    db,
		Store: sqlstore.New(db, sqlstore.Postgres),
	}, nil
}
