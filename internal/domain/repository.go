// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// AuditLedger is the append-only store of audit records.
// Implementations serialize concurrent appends; records are never updated or deleted.
type AuditLedger interface {
	// Append persists a new record. Duplicate IDs are rejected.
	Append(ctx context.Context, rec *AuditRecord) error

	// Get returns a record by ID or ErrNotFound.
	Get(ctx context.Context, id string) (*AuditRecord, error)

	// List returns records most recent first.
	List(ctx context.Context, limit, offset int) ([]*AuditRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for ledger initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "memory"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user"`
	PostgresPassword string `json:"-" yaml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime"`
}
