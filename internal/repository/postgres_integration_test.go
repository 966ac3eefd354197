//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// setupPostgres starts a PostgreSQL testcontainer and returns a ledger config for it.
func setupPostgres(t *testing.T) domain.RepositoryConfig {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "kestrel",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "kestrel",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { postgres.Terminate(ctx) })

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return domain.RepositoryConfig{
		Driver:           "postgres",
		PostgresHost:     host,
		PostgresPort:     port.Int(),
		PostgresUser:     "kestrel",
		PostgresPassword: "password",
		PostgresDB:       "kestrel",
		MaxOpenConns:     10,
	}
}

func TestPostgresLedger(t *testing.T) {
	cfg := setupPostgres(t)

	var ledger domain.AuditLedger
	var err error
	for i := 0; i < 30; i++ {
		if ledger, err = New(cfg); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	defer ledger.Close()

	// Tables are shared, so each subtest gets a truncated ledger.
	runLedgerContract(t, func(t *testing.T) domain.AuditLedger {
		sqlLedger := ledger.(*SQLLedger)
		if _, err := sqlLedger.db.Exec("TRUNCATE audit_records"); err != nil {
			t.Fatalf("truncate failed: %v", err)
		}
		return ledger
	})
}
