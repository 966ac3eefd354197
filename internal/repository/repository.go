// Package repository provides audit ledger implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLLedger implements domain.AuditLedger using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLLedger struct {
	db     *sql.DB
	driver string
}

// New creates a ledger based on configuration.
func New(cfg domain.RepositoryConfig) (domain.AuditLedger, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "memory":
		return NewMemoryLedger(), nil
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else if cfg.Driver == "sqlite" {
		// Single writer
		db.SetMaxOpenConns(1)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ledger := &SQLLedger{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := ledger.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return ledger, nil
}

func (l *SQLLedger) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := l.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// validateRecord rejects records the ledger must never store.
func validateRecord(rec *domain.AuditRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: record is nil", domain.ErrInvalidInput)
	}
	if rec.ID == "" {
		return fmt.Errorf("%w: record id is required", domain.ErrInvalidInput)
	}
	if rec.IntegrityTag == "" {
		return fmt.Errorf("%w: integrity tag is required", domain.ErrInvalidInput)
	}
	if math.IsNaN(rec.ClaimAmount) || math.IsInf(rec.ClaimAmount, 0) {
		return fmt.Errorf("%w: claim amount is not finite", domain.ErrInvalidInput)
	}
	return nil
}

// Append inserts a record inside a transaction. Duplicate IDs return domain.ErrInvalidInput.
func (l *SQLLedger) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	query := `
		INSERT INTO audit_records (
			id, recorded_at, region, claim_amount, score, level,
			integrity_tag, tag_algorithm, claimant_name, claimant_age,
			coverage_limit, tenure_months, auditor_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, l.rebind(query),
		rec.ID, rec.Timestamp.UTC().UnixMicro(), rec.Region,
		rec.ClaimAmount, float64(rec.Score), string(rec.Level),
		rec.IntegrityTag, rec.TagAlgorithm, rec.ClaimantName, rec.ClaimantAge,
		rec.CoverageLimit, rec.TenureMonths, rec.AuditorID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate audit id %s", domain.ErrInvalidInput, rec.ID)
		}
		return err
	}

	return tx.Commit()
}

const selectRecord = `
	SELECT id, recorded_at, region, claim_amount, score, level,
		   integrity_tag, tag_algorithm, claimant_name, claimant_age,
		   coverage_limit, tenure_months, auditor_id
	FROM audit_records
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*domain.AuditRecord, error) {
	var rec domain.AuditRecord
	var micros int64
	var score float64
	var level string

	if err := s.Scan(
		&rec.ID, &micros, &rec.Region, &rec.ClaimAmount, &score, &level,
		&rec.IntegrityTag, &rec.TagAlgorithm, &rec.ClaimantName, &rec.ClaimantAge,
		&rec.CoverageLimit, &rec.TenureMonths, &rec.AuditorID,
	); err != nil {
		return nil, err
	}

	rec.Timestamp = time.UnixMicro(micros).UTC()
	rec.Score = domain.Score(score)
	rec.Level = domain.RiskLevel(level)
	return &rec, nil
}

// Get retrieves a record by ID.
func (l *SQLLedger) Get(ctx context.Context, id string) (*domain.AuditRecord, error) {
	row := l.db.QueryRowContext(ctx, l.rebind(selectRecord+" WHERE id = ?"), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List retrieves records newest first.
func (l *SQLLedger) List(ctx context.Context, limit, offset int) ([]*domain.AuditRecord, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit must be positive and offset non-negative", domain.ErrInvalidInput)
	}

	query := selectRecord + `
		ORDER BY recorded_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := l.db.QueryContext(ctx, l.rebind(query), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.AuditRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Count returns the number of stored records.
func (l *SQLLedger) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records").Scan(&n)
	return n, err
}

// Ping checks database connectivity.
func (l *SQLLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close closes the database connection.
func (l *SQLLedger) Close() error {
	return l.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (l *SQLLedger) rebind(query string) string {
	if l.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
