package repository

// Schema definitions for the Kestrel audit ledger.
// Compatible with both SQLite and PostgreSQL.

// recorded_at is unix microseconds, UTC. Amounts and scores are doubles so
// stored values reproduce their integrity tags exactly.
const schemaAuditRecords = `
CREATE TABLE IF NOT EXISTS audit_records (
    id TEXT PRIMARY KEY,
    recorded_at BIGINT NOT NULL,
    region TEXT NOT NULL,
    claim_amount DOUBLE PRECISION NOT NULL,
    score DOUBLE PRECISION NOT NULL,
    level TEXT NOT NULL,
    integrity_tag TEXT NOT NULL,
    tag_algorithm TEXT NOT NULL,
    claimant_name TEXT NOT NULL DEFAULT '',
    claimant_age INTEGER NOT NULL DEFAULT 0,
    coverage_limit DOUBLE PRECISION NOT NULL DEFAULT 0,
    tenure_months INTEGER NOT NULL DEFAULT 0,
    auditor_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_records_recorded ON audit_records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_audit_records_level ON audit_records(level, recorded_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAuditRecords,
	}
}
