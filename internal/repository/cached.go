package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const recordKeyPrefix = "audit:"

// CachedLedger serves Get from a cache in front of another ledger.
// Records are immutable, so entries never need invalidation.
type CachedLedger struct {
	domain.AuditLedger
	cache domain.Cache
	ttl   time.Duration
}

// NewCachedLedger wraps ledger. A nil cache returns ledger unchanged.
func NewCachedLedger(ledger domain.AuditLedger, cache domain.Cache, ttl time.Duration) domain.AuditLedger {
	if cache == nil {
		return ledger
	}
	return &CachedLedger{
		AuditLedger: ledger,
		cache:       cache,
		ttl:         ttl,
	}
}

// Append writes through to the ledger and warms the cache.
func (c *CachedLedger) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if err := c.AuditLedger.Append(ctx, rec); err != nil {
		return err
	}
	c.store(ctx, rec)
	return nil
}

// Get checks the cache before the ledger. Cache failures fall through.
func (c *CachedLedger) Get(ctx context.Context, id string) (*domain.AuditRecord, error) {
	key := recordKeyPrefix + id

	data, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Debug("audit cache get failed", "audit_id", id, "error", err)
	} else if data != nil {
		var rec domain.AuditRecord
		if err := json.Unmarshal(data, &rec); err == nil {
			return &rec, nil
		}
	}

	rec, err := c.AuditLedger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, rec)
	return rec, nil
}

func (c *CachedLedger) store(ctx context.Context, rec *domain.AuditRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, recordKeyPrefix+rec.ID, data, c.ttl); err != nil {
		slog.Debug("audit cache set failed", "audit_id", rec.ID, "error", err)
	}
}

// Close closes the ledger. The cache is owned by the caller.
func (c *CachedLedger) Close() error {
	return c.AuditLedger.Close()
}
