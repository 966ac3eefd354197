package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func newRecord(id string, ts time.Time) *domain.AuditRecord {
	return &domain.AuditRecord{
		ID:            id,
		Timestamp:     ts,
		Region:        "Kochi",
		ClaimAmount:   12345.678,
		Score:         domain.NewScore(0.8123),
		Level:         domain.RiskHigh,
		IntegrityTag:  "tag-" + id,
		TagAlgorithm:  "hmac-sha256",
		ClaimantName:  "Asha",
		ClaimantAge:   41,
		CoverageLimit: 250000,
		TenureMonths:  18,
		AuditorID:     "auditor-1",
	}
}

func newSQLiteLedger(t *testing.T) domain.AuditLedger {
	t.Helper()
	ledger, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

// runLedgerContract exercises behavior every ledger must share.
func runLedgerContract(t *testing.T, newLedger func(t *testing.T) domain.AuditLedger) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 123456000, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := newLedger(t).Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("AppendAndGet", func(t *testing.T) {
		ledger := newLedger(t)
		rec := newRecord("rec-001", base)

		if err := ledger.Append(ctx, rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}

		got, err := ledger.Get(ctx, "rec-001")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.ClaimAmount != rec.ClaimAmount {
			t.Errorf("expected amount %v, got %v", rec.ClaimAmount, got.ClaimAmount)
		}
		if got.Score != rec.Score {
			t.Errorf("expected score %v, got %v", rec.Score, got.Score)
		}
		if !got.Timestamp.Equal(base) {
			t.Errorf("expected timestamp %v, got %v", base, got.Timestamp)
		}
		if got.Level != domain.RiskHigh || got.IntegrityTag != "tag-rec-001" {
			t.Errorf("unexpected record %+v", got)
		}
		if got.ClaimantName != "Asha" || got.TenureMonths != 18 || got.AuditorID != "auditor-1" {
			t.Errorf("optional fields not preserved: %+v", got)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := newLedger(t).Get(ctx, "nope")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		ledger := newLedger(t)
		ledger.Append(ctx, newRecord("dup", base))

		err := ledger.Append(ctx, newRecord("dup", base.Add(time.Second)))
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if n, _ := ledger.Count(ctx); n != 1 {
			t.Errorf("expected 1 record, got %d", n)
		}
	})

	t.Run("InvalidRecord", func(t *testing.T) {
		ledger := newLedger(t)
		rec := newRecord("", base)
		if err := ledger.Append(ctx, rec); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty id, got %v", err)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		ledger := newLedger(t)
		for i := range 5 {
			rec := newRecord(fmt.Sprintf("rec-%d", i), base.Add(time.Duration(i)*time.Second))
			if err := ledger.Append(ctx, rec); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}

		page, err := ledger.List(ctx, 2, 0)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(page) != 2 || page[0].ID != "rec-4" || page[1].ID != "rec-3" {
			t.Errorf("unexpected first page: %v", ids(page))
		}

		page, _ = ledger.List(ctx, 10, 3)
		if len(page) != 2 || page[0].ID != "rec-1" || page[1].ID != "rec-0" {
			t.Errorf("unexpected offset page: %v", ids(page))
		}

		page, _ = ledger.List(ctx, 10, 50)
		if len(page) != 0 {
			t.Errorf("expected empty page past the end, got %d", len(page))
		}

		if _, err := ledger.List(ctx, 0, 0); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for zero limit, got %v", err)
		}
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		ledger := newLedger(t)
		const n = 40

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- ledger.Append(ctx, newRecord(fmt.Sprintf("c-%03d", i), base.Add(time.Duration(i)*time.Millisecond)))
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("Append failed: %v", err)
			}
		}

		count, err := ledger.Count(ctx)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count != n {
			t.Errorf("expected %d records, got %d", n, count)
		}
	})
}

func ids(recs []*domain.AuditRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestSQLiteLedger(t *testing.T) {
	runLedgerContract(t, newSQLiteLedger)
}

func TestMemoryLedger(t *testing.T) {
	runLedgerContract(t, func(t *testing.T) domain.AuditLedger {
		return NewMemoryLedger()
	})
}

func TestCachedLedger(t *testing.T) {
	runLedgerContract(t, func(t *testing.T) domain.AuditLedger {
		return NewCachedLedger(newSQLiteLedger(t), cache.NewMemoryCache(100, time.Minute), time.Minute)
	})

	t.Run("ServesFromCache", func(t *testing.T) {
		ctx := context.Background()
		inner := NewMemoryLedger()
		c := cache.NewMemoryCache(100, time.Minute)
		ledger := NewCachedLedger(inner, c, time.Minute)

		rec := newRecord("cached-1", time.Now().UTC())
		if err := ledger.Append(ctx, rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}

		data, _ := c.Get(ctx, "audit:cached-1")
		if data == nil {
			t.Fatal("expected record to be cached on append")
		}

		got, err := ledger.Get(ctx, "cached-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Score != rec.Score || got.ClaimAmount != rec.ClaimAmount {
			t.Errorf("cached record differs: %+v", got)
		}
	})

	t.Run("NilCachePassesThrough", func(t *testing.T) {
		inner := NewMemoryLedger()
		if NewCachedLedger(inner, nil, time.Minute) != domain.AuditLedger(inner) {
			t.Error("expected ledger to be returned unchanged")
		}
	})
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLLedger{driver: "postgres"}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("unexpected rebind: %s", got)
	}
	lite := &SQLLedger{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("expected sqlite query unchanged, got %s", got)
	}
}
