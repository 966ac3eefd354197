package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MemoryLedger is an in-process ledger for tests and throwaway runs.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*domain.AuditRecord
	order   []*domain.AuditRecord
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]*domain.AuditRecord),
	}
}

func (m *MemoryLedger) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("%w: duplicate audit id %s", domain.ErrInvalidInput, rec.ID)
	}

	stored := *rec
	stored.Timestamp = rec.Timestamp.UTC()
	m.records[rec.ID] = &stored
	m.order = append(m.order, &stored)
	return nil
}

func (m *MemoryLedger) Get(ctx context.Context, id string) (*domain.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MemoryLedger) List(ctx context.Context, limit, offset int) ([]*domain.AuditRecord, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit must be positive and offset non-negative", domain.ErrInvalidInput)
	}

	m.mu.RLock()
	sorted := make([]*domain.AuditRecord, len(m.order))
	copy(sorted, m.order)
	m.mu.RUnlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID > b.ID
	})

	records := make([]*domain.AuditRecord, 0, limit)
	for i := offset; i < len(sorted) && len(records) < limit; i++ {
		out := *sorted[i]
		records = append(records, &out)
	}
	return records, nil
}

func (m *MemoryLedger) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order), nil
}

func (m *MemoryLedger) Ping(ctx context.Context) error { return nil }
func (m *MemoryLedger) Close() error                   { return nil }
