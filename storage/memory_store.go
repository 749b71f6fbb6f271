package storage

import (
	"context"
	"sync"
	"time"

	"iphone-scraper/models"
)

// MemoryStore is an in-process CatalogStore used for dry runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	order   []int64
	records map[int64]*models.CatalogRecord
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	o := applyOptions(opts)
	return &MemoryStore{now: o.now, records: make(map[int64]*models.CatalogRecord)}
}

func (m *MemoryStore) Upsert(ctx context.Context, rec *models.CatalogRecord) error {
	if rec == nil || rec.Identifier <= 0 {
		return ErrMissingIdentifier
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	stored := cloneRecord(rec)
	if prev, ok := m.records[rec.Identifier]; ok {
		stored.CreatedAt = prev.CreatedAt
		stored.UpdatedAt = laterOf(now, prev.UpdatedAt)
	} else {
		stored.CreatedAt = now
		stored.UpdatedAt = now
		m.order = append(m.order, rec.Identifier)
	}
	m.records[rec.Identifier] = stored

	rec.CreatedAt = stored.CreatedAt
	rec.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, identifier int64) (*models.CatalogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]*models.CatalogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.CatalogRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, cloneRecord(m.records[id]))
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// cloneRecord copies rec including the values behind its pointer fields.
func cloneRecord(rec *models.CatalogRecord) *models.CatalogRecord {
	cp := *rec
	cp.ModelFamily = clonePtr(rec.ModelFamily)
	cp.CapacityGB = clonePtr(rec.CapacityGB)
	cp.PriceAmount = clonePtr(rec.PriceAmount)
	cp.Condition = clonePtr(rec.Condition)
	cp.Battery = clonePtr(rec.Battery)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
