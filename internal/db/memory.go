package db

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonathan/apply-agent/internal/types"
)

// Memory is an in-process store used when no database is configured.
type Memory struct {
	mu      sync.RWMutex
	records map[string]types.JobRecord
	now     func() time.Time
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]types.JobRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetRecord returns a copy of the stored record, or nil.
func (m *Memory) GetRecord(_ context.Context, id string) (*types.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	r.Filters = maps.Clone(r.Filters)
	return &r, nil
}

// PutRecords upserts a batch; nothing is written if any record is invalid.
func (m *Memory) PutRecords(_ context.Context, records []types.JobRecord) error {
	for _, r := range records {
		if err := validateRecord(r); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, in := range records {
		in.Filters = maps.Clone(in.Filters)
		var existing *types.JobRecord
		if r, ok := m.records[in.ID]; ok {
			existing = &r
		}
		m.records[in.ID] = Merge(existing, in, now)
	}
	return nil
}

// ListRecords returns records, most recently updated first.
func (m *Memory) ListRecords(_ context.Context, filter ListFilter) ([]types.JobRecord, error) {
	m.mu.RLock()
	out := []types.JobRecord{}
	for _, r := range m.records {
		if filter.Domain != "" && r.Domain != filter.Domain {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		r.Filters = maps.Clone(r.Filters)
		out = append(out, r)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b types.JobRecord) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
