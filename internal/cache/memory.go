package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and throwaway sessions.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*CachedAbility
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]*CachedAbility{}, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, comboKey string) (*CachedAbility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[comboKey]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Put(_ context.Context, comboKey, abilityJSON string, version int) error {
	if comboKey == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC().Truncate(time.Millisecond)
	rec, ok := m.records[comboKey]
	if !ok {
		m.records[comboKey] = &CachedAbility{
			ComboKey: comboKey, AbilityJSON: abilityJSON, Version: version,
			CreatedAt: now, LastUsed: now, UseCount: 1,
		}
		return nil
	}
	rec.AbilityJSON = abilityJSON
	rec.Version = version
	rec.LastUsed = now
	rec.UseCount++
	return nil
}

func (m *MemoryStore) RecordUse(_ context.Context, comboKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[comboKey]; ok {
		rec.UseCount++
		rec.LastUsed = m.now().UTC().Truncate(time.Millisecond)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]CachedAbility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CachedAbility, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUsed.Equal(out[j].LastUsed) {
			return out[i].LastUsed.After(out[j].LastUsed)
		}
		return out[i].ComboKey < out[j].ComboKey
	})
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Count: len(m.records)}
	for _, rec := range m.records {
		st.TotalUses += rec.UseCount
	}
	return st, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = map[string]*CachedAbility{}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
