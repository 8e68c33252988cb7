package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a thread-safe in-process Store. Entries live in a
// plain map guarded by one mutex; that mutex is the sole serialization
// point, so a hit's count increment and access timestamp land together.
// Contents are lost on restart and never shared across processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

// Get retrieves a live entry and records the hit.
func (s *MemoryStore) Get(ctx context.Context, key, provider, model string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.entries[key]
	if !found {
		return nil, ErrCacheMiss
	}

	if entry.Expired(time.Now().UTC()) {
		delete(s.entries, key)
		return nil, ErrCacheMiss
	}

	if provider != "" && entry.Provider != provider {
		return nil, ErrCacheMiss
	}
	if model != "" && entry.Model != model {
		return nil, ErrCacheMiss
	}

	entry.HitCount++
	entry.LastAccessedAt = time.Now().UTC()

	copied := *entry
	return &copied, nil
}

// Set stores a copy of the entry, overwriting any previous one.
func (s *MemoryStore) Set(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.entries[entry.CacheKey] = &copied
	return nil
}

// Invalidate deletes matching entries and reports how many went away.
func (s *MemoryStore) Invalidate(ctx context.Context, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Key != "" {
		if _, found := s.entries[f.Key]; found {
			delete(s.entries, f.Key)
			return 1, nil
		}
		return 0, nil
	}

	if f.Empty() {
		return 0, nil
	}

	removed := 0
	for key, entry := range s.entries {
		if s.matchesAny(entry, f) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// matchesAny applies the OR semantics of Filter.
func (s *MemoryStore) matchesAny(entry *Entry, f Filter) bool {
	if f.Provider != "" && entry.Provider == f.Provider {
		return true
	}
	if f.Model != "" && entry.Model == f.Model {
		return true
	}
	if f.OlderThan != nil && entry.CreatedAt.Before(*f.OlderThan) {
		return true
	}
	return false
}

// CleanupExpired removes all expired entries.
func (s *MemoryStore) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Stats summarizes the store contents.
func (s *MemoryStore) Stats(ctx context.Context, provider, model string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UTC()
	stats := &Stats{StorageType: StorageTypeMemory}

	for _, entry := range s.entries {
		if provider != "" && entry.Provider != provider {
			continue
		}
		if model != "" && entry.Model != model {
			continue
		}

		stats.TotalEntries++
		if entry.Expired(now) {
			stats.ExpiredEntries++
		} else {
			stats.ActiveEntries++
		}
		stats.TotalHits += entry.HitCount
		stats.TotalPromptTokens += entry.PromptTokens
		stats.TotalCompletionTokens += entry.CompletionTokens
	}

	return stats, nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error {
	return nil
}
