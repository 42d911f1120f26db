package store

import (
	"sync"
	"time"

	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
)

// entry is one cached series with the time it was stored.
type entry struct {
	series   teleconnection.ForecastSeries
	storedAt time.Time
}

// MemoryStore is a concurrency-safe in-memory cache of parsed forecast series.
// Forecast files for a given model, date, run and index do not change once
// published, so entries are only bounded by age and count.
type MemoryStore struct {
	mu sync.RWMutex

	// key: query key, value: cached series
	data map[string]entry
	// insertion order of keys, oldest first
	order []string

	// retention configuration
	maxEntries int           // max number of cached series (0 = unlimited)
	maxAge     time.Duration // max age of an entry (0 = unlimited)

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxEntries is <= 0, it is treated as unlimited.
func NewMemoryStore(maxEntries int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]entry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Put stores a series for q and enforces the entry limit.
func (s *MemoryStore) Put(q teleconnection.ModelQuery, series teleconnection.ForecastSeries) {
	key := q.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		s.removeKey(key)
	}
	s.data[key] = entry{series: series, storedAt: s.now()}
	s.order = append(s.order, key)

	// Enforce retention by count.
	if s.maxEntries > 0 && len(s.order) > s.maxEntries {
		over := len(s.order) - s.maxEntries
		for _, k := range s.order[:over] {
			delete(s.data, k)
		}
		s.order = append([]string(nil), s.order[over:]...)
	}
}

// Get returns the cached series for q if present and not expired.
func (s *MemoryStore) Get(q teleconnection.ModelQuery) (teleconnection.ForecastSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[q.Key()]
	if !ok || s.expired(e, s.now()) {
		return teleconnection.ForecastSeries{}, false
	}
	return e.series, true
}

// Prune drops expired entries and returns how many were removed.
func (s *MemoryStore) Prune(now time.Time) int {
	if s.maxAge <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Entries are appended in time order, so expired ones form a prefix.
	i := 0
	for ; i < len(s.order); i++ {
		if !s.expired(s.data[s.order[i]], now) {
			break
		}
		delete(s.data, s.order[i])
	}
	if i > 0 {
		s.order = append([]string(nil), s.order[i:]...)
	}
	return i
}

// Len returns the number of cached entries, including expired ones not yet pruned.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *MemoryStore) expired(e entry, now time.Time) bool {
	return s.maxAge > 0 && now.Sub(e.storedAt) > s.maxAge
}

// removeKey drops key from the order slice; the caller holds the write lock.
func (s *MemoryStore) removeKey(key string) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	delete(s.data, key)
}

var _ teleconnection.Store = (*MemoryStore)(nil)
