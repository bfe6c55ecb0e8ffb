package store

import (
	"container/ring"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sgerhart/aegisflux/analyzer/internal/model"
)

// MemoryStore keeps the most recent classifications in a ring buffer and
// drops repeats of the same outcome for the same entity using an LRU set
type MemoryStore struct {
	mu         sync.RWMutex
	results    *ring.Ring
	dedupe     *lru.Cache[string, struct{}]
	maxResults int
	dedupeCap  int
	dropped    int
}

// NewMemoryStore creates a new memory store with specified capacities
func NewMemoryStore(maxResults, dedupeCap int) *MemoryStore {
	if maxResults <= 0 {
		maxResults = 1
	}
	if dedupeCap <= 0 {
		dedupeCap = 1
	}
	dedupeCache, _ := lru.New[string, struct{}](dedupeCap)

	return &MemoryStore{
		results:    ring.New(maxResults),
		dedupe:     dedupeCache,
		maxResults: maxResults,
		dedupeCap:  dedupeCap,
	}
}

// Add stores a classification and reports whether it was new. A result for
// the same entity, change kind, severity and matched rules as one already
// seen is not stored again.
func (s *MemoryStore) Add(result *model.Classification) bool {
	if result == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupeKey(result)
	if s.dedupe.Contains(key) {
		s.dropped++
		return false
	}
	s.dedupe.Add(key, struct{}{})

	s.results.Value = result
	s.results = s.results.Next()
	return true
}

// GetResults returns all stored classifications, oldest first
func (s *MemoryStore) GetResults() []*model.Classification {
	return s.filter(func(*model.Classification) bool { return true })
}

// GetResultsBySeverity returns classifications at or above minSeverity
func (s *MemoryStore) GetResultsBySeverity(minSeverity model.Severity) []*model.Classification {
	return s.filter(func(c *model.Classification) bool {
		return c.Severity >= minSeverity
	})
}

// GetResultsByCategory returns classifications for one category
func (s *MemoryStore) GetResultsByCategory(category model.Category) []*model.Classification {
	return s.filter(func(c *model.Classification) bool {
		return c.Category == category
	})
}

// Query combines the severity and category filters. An empty category matches all.
func (s *MemoryStore) Query(minSeverity model.Severity, category model.Category) []*model.Classification {
	return s.filter(func(c *model.Classification) bool {
		return c.Severity >= minSeverity && (category == "" || c.Category == category)
	})
}

func (s *MemoryStore) filter(keep func(*model.Classification) bool) []*model.Classification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*model.Classification{}
	s.results.Do(func(value interface{}) {
		if result, ok := value.(*model.Classification); ok && keep(result) {
			results = append(results, result)
		}
	})
	return results
}

// Clear removes all results and resets the dedupe cache
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.results.Len(); i++ {
		s.results.Value = nil
		s.results = s.results.Next()
	}
	s.dedupe.Purge()
	s.dropped = 0
}

// GetStats returns store statistics
func (s *MemoryStore) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	s.results.Do(func(value interface{}) {
		if value != nil {
			count++
		}
	})

	return map[string]interface{}{
		"total_results":      count,
		"max_results":        s.maxResults,
		"dedupe_cap":         s.dedupeCap,
		"dedupe_size":        s.dedupe.Len(),
		"duplicates_dropped": s.dropped,
	}
}

func dedupeKey(result *model.Classification) string {
	var b strings.Builder
	b.WriteString(string(result.Category))
	b.WriteByte('|')
	b.WriteString(result.Identity)
	b.WriteByte('|')
	b.WriteString(string(result.ChangeKind))
	b.WriteByte('|')
	b.WriteString(result.Severity.String())
	for _, rule := range result.MatchedRules {
		b.WriteByte('|')
		b.WriteString(rule.Name)
	}
	return b.String()
}
