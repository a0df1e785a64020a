package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps postings in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	seen map[string]struct{}
	data []Posting
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

func (s *MemoryStore) Append(_ context.Context, postings []Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range postings {
		if _, ok := s.seen[p.ID]; ok {
			continue
		}
		s.seen[p.ID] = struct{}{}
		s.data = append(s.data, p)
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Posting
	for _, p := range s.data {
		if q.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
