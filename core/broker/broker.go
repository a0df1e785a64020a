// Package broker holds broker identities and the transport used to reach
// them.
package broker

import (
	"sort"
	"sync"
)

// Broker is a trading agent. Wholesale brokers are market makers and are
// exempt from position limits. Disabled brokers have no authorized session.
type Broker struct {
	ID        string `json:"id" yaml:"id"`
	Wholesale bool   `json:"wholesale" yaml:"wholesale"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// Repo is keyed access to the brokers of a game.
type Repo interface {
	Get(id string) (Broker, bool)
	List() []Broker
}

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Broker
}

// NewMemoryRepo creates a repository holding the given brokers.
func NewMemoryRepo(brokers ...Broker) *MemoryRepo {
	r := &MemoryRepo{data: make(map[string]Broker, len(brokers))}
	for _, b := range brokers {
		r.data[b.ID] = b
	}
	return r
}

// Add inserts or replaces a broker.
func (r *MemoryRepo) Add(b Broker) {
	r.mu.Lock()
	r.data[b.ID] = b
	r.mu.Unlock()
}

// SetEnabled changes a broker's session state. Unknown ids are ignored.
func (r *MemoryRepo) SetEnabled(id string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.data[id]; ok {
		b.Enabled = enabled
		r.data[id] = b
	}
}

func (r *MemoryRepo) Get(id string) (Broker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.data[id]
	return b, ok
}

// List returns all brokers sorted by id.
func (r *MemoryRepo) List() []Broker {
	r.mu.RLock()
	out := make([]Broker, 0, len(r.data))
	for _, b := range r.data {
		out = append(out, b)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
