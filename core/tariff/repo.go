package tariff

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/gridmarket/core/model"
)

type subKey struct {
	customer string
	tariff   int64
}

// Repo stores tariffs by id and subscriptions by (customer, tariff).
type Repo struct {
	mu      sync.RWMutex
	tariffs map[int64]*Tariff
	subs    map[subKey]*Subscription
}

// NewRepo creates an empty repository.
func NewRepo() *Repo {
	return &Repo{
		tariffs: make(map[int64]*Tariff),
		subs:    make(map[subKey]*Subscription),
	}
}

// Add stores t. Ids are unique.
func (r *Repo) Add(t *Tariff) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tariffs[t.ID()]; ok {
		return fmt.Errorf("tariff %d already exists", t.ID())
	}
	r.tariffs[t.ID()] = t
	return nil
}

func (r *Repo) Get(id int64) (*Tariff, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tariffs[id]
	return t, ok
}

// Remove deletes a tariff together with its subscriptions.
func (r *Repo) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tariffs, id)
	for k := range r.subs {
		if k.tariff == id {
			delete(r.subs, k)
		}
	}
}

// List returns the tariffs ordered by id.
func (r *Repo) List() []*Tariff {
	r.mu.RLock()
	out := make([]*Tariff, 0, len(r.tariffs))
	for _, t := range r.tariffs {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// InState returns the tariffs currently in state s, ordered by id.
func (r *Repo) InState(s State) []*Tariff {
	var out []*Tariff
	for _, t := range r.List() {
		if t.State() == s {
			out = append(out, t)
		}
	}
	return out
}

// ByBroker returns a broker's tariffs ordered by id.
func (r *Repo) ByBroker(broker string) []*Tariff {
	var out []*Tariff
	for _, t := range r.List() {
		if t.Broker() == broker {
			out = append(out, t)
		}
	}
	return out
}

// ByPowerType returns the tariffs for power type pt ordered by id.
func (r *Repo) ByPowerType(pt model.PowerType) []*Tariff {
	var out []*Tariff
	for _, t := range r.List() {
		if t.PowerType() == pt {
			out = append(out, t)
		}
	}
	return out
}

// Subscription returns the subscription of customer to tariff id.
func (r *Repo) Subscription(customer string, id int64) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[subKey{customer, id}]
	return s, ok
}

// FindOrCreateSubscription returns the single subscription of customer to
// t, creating it on first use.
func (r *Repo) FindOrCreateSubscription(customer string, t *Tariff) *Subscription {
	k := subKey{customer, t.ID()}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[k]; ok {
		return s
	}
	s := NewSubscription(customer, t)
	r.subs[k] = s
	return s
}

// HasSubscriptions reports whether customer has any subscription at all.
func (r *Repo) HasSubscriptions(customer string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k := range r.subs {
		if k.customer == customer {
			return true
		}
	}
	return false
}

// SubscriptionsFor returns the subscriptions of tariff id ordered by
// customer.
func (r *Repo) SubscriptionsFor(id int64) []*Subscription {
	r.mu.RLock()
	var out []*Subscription
	for k, s := range r.subs {
		if k.tariff == id {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Customer < out[j].Customer })
	return out
}

// CommittedSubscriptions returns the subscriptions of tariff id with at
// least one committed customer.
func (r *Repo) CommittedSubscriptions(id int64) []*Subscription {
	var out []*Subscription
	for _, s := range r.SubscriptionsFor(id) {
		if s.Committed() > 0 {
			out = append(out, s)
		}
	}
	return out
}
