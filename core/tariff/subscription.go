package tariff

import (
	"sync"
	"time"
)

// commitment is a batch of customers bound until until.
type commitment struct {
	until time.Time
	count int
}

// Withdrawal describes the customers removed by DeferredUnsubscribe.
// Penalized counts those that left before their minimum duration.
type Withdrawal struct {
	Count     int
	Penalized int
}

// Subscription binds a customer population to one tariff.
type Subscription struct {
	mu sync.Mutex

	Customer string
	Tariff   *Tariff

	committed    int
	commitments  []commitment
	pendingRatio float64
	regulation   float64
	capacity     RegulationAccumulator
}

// NewSubscription creates an empty subscription.
func NewSubscription(customer string, t *Tariff) *Subscription {
	return &Subscription{Customer: customer, Tariff: t}
}

func (s *Subscription) TariffID() int64 { return s.Tariff.ID() }

// Committed returns the number of customers currently subscribed.
func (s *Subscription) Committed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Subscribe adds n customers committed for the tariff's minimum duration
// from now.
func (s *Subscription) Subscribe(n int, now time.Time) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed += n
	s.commitments = append(s.commitments, commitment{until: now.Add(s.Tariff.MinDuration()), count: n})
}

// DeferredUnsubscribe removes up to n customers, those past their minimum
// duration first. Removing every customer clears the regulation capacity.
func (s *Subscription) DeferredUnsubscribe(n int, now time.Time) Withdrawal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.committed {
		n = s.committed
	}
	if n <= 0 {
		return Withdrawal{}
	}
	w := Withdrawal{Count: n}
	free := 0
	for _, c := range s.commitments {
		if !now.Before(c.until) {
			free += c.count
		}
	}
	if n > free {
		w.Penalized = n - free
	}
	s.release(n, now)
	s.committed -= n
	if s.committed == 0 {
		s.capacity = RegulationAccumulator{}
		s.commitments = nil
	}
	return w
}

// release removes n customers from the commitments, expired ones first,
// then the oldest remaining.
func (s *Subscription) release(n int, now time.Time) {
	kept := s.commitments[:0]
	for _, c := range s.commitments {
		if n > 0 && !now.Before(c.until) {
			take := min(n, c.count)
			c.count -= take
			n -= take
		}
		if c.count > 0 {
			kept = append(kept, c)
		}
	}
	s.commitments = kept
	for i := 0; n > 0 && i < len(s.commitments); i++ {
		take := min(n, s.commitments[i].count)
		s.commitments[i].count -= take
		n -= take
	}
	kept = s.commitments[:0]
	for _, c := range s.commitments {
		if c.count > 0 {
			kept = append(kept, c)
		}
	}
	s.commitments = kept
}

// PostRatioControl sets the curtailment ratio for the coming timeslot.
func (s *Subscription) PostRatioControl(ratio float64) {
	s.mu.Lock()
	s.pendingRatio = ratio
	s.mu.Unlock()
}

// PendingRatio returns the last posted curtailment ratio.
func (s *Subscription) PendingRatio() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingRatio
}

// PostBalancingControl records exercised regulation from the customer's
// point of view: a negative kwh consumes up-regulation capacity, a
// positive one consumes down-regulation capacity.
func (s *Subscription) PostBalancingControl(kwh float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regulation += kwh
	if kwh <= 0 {
		s.capacity.Up = clampUp(s.capacity.Up + kwh)
	} else {
		s.capacity.Down = clampDown(s.capacity.Down + kwh)
	}
}

// Regulation returns the regulation exercised since the last reset.
func (s *Subscription) Regulation() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regulation
}

// ResetRegulation clears the exercised regulation and returns it.
func (s *Subscription) ResetRegulation() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.regulation
	s.regulation = 0
	return r
}

// SetRegulationCapacity replaces the available capacity, normally reported
// by the customer model each timeslot.
func (s *Subscription) SetRegulationCapacity(acc RegulationAccumulator) {
	s.mu.Lock()
	s.capacity = NewRegulationAccumulator(acc.Up, acc.Down)
	s.mu.Unlock()
}

// RemainingRegulationCapacity returns the capacity still available, zero
// when no customer is committed.
func (s *Subscription) RemainingRegulationCapacity() RegulationAccumulator {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.committed == 0 {
		return RegulationAccumulator{}
	}
	return s.capacity
}
