// Package tariff holds the live state of published retail tariffs and the
// customer subscriptions bound to them.
package tariff

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/gridmarket/core/model"
)

// State is a tariff's lifecycle position.
type State string

const (
	Pending State = "pending"
	Offered State = "offered"
	Expired State = "expired"
	Killed  State = "killed"
)

// Terminal reports whether no transition may leave s.
func (s State) Terminal() bool { return s == Expired || s == Killed }

var (
	ErrIncompleteCoverage = errors.New("rates do not cover every hour")
	ErrNoSuchRate         = errors.New("no such rate")
	ErrIllegalTransition  = errors.New("illegal tariff state transition")
)

const (
	hoursPerDay  = 24
	hoursPerWeek = 168
)

// Tariff wraps an immutable specification with its mutable market state.
type Tariff struct {
	mu         sync.RWMutex
	spec       model.TariffSpecification
	state      State
	expiration *time.Time
	offeredAt  time.Time
	rates      map[int64]*model.Rate
	// byHour lists, per hour of the day or week grid, the applicable
	// rates in ascending tier order.
	byHour [][]*model.Rate
}

// New creates a pending tariff from spec. Rates are copied and stamped
// with the tariff id.
func New(spec model.TariffSpecification) *Tariff {
	t := &Tariff{
		spec:  spec,
		state: Pending,
		rates: make(map[int64]*model.Rate, len(spec.Rates)),
	}
	t.spec.Rates = make([]model.Rate, len(spec.Rates))
	for i, r := range spec.Rates {
		r.TariffID = spec.ID
		r.HourlyCharges = append([]model.HourlyCharge(nil), r.HourlyCharges...)
		t.spec.Rates[i] = r
		t.rates[r.ID] = &t.spec.Rates[i]
	}
	t.spec.RegulationRates = append([]model.RegulationRate(nil), spec.RegulationRates...)
	for i := range t.spec.RegulationRates {
		t.spec.RegulationRates[i].TariffID = spec.ID
	}
	if spec.Expiration != nil {
		e := *spec.Expiration
		t.expiration = &e
	}
	t.buildRateMap()
	return t
}

func (t *Tariff) buildRateMap() {
	size := hoursPerDay
	for i := range t.spec.Rates {
		if t.spec.Rates[i].IsWeekly() {
			size = hoursPerWeek
			break
		}
	}
	t.byHour = make([][]*model.Rate, size)
	for i := range t.spec.Rates {
		r := &t.spec.Rates[i]
		for h := 0; h < size; h++ {
			if r.AppliesAtHour(h) {
				t.byHour[h] = append(t.byHour[h], r)
			}
		}
	}
	for _, rs := range t.byHour {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].TierThreshold < rs[j].TierThreshold })
	}
}

func (t *Tariff) ID() int64                     { return t.spec.ID }
func (t *Tariff) Broker() string                { return t.spec.Broker }
func (t *Tariff) PowerType() model.PowerType    { return t.spec.PowerType }
func (t *Tariff) MinDuration() time.Duration    { return t.spec.MinDuration }
func (t *Tariff) SignupPayment() float64        { return t.spec.SignupPayment }
func (t *Tariff) EarlyWithdrawPayment() float64 { return t.spec.EarlyWithdrawPayment }

// Spec returns a copy of the specification including recorded hourly
// charges.
func (t *Tariff) Spec() model.TariffSpecification {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.spec
	s.Rates = make([]model.Rate, len(t.spec.Rates))
	for i, r := range t.spec.Rates {
		r.HourlyCharges = append([]model.HourlyCharge(nil), r.HourlyCharges...)
		s.Rates[i] = r
	}
	s.RegulationRates = append([]model.RegulationRate(nil), t.spec.RegulationRates...)
	if t.expiration != nil {
		e := *t.expiration
		s.Expiration = &e
	}
	return s
}

func (t *Tariff) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsCovered reports whether every hour of the grid has a base-tier rate.
func (t *Tariff) IsCovered() bool {
	for _, rs := range t.byHour {
		if len(rs) == 0 || rs[0].TierThreshold != 0 {
			return false
		}
	}
	return true
}

// IsSubscribable reports whether customers may still join at now.
func (t *Tariff) IsSubscribable(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state.Terminal() {
		return false
	}
	return t.expiration == nil || now.Before(*t.expiration)
}

func (t *Tariff) HasRegulationRate() bool { return len(t.spec.RegulationRates) > 0 }

func (t *Tariff) IsInterruptible() bool { return t.spec.PowerType.IsInterruptible() }

// HasCurtailment reports whether any rate allows curtailment.
func (t *Tariff) HasCurtailment() bool {
	for _, r := range t.spec.Rates {
		if r.MaxCurtailment > 0 {
			return true
		}
	}
	return false
}

// RateByID returns a copy of the rate with the given id.
func (t *Tariff) RateByID(id int64) (model.Rate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rates[id]
	if !ok {
		return model.Rate{}, false
	}
	return *r, true
}

// RateAt returns the rate applying at instant at for a customer that has
// already used cumulative kWh in the current period.
func (t *Tariff) RateAt(at time.Time, cumulative float64) (model.Rate, bool) {
	at = at.UTC()
	day := (int(at.Weekday()) + 6) % 7
	h := day*hoursPerDay + at.Hour()
	t.mu.RLock()
	defer t.mu.RUnlock()
	rs := t.byHour[h%len(t.byHour)]
	var best *model.Rate
	for _, r := range rs {
		if r.TierThreshold <= cumulative {
			best = r
		}
	}
	if best == nil {
		return model.Rate{}, false
	}
	return *best, true
}

// AddHourlyCharge records a variable-rate charge on the named rate.
func (t *Tariff) AddHourlyCharge(c model.HourlyCharge, rateID int64, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rates[rateID]
	if !ok {
		return fmt.Errorf("%w: %d on tariff %d", ErrNoSuchRate, rateID, t.spec.ID)
	}
	return r.AddHourlyCharge(c, now, false)
}

func (t *Tariff) Expiration() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.expiration == nil {
		return time.Time{}, false
	}
	return *t.expiration, true
}

// SetExpiration overwrites the expiration date of a live tariff.
func (t *Tariff) SetExpiration(at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return fmt.Errorf("%w: tariff %d is %s", ErrIllegalTransition, t.spec.ID, t.state)
	}
	t.expiration = &at
	return nil
}

// MarkOffered moves a pending tariff to Offered.
func (t *Tariff) MarkOffered(at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Pending {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, t.state, Offered)
	}
	t.state = Offered
	t.offeredAt = at
	return nil
}

// OfferedAt returns the instant the tariff was first offered.
func (t *Tariff) OfferedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.offeredAt
}

// Kill revokes the tariff.
func (t *Tariff) Kill() error { return t.terminate(Killed) }

// Expire marks the tariff as past its expiration.
func (t *Tariff) Expire() error { return t.terminate(Expired) }

func (t *Tariff) terminate(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, t.state, to)
	}
	t.state = to
	return nil
}

// IsExpiredAt reports whether a live tariff's expiration has passed.
func (t *Tariff) IsExpiredAt(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiration != nil && !now.Before(*t.expiration)
}
