// Package capacity exercises balancing and economic control against the
// subscriptions of curtailable tariffs.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/gridmarket/core/broker"
	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/ledger"
	"github.com/kilianp07/gridmarket/core/logger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/monitoring"
	"github.com/kilianp07/gridmarket/core/tariff"
	"github.com/kilianp07/gridmarket/core/timeslot"
	"github.com/kilianp07/gridmarket/internal/eventbus"
	"github.com/kilianp07/gridmarket/internal/queue"
)

// epsilon below which a control quantity or capacity counts as zero.
const epsilon = 1e-6

var (
	ErrStale        = errors.New("control targets a past timeslot")
	ErrNoSuchTariff = errors.New("no such tariff")
)

// Control applies regulation and curtailment to tariff subscriptions.
type Control struct {
	tariffs   *tariff.Repo
	slots     timeslot.Repo
	ledger    ledger.Ledger
	transport broker.Transport
	bus       eventbus.EventBus
	log       logger.Logger

	incoming *queue.Queue[model.EconomicControlEvent]

	mu       sync.Mutex
	schedule map[int][]model.EconomicControlEvent
}

// Option customizes a Control.
type Option func(*Control)

// WithEventBus publishes a BalancingEvent for every exercised control.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(c *Control) { c.bus = bus }
}

// NewControl creates a capacity control service reading subscriptions
// from tariffs.
func NewControl(tariffs *tariff.Repo, slots timeslot.Repo, led ledger.Ledger, tr broker.Transport, log logger.Logger, opts ...Option) *Control {
	if tr == nil {
		tr = broker.NopTransport{}
	}
	c := &Control{
		tariffs:   tariffs,
		slots:     slots,
		ledger:    led,
		transport: tr,
		log:       log,
		incoming:  queue.New[model.EconomicControlEvent](),
		schedule:  make(map[int][]model.EconomicControlEvent),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ExerciseBalancingControl spreads kwh over the committed subscriptions of
// the order's tariff in proportion to their available capacity. Positive
// kwh draws on up-regulation, negative kwh on down-regulation.
func (c *Control) ExerciseBalancingControl(order model.BalancingOrder, kwh, payment float64) error {
	if math.Abs(kwh) < epsilon {
		return nil
	}
	t, ok := c.tariffs.Get(order.TariffID)
	if !ok {
		c.log.Errorf("capacity: balancing order %d references unknown tariff %d", order.ID, order.TariffID)
		return fmt.Errorf("%w: %d", ErrNoSuchTariff, order.TariffID)
	}
	subs := c.tariffs.CommittedSubscriptions(t.ID())
	shares := make([]float64, len(subs))
	for i, s := range subs {
		acc := s.RemainingRegulationCapacity()
		if kwh > 0 {
			shares[i] = acc.Up
		} else {
			shares[i] = acc.Down
		}
	}
	available := floats.Sum(shares)
	if math.Abs(available) < epsilon {
		c.log.Warnf("capacity: no regulation capacity on tariff %d for %.3f kWh", t.ID(), kwh)
		return nil
	}
	for i, s := range subs {
		if shares[i] == 0 {
			continue
		}
		s.PostBalancingControl(-kwh * shares[i] / available)
	}

	ts := c.slots.Current()
	evt := model.BalancingControlEvent{Broker: t.Broker(), TariffID: t.ID(), KWh: kwh, Payment: payment, Timeslot: ts}
	c.ledger.PostBalancingControl(evt)
	if c.bus != nil {
		c.bus.Publish(events.BalancingEvent{
			TariffID: t.ID(), Broker: t.Broker(), KWh: kwh, Payment: payment,
			Subscriptions: len(subs), Time: c.slots.Now(),
		})
	}
	c.log.Debugw("balancing control exercised", map[string]any{
		"tariff": t.ID(), "broker": t.Broker(), "kwh": kwh, "available": available, "subscriptions": len(subs),
	})
	if err := c.transport.Send(t.Broker(), evt); err != nil {
		return fmt.Errorf("send balancing control for tariff %d: %w", t.ID(), err)
	}
	return nil
}

// RegulationCapacity sums the remaining capacity of every subscription of
// the order's tariff. Unknown tariffs yield zero capacity.
func (c *Control) RegulationCapacity(order model.BalancingOrder) tariff.RegulationAccumulator {
	var acc tariff.RegulationAccumulator
	if _, ok := c.tariffs.Get(order.TariffID); !ok {
		c.log.Errorf("capacity: balancing order %d references unknown tariff %d", order.ID, order.TariffID)
		return acc
	}
	for _, s := range c.tariffs.SubscriptionsFor(order.TariffID) {
		acc.Add(s.RemainingRegulationCapacity())
	}
	return acc
}

// PostEconomicControl queues a curtailment for its target timeslot.
func (c *Control) PostEconomicControl(evt model.EconomicControlEvent) error {
	if cur := c.slots.Current(); evt.Timeslot < cur {
		c.log.Warnf("capacity: economic control %d for timeslot %d arrived at %d", evt.ID, evt.Timeslot, cur)
		return fmt.Errorf("%w: %d < %d", ErrStale, evt.Timeslot, cur)
	}
	c.incoming.Push(evt)
	return nil
}

// Activate discards controls whose timeslot has passed and applies those
// for ts to every subscription of their tariff.
func (c *Control) Activate(ctx context.Context, ts int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, evt := range c.incoming.Drain() {
		c.schedule[evt.Timeslot] = append(c.schedule[evt.Timeslot], evt)
	}
	past := make([]int, 0)
	for slot := range c.schedule {
		if slot < ts {
			past = append(past, slot)
		}
	}
	sort.Ints(past)
	for _, slot := range past {
		for _, evt := range c.schedule[slot] {
			c.log.Warnf("capacity: economic control %d for timeslot %d expired", evt.ID, slot)
		}
		delete(c.schedule, slot)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, evt := range c.schedule[ts] {
		_ = monitoring.Guard("capacity.economic_control", func() error {
			if _, ok := c.tariffs.Get(evt.TariffID); !ok {
				c.log.Errorf("capacity: economic control %d references unknown tariff %d", evt.ID, evt.TariffID)
				return nil
			}
			for _, s := range c.tariffs.SubscriptionsFor(evt.TariffID) {
				s.PostRatioControl(evt.CurtailmentRatio)
			}
			return nil
		})
	}
	delete(c.schedule, ts)
	return nil
}

// Scheduled returns the number of controls waiting for a future timeslot.
func (c *Control) Scheduled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.incoming.Len()
	for _, evts := range c.schedule {
		n += len(evts)
	}
	return n
}
