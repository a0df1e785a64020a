package capacity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kilianp07/gridmarket/core/broker"
	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/ledger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/tariff"
	"github.com/kilianp07/gridmarket/core/timeslot"
	"github.com/kilianp07/gridmarket/infra/logger"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

type controlLedger struct {
	controls []model.BalancingControlEvent
}

func (l *controlLedger) PostMarketTransaction(string, int, float64, float64) {}
func (l *controlLedger) PostTariffTransaction(ledger.TxKind, int64, string, string, int, float64, float64) {
}
func (l *controlLedger) PostBalancingControl(evt model.BalancingControlEvent) {
	l.controls = append(l.controls, evt)
}

type fixture struct {
	c     *Control
	repo  *tariff.Repo
	led   *controlLedger
	tr    *broker.MemoryTransport
	clock *timeslot.Clock
	tf    *tariff.Tariff
}

func newFixture(t testing.TB, opts ...Option) fixture {
	clock, err := timeslot.NewClock(timeslot.Config{})
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	f := fixture{repo: tariff.NewRepo(), led: &controlLedger{}, tr: broker.NewMemoryTransport(), clock: clock}
	f.tf = tariff.New(model.TariffSpecification{
		ID: 1, Broker: "b1", PowerType: model.BatteryStorage,
		Rates: []model.Rate{model.NewRate(10, -0.1)},
	})
	if err := f.repo.Add(f.tf); err != nil {
		t.Fatalf("add tariff: %v", err)
	}
	f.c = NewControl(f.repo, clock, f.led, f.tr, logger.NopLogger{}, opts...)
	return f
}

func (f fixture) subscribe(customer string, n int, acc tariff.RegulationAccumulator) *tariff.Subscription {
	s := f.repo.FindOrCreateSubscription(customer, f.tf)
	s.Subscribe(n, time.Time{})
	s.SetRegulationCapacity(acc)
	return s
}

var order = model.BalancingOrder{ID: 1, Broker: "b1", TariffID: 1, ExerciseRatio: 1}

func TestExerciseSplitsProportionally(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sub := bus.Subscribe()
	f := newFixture(t, WithEventBus(bus))
	a := f.subscribe("a", 10, tariff.RegulationAccumulator{Up: 30, Down: -10})
	b := f.subscribe("b", 5, tariff.RegulationAccumulator{Up: 10, Down: -30})
	idle := f.subscribe("idle", 2, tariff.RegulationAccumulator{})
	empty := f.repo.FindOrCreateSubscription("empty", f.tf)
	empty.SetRegulationCapacity(tariff.RegulationAccumulator{Up: 50})

	require.NoError(t, f.c.ExerciseBalancingControl(order, 20, 3.5))
	assert.InDelta(t, -15.0, a.Regulation(), 1e-9)
	assert.InDelta(t, -5.0, b.Regulation(), 1e-9)
	assert.Zero(t, idle.Regulation())
	assert.Zero(t, empty.Regulation(), "uncommitted subscriptions are skipped")
	assert.InDelta(t, 15.0, a.RemainingRegulationCapacity().Up, 1e-9)

	require.Len(t, f.led.controls, 1)
	assert.Equal(t, model.BalancingControlEvent{Broker: "b1", TariffID: 1, KWh: 20, Payment: 3.5}, f.led.controls[0])
	sent := f.tr.SentTo("b1")
	require.Len(t, sent, 1)
	assert.Equal(t, model.KindBalancingControl, sent[0].Kind())

	select {
	case evt := <-sub:
		be, ok := evt.(events.BalancingEvent)
		require.True(t, ok)
		assert.Equal(t, 3, be.Subscriptions)
	case <-time.After(time.Second):
		t.Fatal("no balancing event")
	}

	require.NoError(t, f.c.ExerciseBalancingControl(order, -8, 0))
	assert.InDelta(t, -15.0+2, a.Regulation(), 1e-9)
	assert.InDelta(t, -5.0+6, b.Regulation(), 1e-9)
}

func TestExerciseEdgeCases(t *testing.T) {
	f := newFixture(t)
	f.subscribe("a", 1, tariff.RegulationAccumulator{Down: -5})

	require.NoError(t, f.c.ExerciseBalancingControl(order, 1e-9, 0))
	require.NoError(t, f.c.ExerciseBalancingControl(order, 4, 0), "exhausted capacity is not an error")
	assert.Empty(t, f.led.controls)

	missing := order
	missing.TariffID = 99
	err := f.c.ExerciseBalancingControl(missing, 4, 0)
	assert.True(t, errors.Is(err, ErrNoSuchTariff))
}

func TestRegulationCapacity(t *testing.T) {
	f := newFixture(t)
	f.subscribe("a", 1, tariff.RegulationAccumulator{Up: 3, Down: -1})
	f.subscribe("b", 1, tariff.RegulationAccumulator{Up: 2, Down: -4})
	assert.Equal(t, tariff.RegulationAccumulator{Up: 5, Down: -5}, f.c.RegulationCapacity(order))

	missing := order
	missing.TariffID = 99
	assert.True(t, f.c.RegulationCapacity(missing).IsZero())
}

func TestEconomicControlLifecycle(t *testing.T) {
	f := newFixture(t)
	a := f.subscribe("a", 1, tariff.RegulationAccumulator{})
	f.clock.Set(5)

	err := f.c.PostEconomicControl(model.EconomicControlEvent{ID: 1, TariffID: 1, CurtailmentRatio: 0.4, Timeslot: 4})
	assert.ErrorIs(t, err, ErrStale)

	require.NoError(t, f.c.PostEconomicControl(model.EconomicControlEvent{ID: 2, TariffID: 1, CurtailmentRatio: 0.4, Timeslot: 6}))
	require.NoError(t, f.c.PostEconomicControl(model.EconomicControlEvent{ID: 3, TariffID: 1, CurtailmentRatio: 0.9, Timeslot: 5}))
	require.NoError(t, f.c.PostEconomicControl(model.EconomicControlEvent{ID: 4, TariffID: 99, CurtailmentRatio: 0.9, Timeslot: 6}))
	assert.Equal(t, 3, f.c.Scheduled())

	require.NoError(t, f.c.Activate(context.Background(), 5))
	assert.Equal(t, 0.9, a.PendingRatio())
	assert.Equal(t, 2, f.c.Scheduled())

	f.clock.Set(7)
	require.NoError(t, f.c.Activate(context.Background(), 7))
	assert.Equal(t, 0.9, a.PendingRatio(), "late controls are discarded")
	assert.Equal(t, 0, f.c.Scheduled())
}

// The deltas of a split sum to the negated request and skip subscriptions
// without capacity.
func TestProportionalSplitProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		n := rapid.IntRange(1, 6).Draw(rt, "subs")
		subs := make([]*tariff.Subscription, n)
		caps := make([]float64, n)
		for i := range subs {
			caps[i] = rapid.SampledFrom([]float64{0, 1, 2.5, 10, 40}).Draw(rt, fmt.Sprintf("up%d", i))
			subs[i] = f.subscribe(fmt.Sprintf("c%d", i), 1, tariff.RegulationAccumulator{Up: caps[i]})
		}
		total := 0.0
		for _, v := range caps {
			total += v
		}
		kwh := rapid.Float64Range(0.01, 100).Draw(rt, "kwh")
		if err := f.c.ExerciseBalancingControl(order, kwh, 0); err != nil {
			rt.Fatalf("exercise: %v", err)
		}
		sum := 0.0
		for i, s := range subs {
			d := s.Regulation()
			sum += d
			if caps[i] == 0 && d != 0 {
				rt.Fatalf("subscription %d without capacity got %.6f", i, d)
			}
		}
		if total == 0 {
			if sum != 0 || len(f.led.controls) != 0 {
				rt.Fatalf("exhausted capacity still exercised: %.6f", sum)
			}
			return
		}
		if math.Abs(sum+kwh) > 1e-6 {
			rt.Fatalf("deltas sum to %.9f, want %.9f", sum, -kwh)
		}
	})
}
