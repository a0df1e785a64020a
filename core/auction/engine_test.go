package auction

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridmarket/core/broker"
	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/ledger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/timeslot"
	"github.com/kilianp07/gridmarket/infra/logger"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

type leg struct {
	broker string
	ts     int
	price  float64
	mwh    float64
}

type fakeLedger struct {
	mu   sync.Mutex
	legs []leg
}

func (f *fakeLedger) PostMarketTransaction(b string, ts int, price, mwh float64) {
	f.mu.Lock()
	f.legs = append(f.legs, leg{b, ts, price, mwh})
	f.mu.Unlock()
}

func (f *fakeLedger) PostTariffTransaction(ledger.TxKind, int64, string, string, int, float64, float64) {
}

func (f *fakeLedger) PostBalancingControl(model.BalancingControlEvent) {}

func (f *fakeLedger) net(b string) (mwh, cash float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.legs {
		if l.broker == b {
			mwh += l.mwh
			cash += l.price * math.Abs(l.mwh)
		}
	}
	return mwh, cash
}

// testConfig uses the reference margins without the seller cap.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultMargin = 0.2
	cfg.SellerMaxMargin = 0
	return cfg
}

type fixture struct {
	engine *Engine
	ledger *fakeLedger
	tr     *broker.MemoryTransport
	clock  *timeslot.Clock
	repo   *broker.MemoryRepo
}

func newFixture(t testing.TB, cfg Config, opts ...Option) fixture {
	clock, err := timeslot.NewClock(timeslot.Config{})
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	f := fixture{ledger: &fakeLedger{}, tr: broker.NewMemoryTransport(), clock: clock, repo: broker.NewMemoryRepo()}
	f.engine = NewEngine(cfg, clock, f.repo, f.ledger, f.tr, logger.NopLogger{}, opts...)
	return f
}

func (f fixture) submit(t *testing.T, orders ...model.Order) {
	t.Helper()
	for _, o := range orders {
		if st := f.engine.Submit(o); st.Status != model.OrderAccepted {
			t.Fatalf("order %+v rejected: %s", o, st.Status)
		}
	}
}

func ask(b string, ts int, mwh float64, price *float64) model.Order {
	return model.Order{Broker: b, Timeslot: ts, MWh: -mwh, LimitPrice: price}
}

func bid(b string, ts int, mwh float64, price *float64) model.Order {
	return model.Order{Broker: b, Timeslot: ts, MWh: mwh, LimitPrice: price}
}

func TestClearSingleCross(t *testing.T) {
	f := newFixture(t, testConfig())
	f.submit(t, ask("s1", 2, 1, model.Price(20)), bid("b1", 2, 1, model.Price(22)))
	require.NoError(t, f.engine.Activate(context.Background(), 0))

	trade, ok := f.engine.ClearedTrade(2)
	require.True(t, ok)
	assert.InDelta(t, 21.0, trade.ExecutionPrice, 1e-9)
	assert.InDelta(t, 1.0, trade.ExecutionMWh, 1e-9)

	mwh, cash := f.ledger.net("s1")
	assert.InDelta(t, -1.0, mwh, 1e-9)
	assert.InDelta(t, 21.0, cash, 1e-9)
	mwh, cash = f.ledger.net("b1")
	assert.InDelta(t, 1.0, mwh, 1e-9)
	assert.InDelta(t, -21.0, cash, 1e-9)

	assert.Len(t, f.tr.BroadcastsOf(model.KindOrderbook), 1)
	assert.Len(t, f.tr.BroadcastsOf(model.KindClearedTrade), 1)
	assert.InDelta(t, 1.0, f.engine.Position("b1", 2), 1e-9)
	assert.InDelta(t, -1.0, f.engine.Position("s1", 2), 1e-9)
}

func TestClearPartialBook(t *testing.T) {
	f := newFixture(t, testConfig())
	f.submit(t,
		ask("s1", 3, 0.9, model.Price(18)),
		ask("s2", 3, 1.0, model.Price(20)),
		ask("s3", 3, 1.0, model.Price(21.5)),
		bid("b1", 3, 1.4, model.Price(21)),
		bid("b2", 3, 0.6, model.Price(22)),
	)
	require.NoError(t, f.engine.Activate(context.Background(), 0))

	trade, ok := f.engine.ClearedTrade(3)
	require.True(t, ok)
	assert.InDelta(t, 1.9, trade.ExecutionMWh, 1e-9)
	assert.InDelta(t, 20.5, trade.ExecutionPrice, 1e-9)

	book, ok := f.engine.Orderbook(3)
	require.True(t, ok)
	require.NotNil(t, book.ClearingPrice)
	require.Len(t, book.Bids, 1)
	assert.InDelta(t, 0.1, book.Bids[0].MWh, 1e-9)
	assert.Equal(t, 21.0, *book.Bids[0].LimitPrice)
	require.Len(t, book.Asks, 1)
	assert.InDelta(t, -1.0, book.Asks[0].MWh, 1e-9)

	assert.InDelta(t, -0.9, f.engine.Position("s1", 3), 1e-9)
	assert.InDelta(t, 0.0, f.engine.Position("s3", 3), 1e-9)
	assert.Equal(t, 18.0, f.engine.MinAskPrices()[3])
	assert.Equal(t, 21.5, f.engine.MaxAskPrices()[3])
}

func TestClearMarketAsk(t *testing.T) {
	orders := []model.Order{
		ask("s1", 2, 0.9, model.Price(18)),
		ask("s2", 2, 1.0, nil),
		bid("b1", 2, 1.4, model.Price(21)),
		bid("b2", 2, 0.6, model.Price(22)),
	}
	cases := []struct {
		name      string
		maxMargin float64
		price     float64
	}{
		{"uncapped", 0, 19.5},
		{"capped", 0.05, 18.9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.SellerMaxMargin = tc.maxMargin
			f := newFixture(t, cfg)
			f.submit(t, orders...)
			require.NoError(t, f.engine.Activate(context.Background(), 0))
			trade, ok := f.engine.ClearedTrade(2)
			require.True(t, ok)
			assert.InDelta(t, 1.9, trade.ExecutionMWh, 1e-9)
			assert.InDelta(t, tc.price, trade.ExecutionPrice, 1e-9)
			mwh, _ := f.ledger.net("s2")
			assert.InDelta(t, -1.0, mwh, 1e-9)
			book, _ := f.engine.Orderbook(2)
			require.Len(t, book.Bids, 1)
			assert.InDelta(t, 0.1, book.Bids[0].MWh, 1e-9)
			assert.Empty(t, book.Asks)
		})
	}
}

func TestMarketOrderPricing(t *testing.T) {
	cases := []struct {
		name   string
		orders []model.Order
		price  float64
	}{
		{"market bid", []model.Order{ask("s", 1, 1, model.Price(20)), bid("b", 1, 1, nil)}, 24},
		{"market ask", []model.Order{ask("s", 1, 1, nil), bid("b", 1, 1, model.Price(21))}, 17.5},
		{"both market", []model.Order{ask("s", 1, 1, nil), bid("b", 1, 1, nil)}, 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, testConfig())
			f.submit(t, tc.orders...)
			require.NoError(t, f.engine.Activate(context.Background(), 0))
			trade, ok := f.engine.ClearedTrade(1)
			require.True(t, ok)
			assert.InDelta(t, tc.price, trade.ExecutionPrice, 1e-9)
		})
	}
}

func TestNoCrossPublishesEmptyBook(t *testing.T) {
	f := newFixture(t, testConfig())
	f.submit(t, ask("s1", 1, 1, model.Price(25)), bid("b1", 1, 1, model.Price(20)))
	require.NoError(t, f.engine.Activate(context.Background(), 0))

	book, ok := f.engine.Orderbook(1)
	require.True(t, ok)
	assert.Nil(t, book.ClearingPrice)
	assert.Len(t, book.Bids, 1)
	assert.Len(t, book.Asks, 1)
	assert.Empty(t, f.tr.BroadcastsOf(model.KindClearedTrade))
	assert.Empty(t, f.ledger.legs)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, testConfig())
	cases := []struct {
		name  string
		order model.Order
		want  model.OrderStatusCode
	}{
		{"nan quantity", bid("b", 1, math.NaN(), nil), model.OrderInvalidQuantity},
		{"infinite price", bid("b", 1, 1, model.Price(math.Inf(1))), model.OrderInvalidPrice},
		{"too small", bid("b", 1, 0.0005, nil), model.OrderTooSmall},
		{"running timeslot", bid("b", 0, 1, nil), model.OrderTimeslotClosed},
		{"beyond window", bid("b", 25, 1, nil), model.OrderTimeslotClosed},
		{"zero quantity", bid("b", 1, 0, nil), model.OrderAccepted},
		{"last open", ask("s", 24, 1, model.Price(3)), model.OrderAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := f.engine.Submit(tc.order)
			if st.Status != tc.want {
				t.Fatalf("expected %s, got %s (%s)", tc.want, st.Status, st.Message)
			}
			if st.OrderID == "" {
				t.Fatal("order id not assigned")
			}
		})
	}
	if err := f.engine.Validate(bid("b", 0, 1, nil)); !errors.Is(err, ErrTimeslotClosed) {
		t.Fatalf("expected ErrTimeslotClosed, got %v", err)
	}
	if n := f.engine.Pending(); n != 2 {
		t.Fatalf("expected 2 queued orders, got %d", n)
	}
	require.NoError(t, f.engine.Activate(context.Background(), 0))
	if _, ok := f.engine.Orderbook(1); ok {
		t.Fatal("zero-quantity order produced an order book")
	}
}

func TestOrdersForClosedTimeslotDropped(t *testing.T) {
	f := newFixture(t, testConfig())
	f.submit(t, ask("s1", 1, 1, model.Price(20)), bid("b1", 1, 1, model.Price(22)))
	f.clock.Advance()
	require.NoError(t, f.engine.Activate(context.Background(), 1))
	if _, ok := f.engine.ClearedTrade(1); ok {
		t.Fatal("closed timeslot was cleared")
	}
	assert.Equal(t, 0, f.engine.Pending())
}

func TestPositionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.PositionLimit = PositionLimitConfig{Capacity: 10, InitialFraction: 0.5}
	assert.InDelta(t, 10.0, cfg.positionLimit(0, 24), 1e-9)
	assert.InDelta(t, 5.0, cfg.positionLimit(23, 24), 1e-9)

	f := newFixture(t, cfg)
	f.repo.Add(broker.Broker{ID: "genco", Wholesale: true, Enabled: true})
	f.repo.Add(broker.Broker{ID: "retail", Enabled: true})

	f.submit(t, ask("genco", 1, 50, model.Price(10)), bid("retail", 1, 12, model.Price(30)))
	require.NoError(t, f.engine.Activate(context.Background(), 0))
	assert.InDelta(t, 10.0, f.engine.Position("retail", 1), 1e-9)
	assert.InDelta(t, -10.0, f.engine.Position("genco", 1), 1e-9)

	f.submit(t, ask("genco", 1, 50, model.Price(10)), bid("retail", 1, 3, model.Price(30)))
	require.NoError(t, f.engine.Activate(context.Background(), 0))
	assert.InDelta(t, 10.0, f.engine.Position("retail", 1), 1e-9)
	if book, _ := f.engine.Orderbook(1); book.ClearingPrice != nil {
		t.Fatal("retail broker traded past its limit")
	}

	f.submit(t, bid("genco", 24, 50, model.Price(40)), ask("retail", 24, 8, model.Price(5)))
	require.NoError(t, f.engine.Activate(context.Background(), 0))
	assert.InDelta(t, -5.0, f.engine.Position("retail", 24), 1e-9)
}

func TestDefaultConfigLimitsRetailPosition(t *testing.T) {
	cfg := DefaultConfig()
	f := newFixture(t, cfg)
	f.repo.Add(broker.Broker{ID: "genco", Wholesale: true, Enabled: true})
	f.repo.Add(broker.Broker{ID: "retail", Enabled: true})

	f.submit(t, ask("genco", 1, 2000, model.Price(10)), bid("retail", 1, 1000, model.Price(30)))
	require.NoError(t, f.engine.Activate(context.Background(), 0))
	assert.InDelta(t, cfg.PositionLimit.Capacity, f.engine.Position("retail", 1), 1e-9)
	assert.InDelta(t, -cfg.PositionLimit.Capacity, f.engine.Position("genco", 1), 1e-9)
}

func TestPositionLimitDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.PositionLimit.Capacity = 0
	f := newFixture(t, cfg)
	f.submit(t, ask("s", 1, 500, model.Price(10)), bid("b", 1, 500, model.Price(30)))
	require.NoError(t, f.engine.Activate(context.Background(), 0))
	assert.InDelta(t, 500.0, f.engine.Position("b", 1), 1e-9)
	assert.Len(t, f.engine.Positions("b"), 1)
}

func TestClearingEventPublished(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sub := bus.Subscribe()
	f := newFixture(t, testConfig(), WithEventBus(bus))
	f.submit(t, ask("s1", 2, 1, model.Price(20)), bid("b1", 2, 1, model.Price(22)))
	require.NoError(t, f.engine.Activate(context.Background(), 0))

	select {
	case evt := <-sub:
		ce, ok := evt.(events.ClearingEvent)
		require.True(t, ok, "unexpected event %T", evt)
		assert.Equal(t, 2, ce.Timeslot)
		require.NotNil(t, ce.Price)
		assert.InDelta(t, 21.0, *ce.Price, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("no clearing event")
	}
}

func TestActivateHonoursContext(t *testing.T) {
	f := newFixture(t, testConfig())
	f.submit(t, ask("s1", 2, 1, model.Price(20)), bid("b1", 2, 1, model.Price(22)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.engine.Activate(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	bad := DefaultConfig()
	bad.SellerSurplusRatio = 1.5
	assert.Error(t, bad.Validate())
	bad = DefaultConfig()
	bad.PositionLimit = PositionLimitConfig{Capacity: 5}
	assert.Error(t, bad.Validate())
}
