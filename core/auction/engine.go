// Package auction implements the wholesale periodic double auction. Orders
// are collected between clearings and every enabled timeslot is cleared at
// a single uniform price once per simulated timeslot.
package auction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kilianp07/gridmarket/core/broker"
	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/core/ledger"
	"github.com/kilianp07/gridmarket/core/logger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/timeslot"
	"github.com/kilianp07/gridmarket/internal/eventbus"
	"github.com/kilianp07/gridmarket/internal/queue"
)

var (
	ErrInvalidQuantity  = errors.New("order quantity is not a finite number")
	ErrInvalidPrice     = errors.New("order limit price is not a finite number")
	ErrQuantityTooSmall = errors.New("order quantity below minimum")
	ErrTimeslotClosed   = errors.New("timeslot not open for trading")
)

type positionKey struct {
	broker   string
	timeslot int
}

// Engine collects orders and clears them once per timeslot.
type Engine struct {
	cfg       Config
	slots     timeslot.Repo
	brokers   broker.Repo
	ledger    ledger.Ledger
	transport broker.Transport
	bus       eventbus.EventBus
	log       logger.Logger

	incoming *queue.Queue[model.Order]

	mu        sync.RWMutex
	positions map[positionKey]float64
	minAsk    map[int]float64
	maxAsk    map[int]float64
	books     map[int]model.Orderbook
	trades    map[int]model.ClearedTrade
}

// Option customizes an Engine.
type Option func(*Engine)

// WithEventBus publishes a ClearingEvent for every cleared timeslot.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// NewEngine creates a clearing engine.
func NewEngine(cfg Config, slots timeslot.Repo, brokers broker.Repo, led ledger.Ledger, tr broker.Transport, log logger.Logger, opts ...Option) *Engine {
	if tr == nil {
		tr = broker.NopTransport{}
	}
	e := &Engine{
		cfg:       cfg,
		slots:     slots,
		brokers:   brokers,
		ledger:    led,
		transport: tr,
		log:       log,
		incoming:  queue.New[model.Order](),
		positions: make(map[positionKey]float64),
		minAsk:    make(map[int]float64),
		maxAsk:    make(map[int]float64),
		books:     make(map[int]model.Orderbook),
		trades:    make(map[int]model.ClearedTrade),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Validate checks an order without queueing it.
func (e *Engine) Validate(o model.Order) error {
	if math.IsNaN(o.MWh) || math.IsInf(o.MWh, 0) {
		return ErrInvalidQuantity
	}
	if o.LimitPrice != nil && (math.IsNaN(*o.LimitPrice) || math.IsInf(*o.LimitPrice, 0)) {
		return ErrInvalidPrice
	}
	if o.MWh != 0 && math.Abs(o.MWh) < e.cfg.MinQuantity {
		return fmt.Errorf("%w: |%.6f| < %.6f", ErrQuantityTooSmall, o.MWh, e.cfg.MinQuantity)
	}
	if !e.slots.IsEnabled(o.Timeslot) {
		return fmt.Errorf("%w: %d", ErrTimeslotClosed, o.Timeslot)
	}
	return nil
}

// Submit validates an order and queues it for the next clearing. The
// returned status is the broker's acknowledgment.
func (e *Engine) Submit(o model.Order) model.OrderStatus {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	st := model.OrderStatus{Broker: o.Broker, OrderID: o.ID, Status: model.OrderAccepted}
	if err := e.Validate(o); err != nil {
		st.Status = statusOf(err)
		st.Message = err.Error()
		e.log.Warnw("order rejected", map[string]any{
			"broker": o.Broker, "order": o.ID, "timeslot": o.Timeslot, "reason": err.Error(),
		})
		e.publish(events.RejectionEvent{Broker: o.Broker, Kind: string(model.KindOrder), Reason: string(st.Status), Time: e.slots.Now()})
		return st
	}
	e.incoming.Push(o)
	return st
}

func statusOf(err error) model.OrderStatusCode {
	switch {
	case errors.Is(err, ErrInvalidPrice):
		return model.OrderInvalidPrice
	case errors.Is(err, ErrQuantityTooSmall):
		return model.OrderTooSmall
	case errors.Is(err, ErrTimeslotClosed):
		return model.OrderTimeslotClosed
	default:
		return model.OrderInvalidQuantity
	}
}

// Activate clears every enabled timeslot that received orders.
func (e *Engine) Activate(ctx context.Context, ts int) error {
	orders := e.incoming.Drain()
	byTimeslot := make(map[int][]model.Order)
	for _, o := range orders {
		if o.MWh == 0 {
			continue
		}
		byTimeslot[o.Timeslot] = append(byTimeslot[o.Timeslot], o)
	}

	e.mu.Lock()
	e.minAsk = make(map[int]float64)
	e.maxAsk = make(map[int]float64)
	e.mu.Unlock()

	enabled := e.slots.Enabled()
	open := make(map[int]bool, len(enabled))
	var errs []error
	for offset, slot := range enabled {
		open[slot] = true
		os, ok := byTimeslot[slot]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.clear(slot, offset, len(enabled), os); err != nil {
			errs = append(errs, err)
		}
	}
	for slot, os := range byTimeslot {
		if !open[slot] {
			e.log.Warnf("dropping %d orders for closed timeslot %d", len(os), slot)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) clear(ts, offset, window int, orders []model.Order) error {
	b := newBook(ts, orders)
	e.applyPositionLimits(b, offset, window)

	if lo, hi, ok := b.askPriceRange(); ok {
		e.mu.Lock()
		e.minAsk[ts] = lo
		e.maxAsk[ts] = hi
		e.mu.Unlock()
	}
	nBids, nAsks := len(b.bids), len(b.asks)

	type fill struct {
		seller, buyer string
		mwh           float64
	}
	var fills []fill
	var lastBid, lastAsk *entry
	var totalMWh float64
	bids, asks := b.bids, b.asks
	for len(bids) > 0 && len(asks) > 0 {
		bid, ask := bids[0], asks[0]
		if !crosses(bid, ask) {
			break
		}
		q := math.Min(bid.remaining, ask.remaining)
		fills = append(fills, fill{seller: ask.order.Broker, buyer: bid.order.Broker, mwh: q})
		lastBid, lastAsk = bid, ask
		totalMWh += q
		bid.remaining -= q
		ask.remaining -= q
		if bid.remaining <= epsilon {
			bids = bids[1:]
		}
		if ask.remaining <= epsilon {
			asks = asks[1:]
		}
	}

	now := e.slots.Now()
	book := model.Orderbook{Timeslot: ts, DateExecuted: now}
	book.Bids, book.Asks = b.residual()

	var price *float64
	if totalMWh > 0 {
		p := e.cfg.clearingPrice(lastAsk, lastBid)
		price = &p
		book.ClearingPrice = price
		e.mu.Lock()
		for _, f := range fills {
			e.ledger.PostMarketTransaction(f.seller, ts, p, -f.mwh)
			e.ledger.PostMarketTransaction(f.buyer, ts, -p, f.mwh)
			e.positions[positionKey{f.seller, ts}] -= f.mwh
			e.positions[positionKey{f.buyer, ts}] += f.mwh
		}
		e.mu.Unlock()
		e.log.Infof("cleared timeslot %d: %.3f MWh at %.3f", ts, totalMWh, p)
	} else {
		e.log.Debugf("timeslot %d: no trade among %d bids and %d asks", ts, nBids, nAsks)
	}

	e.mu.Lock()
	e.books[ts] = book
	e.mu.Unlock()

	var errs []error
	if err := e.transport.Broadcast(book); err != nil {
		errs = append(errs, fmt.Errorf("broadcast orderbook %d: %w", ts, err))
	}
	if totalMWh > 0 {
		trade := model.ClearedTrade{Timeslot: ts, ExecutionMWh: totalMWh, ExecutionPrice: *price, DateExecuted: now}
		e.mu.Lock()
		e.trades[ts] = trade
		e.mu.Unlock()
		if err := e.transport.Broadcast(trade); err != nil {
			errs = append(errs, fmt.Errorf("broadcast cleared trade %d: %w", ts, err))
		}
	}
	e.publish(events.ClearingEvent{Timeslot: ts, MWh: totalMWh, Price: price, Bids: nBids, Asks: nAsks, Time: now})
	return errors.Join(errs...)
}

func (e *Engine) publish(evt eventbus.Event) {
	if e.bus != nil {
		e.bus.Publish(evt)
	}
}

// Position returns a broker's net cleared energy for a timeslot.
func (e *Engine) Position(brokerID string, ts int) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.positions[positionKey{brokerID, ts}]
}

// Positions lists a broker's non-zero positions ordered by timeslot.
func (e *Engine) Positions(brokerID string) []model.MarketPosition {
	e.mu.RLock()
	out := make([]model.MarketPosition, 0)
	for k, v := range e.positions {
		if k.broker == brokerID && v != 0 {
			out = append(out, model.MarketPosition{Broker: brokerID, Timeslot: k.timeslot, OverallBalance: v})
		}
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timeslot < out[j].Timeslot })
	return out
}

// Orderbook returns the last published order book for ts.
func (e *Engine) Orderbook(ts int) (model.Orderbook, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.books[ts]
	return b, ok
}

// ClearedTrade returns the trade summary for ts if anything traded.
func (e *Engine) ClearedTrade(ts int) (model.ClearedTrade, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.trades[ts]
	return t, ok
}

// MinAskPrices returns the lowest ask limit price per timeslot seen in the
// most recent clearing.
func (e *Engine) MinAskPrices() map[int]float64 { return e.copyPrices(e.minAsk) }

// MaxAskPrices returns the highest ask limit price per timeslot seen in the
// most recent clearing.
func (e *Engine) MaxAskPrices() map[int]float64 { return e.copyPrices(e.maxAsk) }

func (e *Engine) copyPrices(src map[int]float64) map[int]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[int]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Pending returns the number of orders waiting for the next clearing.
func (e *Engine) Pending() int { return e.incoming.Len() }
