// Package scenarios replays scripted broker sessions against a complete
// in-process market and checks the outcome.
package scenarios

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/kilianp07/gridmarket/app"
	"github.com/kilianp07/gridmarket/config"
	"github.com/kilianp07/gridmarket/core/broker"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/tariff"
)

const priceTolerance = 1e-6

// Result is the observable state of a market after a replay.
type Result struct {
	Trades   map[int]model.ClearedTrade
	Tariffs  map[int64]tariff.State
	Balances map[string]decimal.Decimal
	Rejected int
}

// Replay runs sc on a fresh service with an in-memory transport.
func Replay(ctx context.Context, sc *Scenario) (*Result, error) {
	cfg := config.Default()
	cfg.Logging.Level = "warn"
	for _, id := range sc.Brokers {
		cfg.Brokers = append(cfg.Brokers, broker.Broker{ID: id, Enabled: true})
	}
	if sc.SellerMaxMargin != nil {
		cfg.Auction.SellerMaxMargin = *sc.SellerMaxMargin
	}
	tr := broker.NewMemoryTransport()
	svc, err := app.New(&cfg, app.WithTransport(tr))
	if err != nil {
		return nil, err
	}
	defer func() { _ = svc.Close() }()

	traded := make(map[int]bool)
	for _, step := range sc.Steps {
		for _, o := range step.Orders {
			traded[o.Timeslot] = true
			if err := svc.Router.Dispatch(o.Broker, o.ToModel()); err != nil {
				return nil, err
			}
		}
		for _, d := range step.Tariffs {
			if err := svc.Router.Dispatch(d.Broker, d.ToModel()); err != nil {
				return nil, err
			}
		}
		for _, r := range step.Revokes {
			if err := svc.Router.Dispatch(r.Broker, r.ToModel()); err != nil {
				return nil, err
			}
		}
		if err := svc.RunTimeslot(ctx, step.Timeslot); err != nil {
			return nil, fmt.Errorf("timeslot %d: %w", step.Timeslot, err)
		}
	}

	res := &Result{
		Trades:   make(map[int]model.ClearedTrade),
		Tariffs:  make(map[int64]tariff.State),
		Balances: svc.Ledger.Balances(),
	}
	for ts := range traded {
		if trade, ok := svc.Engine.ClearedTrade(ts); ok {
			res.Trades[ts] = trade
		}
	}
	for _, t := range svc.Tariffs.List() {
		res.Tariffs[t.ID()] = t.State()
	}
	for _, id := range sc.Brokers {
		res.Rejected += rejections(tr.SentTo(id))
	}
	return res, nil
}

func rejections(acks []model.Message) int {
	n := 0
	for _, m := range acks {
		switch st := m.(type) {
		case model.OrderStatus:
			if st.Status != model.OrderAccepted {
				n++
			}
		case model.TariffStatus:
			if !st.OK() {
				n++
			}
		}
	}
	return n
}

// Verify compares r with the expected outcome.
func (r *Result) Verify(exp Expected) error {
	var errs []error
	for _, want := range exp.Trades {
		got, ok := r.Trades[want.Timeslot]
		if !ok {
			errs = append(errs, fmt.Errorf("timeslot %d: no trade", want.Timeslot))
			continue
		}
		if math.Abs(got.ExecutionMWh-want.MWh) > priceTolerance || math.Abs(got.ExecutionPrice-want.Price) > priceTolerance {
			errs = append(errs, fmt.Errorf("timeslot %d: traded %.4f MWh at %.4f, want %.4f at %.4f",
				want.Timeslot, got.ExecutionMWh, got.ExecutionPrice, want.MWh, want.Price))
		}
	}
	for _, ts := range exp.NoTrade {
		if _, ok := r.Trades[ts]; ok {
			errs = append(errs, fmt.Errorf("timeslot %d: unexpected trade", ts))
		}
	}
	for id, want := range exp.Tariffs {
		if got := r.Tariffs[id]; string(got) != want {
			errs = append(errs, fmt.Errorf("tariff %d: state %q, want %q", id, got, want))
		}
	}
	if r.Rejected != exp.Rejected {
		errs = append(errs, fmt.Errorf("%d rejected messages, want %d", r.Rejected, exp.Rejected))
	}
	return errors.Join(errs...)
}

// TradedTimeslots returns the cleared timeslots in order.
func (r *Result) TradedTimeslots() []int {
	out := make([]int, 0, len(r.Trades))
	for ts := range r.Trades {
		out = append(out, ts)
	}
	sort.Ints(out)
	return out
}
