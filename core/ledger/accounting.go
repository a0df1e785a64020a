package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kilianp07/gridmarket/core/logger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/timeslot"
	"github.com/kilianp07/gridmarket/internal/queue"
)

// Accounting implements Ledger. Postings are buffered as they arrive and
// committed to every store when the ledger phase runs. Each timeslot is
// committed at most once.
type Accounting struct {
	clock   timeslot.Repo
	stores  []Store
	log     logger.Logger
	pending *queue.Queue[Posting]

	mu        sync.Mutex
	committed int
	started   bool
	balances  map[string]decimal.Decimal
}

// NewAccounting creates a ledger committing to stores.
func NewAccounting(clock timeslot.Repo, log logger.Logger, stores ...Store) *Accounting {
	return &Accounting{
		clock:    clock,
		stores:   stores,
		log:      log,
		pending:  queue.New[Posting](),
		balances: make(map[string]decimal.Decimal),
	}
}

func (a *Accounting) post(p Posting) {
	p.ID = uuid.NewString()
	p.Posted = a.clock.Now()
	a.pending.Push(p)
}

func (a *Accounting) PostMarketTransaction(broker string, ts int, price, mwh float64) {
	a.post(Posting{
		Type:     PostingMarket,
		Timeslot: ts,
		Broker:   broker,
		Quantity: mwh,
		Price:    price,
		Cash:     price * math.Abs(mwh),
	})
}

func (a *Accounting) PostTariffTransaction(kind TxKind, tariffID int64, broker, customer string, count int, kwh, charge float64) {
	a.post(Posting{
		Type:     PostingTariff,
		Timeslot: a.clock.Current(),
		Broker:   broker,
		Kind:     kind,
		TariffID: tariffID,
		Customer: customer,
		Count:    count,
		Quantity: kwh,
		Cash:     charge,
	})
}

func (a *Accounting) PostBalancingControl(evt model.BalancingControlEvent) {
	a.post(Posting{
		Type:     PostingBalancing,
		Timeslot: evt.Timeslot,
		Broker:   evt.Broker,
		Kind:     TxRegulation,
		TariffID: evt.TariffID,
		Quantity: evt.KWh,
		Cash:     evt.Payment,
	})
}

// Pending returns the number of postings waiting for the ledger phase.
func (a *Accounting) Pending() int { return a.pending.Len() }

// Activate commits the postings buffered so far. A second activation for an
// already committed timeslot leaves them buffered for the next one.
func (a *Accounting) Activate(ctx context.Context, ts int) error {
	a.mu.Lock()
	if a.started && ts <= a.committed {
		a.mu.Unlock()
		a.log.Warnf("ledger: timeslot %d already committed", ts)
		return nil
	}
	a.started = true
	a.committed = ts
	a.mu.Unlock()

	batch := a.pending.Drain()
	if len(batch) == 0 {
		return nil
	}
	a.mu.Lock()
	for _, p := range batch {
		a.balances[p.Broker] = a.balances[p.Broker].Add(decimal.NewFromFloat(p.Cash))
	}
	a.mu.Unlock()

	var errs []error
	for _, s := range a.stores {
		if err := s.Append(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	a.log.Debugw("ledger committed", map[string]any{"timeslot": ts, "postings": len(batch)})
	return errors.Join(errs...)
}

// Balance returns a broker's cumulative committed cash.
func (a *Accounting) Balance(broker string) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances[broker]
}

// Balances returns the committed cash of every broker that has postings.
func (a *Accounting) Balances() map[string]decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(a.balances))
	for k, v := range a.balances {
		out[k] = v
	}
	return out
}

// Query answers q from the first store that can be read back.
func (a *Accounting) Query(ctx context.Context, q Query) ([]Posting, error) {
	for _, s := range a.stores {
		out, err := s.Query(ctx, q)
		if errors.Is(err, ErrWriteOnly) {
			continue
		}
		return out, err
	}
	return nil, ErrWriteOnly
}

// Close closes every store.
func (a *Accounting) Close() error {
	var errs []error
	for _, s := range a.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
