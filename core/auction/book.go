package auction

import (
	"math"
	"sort"

	"github.com/kilianp07/gridmarket/core/model"
)

// epsilon below which a remaining quantity counts as consumed.
const epsilon = 1e-6

// entry is an order being matched. remaining is always positive.
type entry struct {
	order     model.Order
	remaining float64
}

func (e *entry) market() bool   { return e.order.LimitPrice == nil }
func (e *entry) limit() float64 { return *e.order.LimitPrice }

// book holds the two sides of one timeslot during a clearing cycle.
type book struct {
	timeslot int
	bids     []*entry
	asks     []*entry
}

func newBook(ts int, orders []model.Order) *book {
	b := &book{timeslot: ts}
	for _, o := range orders {
		e := &entry{order: o, remaining: math.Abs(o.MWh)}
		if o.MWh > 0 {
			b.bids = append(b.bids, e)
		} else {
			b.asks = append(b.asks, e)
		}
	}
	b.sort()
	return b
}

// sort puts market orders first, then asks by ascending and bids by
// descending limit price. Equal prices favour the larger quantity.
func (b *book) sort() {
	sort.SliceStable(b.asks, func(i, j int) bool {
		return better(b.asks[i], b.asks[j], func(x, y float64) bool { return x < y })
	})
	sort.SliceStable(b.bids, func(i, j int) bool {
		return better(b.bids[i], b.bids[j], func(x, y float64) bool { return x > y })
	})
}

func better(a, c *entry, priceFirst func(x, y float64) bool) bool {
	if a.market() != c.market() {
		return a.market()
	}
	if !a.market() && a.limit() != c.limit() {
		return priceFirst(a.limit(), c.limit())
	}
	return a.remaining > c.remaining
}

func crosses(bid, ask *entry) bool {
	return bid.market() || ask.market() || ask.limit() <= bid.limit()
}

// residual builds the published view of the unmatched orders.
func (b *book) residual() (bids, asks []model.OrderbookOrder) {
	bids = make([]model.OrderbookOrder, 0, len(b.bids))
	for _, e := range b.bids {
		if e.remaining > epsilon {
			bids = append(bids, model.OrderbookOrder{MWh: e.remaining, LimitPrice: e.order.LimitPrice})
		}
	}
	asks = make([]model.OrderbookOrder, 0, len(b.asks))
	for _, e := range b.asks {
		if e.remaining > epsilon {
			asks = append(asks, model.OrderbookOrder{MWh: -e.remaining, LimitPrice: e.order.LimitPrice})
		}
	}
	return bids, asks
}

// askPriceRange returns the lowest and highest ask limit prices.
func (b *book) askPriceRange() (lo, hi float64, ok bool) {
	for _, e := range b.asks {
		if e.market() || e.remaining <= epsilon {
			continue
		}
		if !ok {
			lo, hi, ok = e.limit(), e.limit(), true
			continue
		}
		lo = math.Min(lo, e.limit())
		hi = math.Max(hi, e.limit())
	}
	return lo, hi, ok
}
