package auction

import "math"

// positionLimit returns the absolute position bound for the timeslot at
// offset within a trading window of the given size.
func (c Config) positionLimit(offset, window int) float64 {
	final := c.PositionLimit.Capacity
	initial := final * c.PositionLimit.InitialFraction
	if window <= 1 {
		return final
	}
	return final - float64(offset)*(final-initial)/float64(window-1)
}

// applyPositionLimits shrinks the orders of retail brokers so that no
// fill can push their position past the limit. Orders are clipped in book
// order and dropped when nothing remains.
func (e *Engine) applyPositionLimits(b *book, offset, window int) {
	if e.cfg.PositionLimit.Capacity <= 0 {
		return
	}
	limit := e.cfg.positionLimit(offset, window)

	e.mu.RLock()
	bidRoom := make(map[string]float64)
	askRoom := make(map[string]float64)
	for _, s := range [][]*entry{b.bids, b.asks} {
		for _, en := range s {
			id := en.order.Broker
			if _, seen := bidRoom[id]; seen {
				continue
			}
			pos := e.positions[positionKey{id, b.timeslot}]
			bidRoom[id] = math.Max(0, limit-pos)
			askRoom[id] = math.Max(0, limit+pos)
		}
	}
	e.mu.RUnlock()

	b.bids = e.clip(b.bids, bidRoom, limit)
	b.asks = e.clip(b.asks, askRoom, limit)
}

func (e *Engine) clip(side []*entry, room map[string]float64, limit float64) []*entry {
	kept := side[:0]
	for _, en := range side {
		id := en.order.Broker
		if br, ok := e.brokers.Get(id); ok && br.Wholesale {
			kept = append(kept, en)
			continue
		}
		if en.remaining > room[id] {
			e.log.Debugw("order clipped by position limit", map[string]any{
				"broker": id, "timeslot": en.order.Timeslot, "order": en.order.ID,
				"mwh": en.remaining, "allowed": room[id], "limit": limit,
			})
			en.remaining = room[id]
		}
		room[id] -= en.remaining
		if en.remaining > epsilon {
			kept = append(kept, en)
		}
	}
	return kept
}
