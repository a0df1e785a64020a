package auction

import "math"

// clearingPrice derives the uniform price from the last matched pair.
func (c Config) clearingPrice(ask, bid *entry) float64 {
	switch {
	case ask.market() && bid.market():
		return c.DefaultClearingPrice
	case ask.market():
		return favourBuyer(bid.limit(), c.DefaultMargin)
	case bid.market():
		return favourSeller(ask.limit(), c.DefaultMargin)
	}
	a, b := ask.limit(), bid.limit()
	p := a + c.SellerSurplusRatio*(b-a)
	if c.SellerMaxMargin > 0 {
		p = math.Min(p, a+math.Abs(a)*c.SellerMaxMargin)
	}
	return p
}

// favourBuyer moves p down by margin m.
func favourBuyer(p, m float64) float64 {
	if p >= 0 {
		return p / (1 + m)
	}
	return p * (1 + m)
}

// favourSeller moves p up by margin m.
func favourSeller(p, m float64) float64 {
	if p >= 0 {
		return p * (1 + m)
	}
	return p / (1 + m)
}
