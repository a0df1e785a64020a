package auction

import "fmt"

// Config holds the clearing parameters. It is read once at game start.
type Config struct {
	// MinQuantity is the smallest absolute order size accepted, in MWh.
	MinQuantity float64 `json:"min_quantity"`
	// SellerSurplusRatio splits the bid/ask spread: 0 prices at the ask,
	// 1 at the bid.
	SellerSurplusRatio float64 `json:"seller_surplus_ratio"`
	// DefaultMargin adjusts the counterparty's limit when one side is a
	// market order.
	DefaultMargin float64 `json:"default_margin"`
	// SellerMaxMargin caps a limit/limit price at this fraction above the
	// ask. Zero disables the cap.
	SellerMaxMargin float64 `json:"seller_max_margin"`
	// DefaultClearingPrice prices a market/market match.
	DefaultClearingPrice float64 `json:"default_clearing_price"`
	// PositionLimit bounds each retail broker's net position per timeslot.
	PositionLimit PositionLimitConfig `json:"position_limit"`
}

// PositionLimitConfig interpolates a broker's position limit from
// InitialFraction*Capacity at the far edge of the trading window up to
// Capacity for the nearest timeslot. A zero Capacity disables the limit.
type PositionLimitConfig struct {
	Capacity        float64 `json:"capacity"`
	InitialFraction float64 `json:"initial_fraction"`
}

// DefaultConfig returns the standard clearing parameters.
func DefaultConfig() Config {
	return Config{
		MinQuantity:          0.001,
		SellerSurplusRatio:   0.5,
		DefaultMargin:        0.05,
		SellerMaxMargin:      0.05,
		DefaultClearingPrice: 40.0,
		PositionLimit:        PositionLimitConfig{Capacity: 143, InitialFraction: 90.0 / 143.0},
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.MinQuantity < 0 {
		return fmt.Errorf("auction: min_quantity must not be negative")
	}
	if c.SellerSurplusRatio < 0 || c.SellerSurplusRatio > 1 {
		return fmt.Errorf("auction: seller_surplus_ratio %.3f outside [0,1]", c.SellerSurplusRatio)
	}
	if c.DefaultMargin < 0 || c.SellerMaxMargin < 0 {
		return fmt.Errorf("auction: margins must not be negative")
	}
	if c.PositionLimit.Capacity < 0 {
		return fmt.Errorf("auction: position_limit.capacity must not be negative")
	}
	if c.PositionLimit.Capacity > 0 && (c.PositionLimit.InitialFraction <= 0 || c.PositionLimit.InitialFraction > 1) {
		return fmt.Errorf("auction: position_limit.initial_fraction %.3f outside (0,1]", c.PositionLimit.InitialFraction)
	}
	return nil
}
