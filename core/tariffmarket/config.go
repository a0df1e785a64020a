package tariffmarket

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// FeeConfig bounds a per-game fee. A non-nil Fixed overrides the range.
// Fees are broker cash, so they are normally negative.
type FeeConfig struct {
	Min   float64  `json:"min"`
	Max   float64  `json:"max"`
	Fixed *float64 `json:"fixed,omitempty"`
}

// draw picks the fee for one game.
func (f FeeConfig) draw(src rand.Source) float64 {
	if f.Fixed != nil {
		return *f.Fixed
	}
	lo, hi := f.Min, f.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		return lo
	}
	return distuv.Uniform{Min: lo, Max: hi, Src: src}.Rand()
}

// Config configures the publication cycle and fees.
type Config struct {
	// PublicationInterval is the number of timeslots between publication
	// cycles.
	PublicationInterval int `json:"publication_interval"`
	// PublicationOffset selects the timeslot within the interval.
	PublicationOffset int       `json:"publication_offset"`
	PublicationFee    FeeConfig `json:"publication_fee"`
	RevocationFee     FeeConfig `json:"revocation_fee"`
	// Seed drives the fee draw.
	Seed uint64 `json:"seed"`
}

// DefaultConfig returns the standard cadence and fee ranges.
func DefaultConfig() Config {
	return Config{
		PublicationInterval: 6,
		PublicationFee:      FeeConfig{Min: -100, Max: -500},
		RevocationFee:       FeeConfig{Min: -100, Max: -500},
		Seed:                1,
	}
}

func (c Config) Validate() error {
	if c.PublicationInterval < 1 || c.PublicationInterval > 24 {
		return fmt.Errorf("tariff_market: publication_interval %d outside 1..24", c.PublicationInterval)
	}
	if c.PublicationOffset < 0 || c.PublicationOffset >= c.PublicationInterval {
		return fmt.Errorf("tariff_market: publication_offset %d outside 0..%d", c.PublicationOffset, c.PublicationInterval-1)
	}
	return nil
}
