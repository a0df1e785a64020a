// Package timeslot provides the simulated clock and the trading window of
// enabled timeslots.
package timeslot

import (
	"fmt"
	"sync"
	"time"
)

// Config defines the simulated calendar.
type Config struct {
	// Start is the simulated instant of timeslot 0 (RFC3339).
	Start string `json:"start"`
	// SlotMinutes is the simulated length of a timeslot.
	SlotMinutes int `json:"slot_minutes"`
	// TickSeconds is the wall-clock time between two activations when the
	// service runs live.
	TickSeconds int `json:"tick_seconds"`
	// Lead is the distance between the current timeslot and the first one
	// open for trading. Nil means 1; 0 opens the current timeslot.
	Lead *int `json:"lead"`
	// Window is the number of consecutive timeslots open for trading.
	Window int `json:"window"`
}

// SetDefaults applies the usual hourly, day-ahead calendar.
func (c *Config) SetDefaults() {
	if c.Start == "" {
		c.Start = "2024-01-01T00:00:00Z"
	}
	if c.SlotMinutes == 0 {
		c.SlotMinutes = 60
	}
	if c.TickSeconds == 0 {
		c.TickSeconds = 5
	}
	if c.Lead == nil {
		lead := 1
		c.Lead = &lead
	}
	if c.Window == 0 {
		c.Window = 24
	}
}

// Validate checks the calendar.
func (c Config) Validate() error {
	if _, err := time.Parse(time.RFC3339, c.Start); err != nil {
		return fmt.Errorf("timeslot start: %w", err)
	}
	if c.SlotMinutes <= 0 || c.TickSeconds <= 0 {
		return fmt.Errorf("slot_minutes and tick_seconds must be positive")
	}
	if c.Lead != nil && *c.Lead < 0 {
		return fmt.Errorf("invalid trading window lead=%d", *c.Lead)
	}
	if c.Window <= 0 {
		return fmt.Errorf("invalid trading window window=%d", c.Window)
	}
	return nil
}

// Repo is the read side of the clock used by the market subsystems.
type Repo interface {
	// Current returns the index of the running timeslot.
	Current() int
	// Now returns the simulated start instant of the running timeslot.
	Now() time.Time
	// TimeOf returns the simulated start instant of timeslot ts.
	TimeOf(ts int) time.Time
	// IsEnabled reports whether ts is open for trading.
	IsEnabled(ts int) bool
	// Enabled lists the open timeslots, nearest first.
	Enabled() []int
}

// Clock is the authoritative simulated clock of one game.
type Clock struct {
	mu      sync.RWMutex
	base    time.Time
	slot    time.Duration
	lead    int
	window  int
	current int
}

// NewClock builds a clock positioned on timeslot 0.
func NewClock(cfg Config) (*Clock, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, _ := time.Parse(time.RFC3339, cfg.Start)
	return &Clock{
		base:   base.UTC(),
		slot:   time.Duration(cfg.SlotMinutes) * time.Minute,
		lead:   *cfg.Lead,
		window: cfg.Window,
	}, nil
}

func (c *Clock) Current() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Clock) Now() time.Time { return c.TimeOf(c.Current()) }

func (c *Clock) TimeOf(ts int) time.Time {
	return c.base.Add(time.Duration(ts) * c.slot)
}

func (c *Clock) IsEnabled(ts int) bool {
	first := c.Current() + c.lead
	return ts >= first && ts < first+c.window
}

func (c *Clock) Enabled() []int {
	first := c.Current() + c.lead
	out := make([]int, c.window)
	for i := range out {
		out[i] = first + i
	}
	return out
}

// Window returns the number of open timeslots.
func (c *Clock) Window() int { return c.window }

// Advance moves to the next timeslot and returns its index.
func (c *Clock) Advance() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return c.current
}

// Set positions the clock on ts.
func (c *Clock) Set(ts int) {
	c.mu.Lock()
	c.current = ts
	c.mu.Unlock()
}
