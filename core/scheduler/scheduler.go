package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/gridmarket/core/logger"
	"github.com/kilianp07/gridmarket/core/monitoring"
)

// Standard phases.
const (
	PhaseAuction      = 1
	PhaseTariffMarket = 2
	PhaseCapacity     = 3
	PhaseLedger       = 4
)

var ErrNotMonotonic = errors.New("timeslot does not advance")

// Activatable is a subsystem activated once per timeslot.
type Activatable interface {
	Activate(ctx context.Context, ts int) error
}

// ActivatableFunc adapts a function to Activatable.
type ActivatableFunc func(ctx context.Context, ts int) error

func (f ActivatableFunc) Activate(ctx context.Context, ts int) error { return f(ctx, ts) }

type registration struct {
	phase int
	name  string
	a     Activatable
}

// Sequencer runs registered activations in phase order.
type Sequencer struct {
	mu      sync.Mutex
	regs    []registration
	log     logger.Logger
	last    int
	started bool
}

// New creates an empty sequencer.
func New(log logger.Logger) *Sequencer {
	return &Sequencer{log: log}
}

// Register adds a to phase. Activations sharing a phase run in
// registration order.
func (s *Sequencer) Register(phase int, name string, a Activatable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs = append(s.regs, registration{phase: phase, name: name, a: a})
	sort.SliceStable(s.regs, func(i, j int) bool { return s.regs[i].phase < s.regs[j].phase })
}

// Phases lists the registered names in execution order.
func (s *Sequencer) Phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.regs))
	for i, r := range s.regs {
		out[i] = r.name
	}
	return out
}

// RunTimeslot activates every registered subsystem for ts. Timeslots must
// strictly increase between calls.
func (s *Sequencer) RunTimeslot(ctx context.Context, ts int) error {
	s.mu.Lock()
	if s.started && ts <= s.last {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d after %d", ErrNotMonotonic, ts, s.last)
	}
	s.started, s.last = true, ts
	regs := append([]registration(nil), s.regs...)
	s.mu.Unlock()

	var errs []error
	for _, r := range regs {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		start := time.Now()
		err := monitoring.Guard("phase."+r.name, func() error { return r.a.Activate(ctx, ts) })
		if err != nil {
			s.log.Errorf("timeslot %d: phase %s failed: %v", ts, r.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
			continue
		}
		s.log.Debugw("phase done", map[string]any{"timeslot": ts, "phase": r.name, "elapsed": time.Since(start).String()})
	}
	return errors.Join(errs...)
}

// Clock is the part of the simulated clock the loop advances.
type Clock interface {
	Current() int
	Advance() int
}

// Run activates the current timeslot, then advances the clock and
// activates the next one on every tick until ctx is done.
func (s *Sequencer) Run(ctx context.Context, clock Clock, every time.Duration) error {
	if err := s.RunTimeslot(ctx, clock.Current()); err != nil && ctx.Err() == nil {
		s.log.Warnf("timeslot %d completed with errors", clock.Current())
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ts := clock.Advance()
			if err := s.RunTimeslot(ctx, ts); err != nil && ctx.Err() == nil {
				s.log.Warnf("timeslot %d completed with errors", ts)
			}
		}
	}
}
