package metrics

import (
	"testing"

	"github.com/kilianp07/gridmarket/core/events"
)

type clearingOnly struct{ count int }

func (c *clearingOnly) RecordClearing(events.ClearingEvent) error { c.count++; return nil }

type recordSink struct{ count int }

func (r *recordSink) RecordClearing(events.ClearingEvent) error   { r.count++; return nil }
func (r *recordSink) RecordTariff(events.TariffEvent) error       { r.count++; return nil }
func (r *recordSink) RecordBalancing(events.BalancingEvent) error { r.count++; return nil }
func (r *recordSink) RecordRejection(events.RejectionEvent) error { r.count++; return nil }

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &clearingOnly{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordClearing(events.ClearingEvent{}); err != nil {
		t.Fatalf("record clearing: %v", err)
	}
	if err := m.RecordTariff(events.TariffEvent{}); err != nil {
		t.Fatalf("record tariff: %v", err)
	}
	if err := m.RecordBalancing(events.BalancingEvent{}); err != nil {
		t.Fatalf("record balancing: %v", err)
	}
	if err := m.RecordRejection(events.RejectionEvent{}); err != nil {
		t.Fatalf("record rejection: %v", err)
	}
	if s1.count != 4 {
		t.Fatalf("full recorder got %d events, want 4", s1.count)
	}
	if s2.count != 1 {
		t.Fatalf("clearing-only sink got %d events, want 1", s2.count)
	}
}
