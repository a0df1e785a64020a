package metrics

import "github.com/kilianp07/gridmarket/core/events"

// MetricsSink records market clearings for observability purposes.
type MetricsSink interface {
	RecordClearing(ev events.ClearingEvent) error
}

// TariffRecorder records tariff lifecycle transitions.
type TariffRecorder interface {
	RecordTariff(ev events.TariffEvent) error
}

// BalancingRecorder records exercised regulation.
type BalancingRecorder interface {
	RecordBalancing(ev events.BalancingEvent) error
}

// RejectionRecorder records refused broker messages.
type RejectionRecorder interface {
	RecordRejection(ev events.RejectionEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordClearing(events.ClearingEvent) error   { return nil }
func (NopSink) RecordTariff(events.TariffEvent) error       { return nil }
func (NopSink) RecordBalancing(events.BalancingEvent) error { return nil }
func (NopSink) RecordRejection(events.RejectionEvent) error { return nil }
