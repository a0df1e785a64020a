package metrics

import (
	"github.com/kilianp07/gridmarket/core/events"
	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
)

// MultiSink fans market events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordClearing forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordClearing(ev events.ClearingEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordClearing(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordTariff forwards tariff transitions to sinks that record them.
func (m *MultiSink) RecordTariff(ev events.TariffEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.TariffRecorder); ok {
			if err := rec.RecordTariff(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordBalancing forwards balancing events.
func (m *MultiSink) RecordBalancing(ev events.BalancingEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.BalancingRecorder); ok {
			if err := rec.RecordBalancing(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordRejection forwards rejections.
func (m *MultiSink) RecordRejection(ev events.RejectionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.RejectionRecorder); ok {
			if err := rec.RecordRejection(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
