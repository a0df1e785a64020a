package metrics

import (
	"context"

	"github.com/kilianp07/gridmarket/core/events"
	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
	"github.com/kilianp07/gridmarket/infra/logger"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records market events
// on the sink. Recorders the sink does not implement are skipped. It stops
// when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink, log logger.Logger) {
	if bus == nil || sink == nil {
		return
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("metrics: record %T: %v", ev, err)
				}
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.ClearingEvent:
		return sink.RecordClearing(e)
	case events.TariffEvent:
		if r, ok := sink.(coremetrics.TariffRecorder); ok {
			return r.RecordTariff(e)
		}
	case events.BalancingEvent:
		if r, ok := sink.(coremetrics.BalancingRecorder); ok {
			return r.RecordBalancing(e)
		}
	case events.RejectionEvent:
		if r, ok := sink.(coremetrics.RejectionRecorder); ok {
			return r.RecordRejection(e)
		}
	}
	return nil
}
