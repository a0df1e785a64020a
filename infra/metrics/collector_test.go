package metrics

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridmarket/core/events"
	"github.com/kilianp07/gridmarket/infra/logger"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

type atomicSink struct{ n atomic.Int32 }

func (a *atomicSink) RecordClearing(events.ClearingEvent) error   { a.n.Add(1); return nil }
func (a *atomicSink) RecordTariff(events.TariffEvent) error       { a.n.Add(1); return nil }
func (a *atomicSink) RecordBalancing(events.BalancingEvent) error { a.n.Add(1); return nil }
func (a *atomicSink) RecordRejection(events.RejectionEvent) error { a.n.Add(1); return nil }

func TestEventCollectorRoutesEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &atomicSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartEventCollector(ctx, bus, sink, logger.NopLogger{})
	// Subscription happens synchronously, so events published now are delivered.
	bus.Publish(events.ClearingEvent{Timeslot: 1})
	bus.Publish(events.TariffEvent{Action: events.TariffOffered})
	bus.Publish(events.BalancingEvent{KWh: 1})
	bus.Publish(events.RejectionEvent{Kind: "order"})
	bus.Publish("ignored")

	require.Eventually(t, func() bool { return sink.n.Load() == 4 }, time.Second, 5*time.Millisecond)
}

func TestEventCollectorSkipsMissingRecorders(t *testing.T) {
	sink := &clearingOnly{}
	require.NoError(t, record(sink, events.TariffEvent{}))
	require.NoError(t, record(sink, events.ClearingEvent{}))
	require.Equal(t, 1, sink.count)
}
