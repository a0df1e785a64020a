package metrics

import (
	"errors"

	"github.com/kilianp07/gridmarket/core/events"
	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records market events in Prometheus metrics.
type PromSink struct {
	cleared    prometheus.Counter
	price      prometheus.Gauge
	clearings  *prometheus.CounterVec
	tariffs    *prometheus.CounterVec
	balancing  *prometheus.CounterVec
	rejections *prometheus.CounterVec
}

// NewPromSink registers market metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		cleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "market_cleared_mwh_total",
			Help: "Energy cleared by the wholesale auction",
		}),
		price: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "market_clearing_price",
			Help: "Price of the most recent clearing that traded",
		}),
		clearings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_clearings_total",
			Help: "Cleared timeslots by outcome",
		}, []string{"outcome"}),
		tariffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tariff_events_total",
			Help: "Tariff lifecycle transitions",
		}, []string{"action"}),
		balancing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balancing_kwh_total",
			Help: "Regulation exercised against tariffs",
		}, []string{"broker"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_rejections_total",
			Help: "Broker messages refused by the market",
		}, []string{"kind", "reason"}),
	}
	var err error
	if s.cleared, err = register(reg, s.cleared); err != nil {
		return nil, err
	}
	if s.price, err = register(reg, s.price); err != nil {
		return nil, err
	}
	if s.clearings, err = register(reg, s.clearings); err != nil {
		return nil, err
	}
	if s.tariffs, err = register(reg, s.tariffs); err != nil {
		return nil, err
	}
	if s.balancing, err = register(reg, s.balancing); err != nil {
		return nil, err
	}
	if s.rejections, err = register(reg, s.rejections); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c collides with it.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordClearing adds the cleared volume and updates the last price.
func (s *PromSink) RecordClearing(ev events.ClearingEvent) error {
	if ev.Price == nil {
		s.clearings.WithLabelValues("empty").Inc()
		return nil
	}
	s.clearings.WithLabelValues("traded").Inc()
	s.cleared.Add(ev.MWh)
	s.price.Set(*ev.Price)
	return nil
}

// RecordTariff counts tariff transitions by action.
func (s *PromSink) RecordTariff(ev events.TariffEvent) error {
	s.tariffs.WithLabelValues(string(ev.Action)).Inc()
	return nil
}

// RecordBalancing accumulates the absolute regulated energy per broker.
func (s *PromSink) RecordBalancing(ev events.BalancingEvent) error {
	kwh := ev.KWh
	if kwh < 0 {
		kwh = -kwh
	}
	s.balancing.WithLabelValues(ev.Broker).Add(kwh)
	return nil
}

// RecordRejection counts refused messages.
func (s *PromSink) RecordRejection(ev events.RejectionEvent) error {
	s.rejections.WithLabelValues(ev.Kind, ev.Reason).Inc()
	return nil
}

var _ coremetrics.MetricsSink = (*PromSink)(nil)
