// Package app wires the market subsystems of one game into a Service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/gridmarket/config"
	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/broker"
	"github.com/kilianp07/gridmarket/core/capacity"
	"github.com/kilianp07/gridmarket/core/ledger"
	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
	coremon "github.com/kilianp07/gridmarket/core/monitoring"
	"github.com/kilianp07/gridmarket/core/router"
	"github.com/kilianp07/gridmarket/core/scheduler"
	"github.com/kilianp07/gridmarket/core/tariff"
	"github.com/kilianp07/gridmarket/core/tariffmarket"
	"github.com/kilianp07/gridmarket/core/timeslot"
	_ "github.com/kilianp07/gridmarket/infra/ledger"
	"github.com/kilianp07/gridmarket/infra/logger"
	"github.com/kilianp07/gridmarket/infra/metrics"
	"github.com/kilianp07/gridmarket/infra/monitoring"
	"github.com/kilianp07/gridmarket/infra/mqtt"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

// Service holds the subsystems of one game and drives the phase loop.
type Service struct {
	Clock     *timeslot.Clock
	Brokers   *broker.MemoryRepo
	Tariffs   *tariff.Repo
	Engine    *auction.Engine
	Market    *tariffmarket.Market
	Capacity  *capacity.Control
	Ledger    *ledger.Accounting
	Router    *router.Router
	Sequencer *scheduler.Sequencer

	cfg  *config.Config
	mqtt *mqtt.Transport
	bus  *eventbus.Bus
	sink coremetrics.MetricsSink
	log  logger.Logger
}

// Option customizes New.
type Option func(*options)

type options struct {
	transport broker.Transport
}

// WithTransport replaces the MQTT transport, e.g. with a
// broker.MemoryTransport for offline replays.
func WithTransport(tr broker.Transport) Option {
	return func(o *options) { o.transport = tr }
}

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logg := logger.New("service")
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	clock, err := timeslot.NewClock(cfg.Timeslot)
	if err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}
	stores, err := ledger.NewStores(cfg.Ledger.Stores)
	if err != nil {
		return nil, fmt.Errorf("ledger stores: %w", err)
	}
	acc := ledger.NewAccounting(clock, logger.New("ledger"), stores...)

	sinks, err := coremetrics.NewMetricsSinks(cfg.Metrics.Sinks)
	if err != nil {
		_ = acc.Close()
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	var sink coremetrics.MetricsSink = sinks[0]
	if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	svc := &Service{
		Clock:   clock,
		Brokers: broker.NewMemoryRepo(cfg.Brokers...),
		Tariffs: tariff.NewRepo(),
		Ledger:  acc,
		cfg:     cfg,
		bus:     eventbus.New(),
		sink:    sink,
		log:     logg,
	}

	tr := o.transport
	if tr == nil {
		if cfg.MQTT.Broker == "" {
			logg.Warnf("no mqtt broker configured, outbound messages are dropped")
			tr = broker.NopTransport{}
		} else {
			svc.mqtt, err = mqtt.NewTransport(cfg.MQTT, logger.New("mqtt"))
			if err != nil {
				_ = acc.Close()
				return nil, fmt.Errorf("mqtt transport: %w", err)
			}
			tr = svc.mqtt
		}
	}

	svc.Capacity = capacity.NewControl(svc.Tariffs, clock, acc, tr, logger.New("capacity"),
		capacity.WithEventBus(svc.bus))
	svc.Market = tariffmarket.NewMarket(cfg.TariffMarket, svc.Tariffs, svc.Brokers, clock, acc, tr, logger.New("tariff-market"),
		tariffmarket.WithEventBus(svc.bus), tariffmarket.WithEconomicControl(svc.Capacity))
	svc.Engine = auction.NewEngine(cfg.Auction, clock, svc.Brokers, acc, tr, logger.New("auction"),
		auction.WithEventBus(svc.bus))
	svc.Router = router.New(svc.Engine, svc.Market, tr, logger.New("router"))

	svc.Sequencer = scheduler.New(logger.New("scheduler"))
	svc.Sequencer.Register(scheduler.PhaseAuction, "auction", svc.Engine)
	svc.Sequencer.Register(scheduler.PhaseTariffMarket, "tariff-market", svc.Market)
	svc.Sequencer.Register(scheduler.PhaseCapacity, "capacity", svc.Capacity)
	svc.Sequencer.Register(scheduler.PhaseLedger, "ledger", acc)

	if svc.mqtt != nil {
		if err := svc.mqtt.Listen(svc.Router); err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt listen: %w", err)
		}
	}
	return svc, nil
}

// RunTimeslot positions the clock on ts and runs every phase once.
func (s *Service) RunTimeslot(ctx context.Context, ts int) error {
	s.Clock.Set(ts)
	return s.Sequencer.RunTimeslot(ctx, ts)
}

// StartCollector records bus events on the configured metrics sinks until
// ctx is done.
func (s *Service) StartCollector(ctx context.Context) {
	metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("metrics"))
}

// Run starts metrics and the phase loop and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.StartCollector(ctx)
	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, port, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if addr := s.cfg.API.Addr; addr != "" {
		go func() {
			if err := s.serveAPI(ctx, addr); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}
	every := time.Duration(s.cfg.Timeslot.TickSeconds) * time.Second
	s.log.Infof("game started at timeslot %d, one timeslot every %s", s.Clock.Current(), every)
	if err := s.Sequencer.Run(ctx, s.Clock, every); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	s.bus.Close()
	if n := s.bus.Dropped(); n > 0 {
		s.log.Warnf("%d market events were dropped by slow observers", n)
	}
	err := s.Ledger.Close()
	coremon.Flush(2 * time.Second)
	return err
}
