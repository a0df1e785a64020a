package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/gridmarket/core/events"
	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
	"github.com/kilianp07/gridmarket/infra/logger"
)

// InfluxSink writes market events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordClearing writes one market_clearing point per cleared timeslot.
func (s *InfluxSink) RecordClearing(ev events.ClearingEvent) error {
	p := write.NewPointWithMeasurement("market_clearing").
		AddTag("timeslot", strconv.Itoa(ev.Timeslot)).
		AddTag("traded", strconv.FormatBool(ev.Price != nil)).
		AddField("mwh", round3(ev.MWh)).
		AddField("bids", ev.Bids).
		AddField("asks", ev.Asks)
	if ev.Price != nil {
		p = p.AddField("price", round3(*ev.Price))
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordTariff writes a tariff lifecycle transition.
func (s *InfluxSink) RecordTariff(ev events.TariffEvent) error {
	p := write.NewPointWithMeasurement("tariff_event").
		AddTag("broker", ev.Broker).
		AddTag("action", string(ev.Action)).
		AddField("tariff_id", ev.TariffID).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordBalancing writes exercised regulation.
func (s *InfluxSink) RecordBalancing(ev events.BalancingEvent) error {
	p := write.NewPointWithMeasurement("balancing_control").
		AddTag("broker", ev.Broker).
		AddTag("tariff_id", strconv.FormatInt(ev.TariffID, 10)).
		AddField("kwh", round3(ev.KWh)).
		AddField("payment", round3(ev.Payment)).
		AddField("subscriptions", ev.Subscriptions).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordRejection writes a refused broker message.
func (s *InfluxSink) RecordRejection(ev events.RejectionEvent) error {
	p := write.NewPointWithMeasurement("broker_rejection").
		AddTag("broker", ev.Broker).
		AddTag("kind", ev.Kind).
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.write(p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
