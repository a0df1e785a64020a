package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/gridmarket/core/events"
	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(b)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func lineOf(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordClearing(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	price := 21.5
	if err := sink.RecordClearing(events.ClearingEvent{Timeslot: 7, MWh: 1.9, Price: &price, Bids: 2, Asks: 3, Time: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.RecordClearing(events.ClearingEvent{Timeslot: 8, Bids: 1, Time: now}); err != nil {
		t.Fatalf("record: %v", err)
	}

	traded := write.NewPointWithMeasurement("market_clearing").
		AddTag("timeslot", "7").
		AddTag("traded", "true").
		AddField("mwh", 1.9).
		AddField("bids", 2).
		AddField("asks", 3).
		AddField("price", 21.5).
		SetTime(now)
	empty := write.NewPointWithMeasurement("market_clearing").
		AddTag("timeslot", "8").
		AddTag("traded", "false").
		AddField("mwh", 0.0).
		AddField("bids", 1).
		AddField("asks", 0).
		SetTime(now)
	got := rec.lines()
	if len(got) != 2 || got[0] != lineOf(traded) || got[1] != lineOf(empty) {
		t.Errorf("unexpected bodies: %#v", got)
	}
}

func TestInfluxSink_RecordBalancing(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	ev := events.BalancingEvent{TariffID: 42, Broker: "b1", KWh: -20, Payment: 3.25, Subscriptions: 2, Time: now}
	if err := sink.RecordBalancing(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("balancing_control").
		AddTag("broker", "b1").
		AddTag("tariff_id", "42").
		AddField("kwh", -20.0).
		AddField("payment", 3.25).
		AddField("subscriptions", 2).
		SetTime(now)
	if got := rec.lines(); len(got) != 1 || got[0] != lineOf(p) {
		t.Errorf("unexpected bodies: %#v", got)
	}
}

func TestInfluxSink_RecordTariffAndRejection(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	now := time.Now()
	if err := sink.RecordTariff(events.TariffEvent{TariffID: 3, Broker: "b2", Action: events.TariffRevoked, Time: now}); err != nil {
		t.Fatalf("record tariff: %v", err)
	}
	if err := sink.RecordRejection(events.RejectionEvent{Broker: "b2", Kind: "order", Reason: "timeslot_closed", Time: now}); err != nil {
		t.Fatalf("record rejection: %v", err)
	}
	tp := write.NewPointWithMeasurement("tariff_event").
		AddTag("broker", "b2").
		AddTag("action", "revoked").
		AddField("tariff_id", int64(3)).
		SetTime(now)
	rp := write.NewPointWithMeasurement("broker_rejection").
		AddTag("broker", "b2").
		AddTag("kind", "order").
		AddField("reason", "timeslot_closed").
		SetTime(now)
	got := rec.lines()
	if len(got) != 2 || got[0] != lineOf(tp) || got[1] != lineOf(rp) {
		t.Errorf("unexpected bodies: %#v", got)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(coremetrics.NopSink); !ok {
		t.Fatalf("expected NopSink on failing health check, got %T", sink)
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
