package model

import (
	"encoding/json"
	"testing"
)

func TestDecodeMessage(t *testing.T) {
	payload, err := json.Marshal(Order{ID: "o1", Broker: "b1", Timeslot: 5, MWh: -1, LimitPrice: Price(20)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msg, err := DecodeMessage(KindOrder, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	o, ok := msg.(Order)
	if !ok {
		t.Fatalf("expected Order got %T", msg)
	}
	if o.IsBid() || o.IsMarketOrder() || *o.LimitPrice != 20 {
		t.Fatalf("unexpected order %+v", o)
	}
}

func TestDecodeMessageRejectsOutbound(t *testing.T) {
	if _, err := DecodeMessage(KindClearedTrade, []byte(`{}`)); err == nil {
		t.Fatal("expected error for outbound kind")
	}
	if _, err := DecodeMessage(KindTariffRevoke, []byte(`{`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestDecodeRateDefaultsTimeBounds(t *testing.T) {
	payload := []byte(`{"id":7,"broker":"b1","power_type":"consumption",` +
		`"rates":[{"id":70,"fixed":true,"min_value":-0.12},{"id":71,"daily_begin":0,"daily_end":6,"min_value":-0.08}]}`)
	msg, err := DecodeMessage(KindTariffSpecification, payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	spec := msg.(TariffSpecification)
	allWeek := spec.Rates[0]
	if allWeek.WeeklyBegin != NoTime || allWeek.WeeklyEnd != NoTime || allWeek.DailyBegin != NoTime || allWeek.DailyEnd != NoTime {
		t.Fatalf("omitted bounds not defaulted: %+v", allWeek)
	}
	if err := allWeek.Valid(); err != nil {
		t.Fatalf("all-week rate refused: %v", err)
	}
	night := spec.Rates[1]
	if night.DailyBegin != 0 || night.DailyEnd != 6 || night.WeeklyBegin != NoTime {
		t.Fatalf("explicit bounds lost: %+v", night)
	}
}

func TestPowerTypeClasses(t *testing.T) {
	if !BatteryStorage.IsStorage() || !BatteryStorage.IsInterruptible() {
		t.Fatal("battery storage should be storage and interruptible")
	}
	if Consumption.IsInterruptible() || !SolarProduction.IsProduction() {
		t.Fatal("unexpected power type classes")
	}
	if PowerType("steam").Valid() {
		t.Fatal("unknown power type accepted")
	}
}
