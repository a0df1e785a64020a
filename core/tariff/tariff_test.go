package tariff

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridmarket/core/model"
)

var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func flatSpec(id int64) model.TariffSpecification {
	return model.TariffSpecification{
		ID:        id,
		Broker:    "b1",
		PowerType: model.Consumption,
		Rates:     []model.Rate{model.NewRate(id*10, -0.12)},
	}
}

func TestCoverage(t *testing.T) {
	assert.True(t, New(flatSpec(1)).IsCovered())

	day := model.NewRate(1, -0.15)
	day.DailyBegin, day.DailyEnd = 7, 22
	spec := flatSpec(2)
	spec.Rates = []model.Rate{day}
	assert.False(t, New(spec).IsCovered())

	night := model.NewRate(2, -0.08)
	night.DailyBegin, night.DailyEnd = 22, 7
	spec.Rates = []model.Rate{day, night}
	tf := New(spec)
	assert.True(t, tf.IsCovered())
	r, ok := tf.RateAt(monday.Add(23*time.Hour), 0)
	require.True(t, ok)
	assert.Equal(t, int64(2), r.ID)

	weekday := model.NewRate(3, -0.1)
	weekday.WeeklyBegin, weekday.WeeklyEnd = 1, 5
	spec.Rates = []model.Rate{weekday}
	assert.False(t, New(spec).IsCovered(), "weekend uncovered")
}

func TestTieredRateAt(t *testing.T) {
	base := model.NewRate(1, -0.1)
	tier := model.NewRate(2, -0.2)
	tier.TierThreshold = 100
	spec := flatSpec(3)
	spec.Rates = []model.Rate{tier, base}
	tf := New(spec)
	require.True(t, tf.IsCovered())
	r, _ := tf.RateAt(monday, 50)
	assert.Equal(t, int64(1), r.ID)
	r, _ = tf.RateAt(monday, 150)
	assert.Equal(t, int64(2), r.ID)
}

func TestStateTransitions(t *testing.T) {
	tf := New(flatSpec(1))
	assert.Equal(t, Pending, tf.State())
	require.NoError(t, tf.MarkOffered(monday))
	if err := tf.MarkOffered(monday); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("second offer: %v", err)
	}
	require.NoError(t, tf.Kill())
	assert.Equal(t, Killed, tf.State())
	for _, op := range []func() error{tf.Kill, tf.Expire, func() error { return tf.MarkOffered(monday) }} {
		if err := op(); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("transition out of killed: %v", err)
		}
	}
	assert.Error(t, tf.SetExpiration(monday))
	assert.False(t, tf.IsSubscribable(monday))
}

func TestSubscribableUntilExpiration(t *testing.T) {
	tf := New(flatSpec(1))
	require.NoError(t, tf.SetExpiration(monday.Add(48*time.Hour)))
	assert.True(t, tf.IsSubscribable(monday))
	assert.False(t, tf.IsSubscribable(monday.Add(48*time.Hour)))
	assert.True(t, tf.IsExpiredAt(monday.Add(49*time.Hour)))
}

func TestAddHourlyCharge(t *testing.T) {
	r := model.NewRate(7, 0)
	r.Fixed = false
	r.MinValue, r.MaxValue = -0.05, -0.5
	r.ExpectedMean = -0.1
	r.NoticeInterval = 2
	spec := flatSpec(4)
	spec.Rates = []model.Rate{r}
	tf := New(spec)

	at := monday.Add(5 * time.Hour)
	require.NoError(t, tf.AddHourlyCharge(model.HourlyCharge{Value: -0.2, AtTime: at}, 7, monday))
	got, _ := tf.RateByID(7)
	assert.Equal(t, -0.2, got.Value(at))
	assert.Equal(t, int64(4), got.TariffID)

	err := tf.AddHourlyCharge(model.HourlyCharge{Value: -0.2, AtTime: monday.Add(time.Hour)}, 7, monday)
	assert.ErrorIs(t, err, model.ErrNoticeTooLate)
	err = tf.AddHourlyCharge(model.HourlyCharge{Value: -0.2, AtTime: at}, 99, monday)
	assert.ErrorIs(t, err, ErrNoSuchRate)

	// The returned specification does not alias live state.
	s := tf.Spec()
	s.Rates[0].HourlyCharges = nil
	got, _ = tf.RateByID(7)
	assert.Len(t, got.HourlyCharges, 1)
}

func TestRegulationFlags(t *testing.T) {
	spec := flatSpec(5)
	spec.PowerType = model.BatteryStorage
	spec.RegulationRates = []model.RegulationRate{{ID: 1, UpRegulationPayment: 0.1}}
	tf := New(spec)
	assert.True(t, tf.HasRegulationRate())
	assert.True(t, tf.IsInterruptible())
	assert.False(t, tf.HasCurtailment())
	assert.Equal(t, int64(5), tf.Spec().RegulationRates[0].TariffID)
}
