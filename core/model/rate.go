package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// NoTime marks an unset weekly or daily bound.
const NoTime = -1

var (
	ErrRateFixed         = errors.New("rate is fixed")
	ErrNoticeTooLate     = errors.New("hourly charge arrives inside the notice interval")
	ErrChargeOutOfBounds = errors.New("hourly charge outside rate bounds")
)

// HourlyCharge is a variable rate's price for the hour starting at AtTime.
type HourlyCharge struct {
	RateID int64     `json:"rate_id"`
	Value  float64   `json:"value"`
	AtTime time.Time `json:"at_time"`
}

// Rate is one time-of-use / tier component of a tariff. Weekly bounds are
// ISO days (1 = Monday ... 7 = Sunday); daily bounds are hours 0..23. Either
// may be NoTime. Values follow the customer's point of view: a consumption
// charge is negative.
type Rate struct {
	ID             int64   `json:"id"`
	TariffID       int64   `json:"tariff_id"`
	WeeklyBegin    int     `json:"weekly_begin"`
	WeeklyEnd      int     `json:"weekly_end"`
	DailyBegin     int     `json:"daily_begin"`
	DailyEnd       int     `json:"daily_end"`
	TierThreshold  float64 `json:"tier_threshold"`
	Fixed          bool    `json:"fixed"`
	MinValue       float64 `json:"min_value"`
	MaxValue       float64 `json:"max_value"`
	ExpectedMean   float64 `json:"expected_mean"`
	NoticeInterval int     `json:"notice_interval"`
	MaxCurtailment float64 `json:"max_curtailment"`

	HourlyCharges []HourlyCharge `json:"hourly_charges,omitempty"`
}

// NewRate returns a fixed, all-week rate with the given value.
func NewRate(id int64, value float64) Rate {
	return Rate{
		ID:          id,
		WeeklyBegin: NoTime,
		WeeklyEnd:   NoTime,
		DailyBegin:  NoTime,
		DailyEnd:    NoTime,
		Fixed:       true,
		MinValue:    value,
	}
}

// UnmarshalJSON leaves omitted time bounds at NoTime so that a rate sent
// without them covers the whole week and day.
func (r *Rate) UnmarshalJSON(data []byte) error {
	type plain Rate
	v := plain{WeeklyBegin: NoTime, WeeklyEnd: NoTime, DailyBegin: NoTime, DailyEnd: NoTime}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Rate(v)
	return nil
}

// Valid reports whether the time bounds and curtailment are well formed.
func (r Rate) Valid() error {
	for _, d := range []int{r.DailyBegin, r.DailyEnd} {
		if d != NoTime && (d < 0 || d > 23) {
			return fmt.Errorf("rate %d: daily bound %d out of range", r.ID, d)
		}
	}
	for _, w := range []int{r.WeeklyBegin, r.WeeklyEnd} {
		if w != NoTime && (w < 1 || w > 7) {
			return fmt.Errorf("rate %d: weekly bound %d out of range", r.ID, w)
		}
	}
	if r.TierThreshold < 0 {
		return fmt.Errorf("rate %d: negative tier threshold", r.ID)
	}
	if r.MaxCurtailment < 0 || r.MaxCurtailment > 1 {
		return fmt.Errorf("rate %d: max curtailment %.3f outside [0,1]", r.ID, r.MaxCurtailment)
	}
	return nil
}

// IsWeekly reports whether the rate is bound to days of the week.
func (r Rate) IsWeekly() bool { return r.WeeklyBegin != NoTime }

// Applies reports whether the rate covers the hour containing t (UTC).
// Ranges that wrap past the end of the week or day are honoured.
func (r Rate) Applies(t time.Time) bool {
	t = t.UTC()
	day := int(t.Weekday())
	if day == 0 {
		day = 7
	}
	return r.appliesAt(day, t.Hour())
}

func (r Rate) appliesAt(day, hour int) bool {
	weekly := false
	switch {
	case r.WeeklyBegin == NoTime:
		weekly = true
	case r.WeeklyEnd == NoTime:
		weekly = day == r.WeeklyBegin
	case r.WeeklyEnd >= r.WeeklyBegin:
		weekly = day >= r.WeeklyBegin && day <= r.WeeklyEnd
	default:
		weekly = day >= r.WeeklyBegin || day <= r.WeeklyEnd
	}
	daily := false
	switch {
	case r.DailyBegin == NoTime || r.DailyEnd == NoTime:
		daily = true
	case r.DailyEnd > r.DailyBegin:
		daily = hour >= r.DailyBegin && hour < r.DailyEnd
	default:
		daily = hour >= r.DailyBegin || hour < r.DailyEnd
	}
	return weekly && daily
}

// AppliesAtHour reports coverage of a slot in a weekly (168) or daily (24)
// hour grid starting Monday 00:00.
func (r Rate) AppliesAtHour(slot int) bool {
	return r.appliesAt(slot/24%7+1, slot%24)
}

// ValidCharge checks value against the rate's bounds. The sign of MaxValue
// (or MinValue when MaxValue is zero) orients the comparison so that
// negative consumption charges bound by magnitude.
func (r Rate) ValidCharge(value float64) error {
	if r.Fixed {
		return ErrRateFixed
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %v", ErrChargeOutOfBounds, value)
	}
	if r.MinValue == 0 && r.MaxValue == 0 {
		return nil
	}
	sgn := sign(r.MaxValue)
	if sgn == 0 {
		sgn = sign(r.MinValue)
	}
	if sgn*value > sgn*r.MaxValue && r.MaxValue != 0 {
		return fmt.Errorf("%w: %.4f beyond max %.4f", ErrChargeOutOfBounds, value, r.MaxValue)
	}
	if sgn*value < sgn*r.MinValue {
		return fmt.Errorf("%w: %.4f below min %.4f", ErrChargeOutOfBounds, value, r.MinValue)
	}
	return nil
}

// AddHourlyCharge records a variable charge. Outside publication the charge
// must arrive at least NoticeInterval hours before it applies. An existing
// charge for the same hour is replaced.
func (r *Rate) AddHourlyCharge(c HourlyCharge, now time.Time, publish bool) error {
	if err := r.ValidCharge(c.Value); err != nil {
		return err
	}
	notice := time.Duration(r.NoticeInterval) * time.Hour
	if !publish && c.AtTime.Sub(now) < notice {
		return fmt.Errorf("%w: %s at %s", ErrNoticeTooLate, c.AtTime.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	c.RateID = r.ID
	c.AtTime = c.AtTime.UTC().Truncate(time.Hour)
	i := sort.Search(len(r.HourlyCharges), func(i int) bool {
		return !r.HourlyCharges[i].AtTime.Before(c.AtTime)
	})
	if i < len(r.HourlyCharges) && r.HourlyCharges[i].AtTime.Equal(c.AtTime) {
		r.HourlyCharges[i] = c
		return nil
	}
	r.HourlyCharges = append(r.HourlyCharges, HourlyCharge{})
	copy(r.HourlyCharges[i+1:], r.HourlyCharges[i:])
	r.HourlyCharges[i] = c
	return nil
}

// Value returns the charge in effect at t: the fixed value, the hourly
// charge for that hour, or ExpectedMean when none was announced.
func (r Rate) Value(t time.Time) float64 {
	if r.Fixed {
		return r.MinValue
	}
	at := t.UTC().Truncate(time.Hour)
	i := sort.Search(len(r.HourlyCharges), func(i int) bool {
		return !r.HourlyCharges[i].AtTime.Before(at)
	})
	if i < len(r.HourlyCharges) && r.HourlyCharges[i].AtTime.Equal(at) {
		return r.HourlyCharges[i].Value
	}
	return r.ExpectedMean
}

// RegulationRate prices up- and down-regulation delivered by subscribers.
type RegulationRate struct {
	ID                    int64   `json:"id"`
	TariffID              int64   `json:"tariff_id"`
	UpRegulationPayment   float64 `json:"up_regulation_payment"`
	DownRegulationPayment float64 `json:"down_regulation_payment"`
	Response              string  `json:"response,omitempty"`
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
