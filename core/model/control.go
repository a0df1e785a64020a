package model

// EconomicControlEvent asks the subscribers of a tariff to curtail a ratio of
// their usage during one timeslot.
type EconomicControlEvent struct {
	ID               int64   `json:"id"`
	Broker           string  `json:"broker"`
	TariffID         int64   `json:"tariff_id"`
	CurtailmentRatio float64 `json:"curtailment_ratio"`
	Timeslot         int     `json:"timeslot"`
}

// BalancingOrder offers a tariff's curtailable capacity to the balancing
// market. ExerciseRatio is in (0,1] for broker-submitted orders; orders
// mirrored from regulation rates use 1.0 or 2.0 for up and -1.0 for down.
type BalancingOrder struct {
	ID            int64   `json:"id"`
	Broker        string  `json:"broker"`
	TariffID      int64   `json:"tariff_id"`
	ExerciseRatio float64 `json:"exercise_ratio"`
	Price         float64 `json:"price"`
}

// BalancingControlEvent reports regulation exercised against a tariff.
type BalancingControlEvent struct {
	Broker   string  `json:"broker"`
	TariffID int64   `json:"tariff_id"`
	KWh      float64 `json:"kwh"`
	Payment  float64 `json:"payment"`
	Timeslot int     `json:"timeslot"`
}
