package model

import "time"

// TariffSpecification is a broker's immutable retail offer.
type TariffSpecification struct {
	ID                   int64            `json:"id"`
	Broker               string           `json:"broker"`
	PowerType            PowerType        `json:"power_type"`
	MinDuration          time.Duration    `json:"min_duration"`
	SignupPayment        float64          `json:"signup_payment"`
	EarlyWithdrawPayment float64          `json:"early_withdraw_payment"`
	PeriodicPayment      float64          `json:"periodic_payment"`
	Expiration           *time.Time       `json:"expiration,omitempty"`
	Rates                []Rate           `json:"rates"`
	RegulationRates      []RegulationRate `json:"regulation_rates,omitempty"`
	Supersedes           []int64          `json:"supersedes,omitempty"`
}

// TariffSpecBatch carries the specifications published in one cycle.
type TariffSpecBatch struct {
	Timeslot int                   `json:"timeslot"`
	Specs    []TariffSpecification `json:"specs"`
}

// TariffStatusCode is the outcome of a tariff message.
type TariffStatusCode string

const (
	StatusSuccess          TariffStatusCode = "success"
	StatusNoSuchTariff     TariffStatusCode = "noSuchTariff"
	StatusNoSuchUpdate     TariffStatusCode = "noSuchUpdate"
	StatusIllegalOperation TariffStatusCode = "illegalOperation"
	StatusInvalidTariff    TariffStatusCode = "invalidTariff"
	StatusInvalidUpdate    TariffStatusCode = "invalidUpdate"
	StatusDuplicateTariff  TariffStatusCode = "duplicateTariff"
	StatusInvalidPowerType TariffStatusCode = "invalidPowerType"
	StatusUnsupported      TariffStatusCode = "unsupported"
)

// TariffStatus acknowledges a tariff message to its broker.
type TariffStatus struct {
	Broker   string           `json:"broker"`
	TariffID int64            `json:"tariff_id"`
	UpdateID int64            `json:"update_id"`
	Status   TariffStatusCode `json:"status"`
	Message  string           `json:"message,omitempty"`
}

// OK reports whether the status is a success.
func (s TariffStatus) OK() bool { return s.Status == StatusSuccess }

// TariffExpire moves a tariff's expiration date.
type TariffExpire struct {
	ID            int64     `json:"id"`
	Broker        string    `json:"broker"`
	TariffID      int64     `json:"tariff_id"`
	NewExpiration time.Time `json:"new_expiration"`
}

// TariffRevoke withdraws a tariff. Brokers send it to revoke their own
// tariffs; the market broadcasts it once the revocation takes effect.
type TariffRevoke struct {
	ID       int64  `json:"id"`
	Broker   string `json:"broker"`
	TariffID int64  `json:"tariff_id"`
}

// VariableRateUpdate announces an hourly charge for a variable rate.
type VariableRateUpdate struct {
	ID       int64        `json:"id"`
	Broker   string       `json:"broker"`
	TariffID int64        `json:"tariff_id"`
	RateID   int64        `json:"rate_id"`
	Payload  HourlyCharge `json:"payload"`
}
