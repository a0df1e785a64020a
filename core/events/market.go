package events

import "time"

// ClearingEvent is published for every timeslot that had open orders.
// Price is nil when nothing traded.
type ClearingEvent struct {
	Timeslot int
	MWh      float64
	Price    *float64
	Bids     int
	Asks     int
	Time     time.Time
}

// TariffAction names a tariff lifecycle transition.
type TariffAction string

const (
	TariffPublished TariffAction = "published"
	TariffOffered   TariffAction = "offered"
	TariffRevoked   TariffAction = "revoked"
	TariffExpired   TariffAction = "expired"
	TariffRemoved   TariffAction = "removed"
)

// TariffEvent is published on each tariff state change.
type TariffEvent struct {
	TariffID int64
	Broker   string
	Action   TariffAction
	Time     time.Time
}

// BalancingEvent is published when balancing control is exercised.
type BalancingEvent struct {
	TariffID      int64
	Broker        string
	KWh           float64
	Payment       float64
	Subscriptions int
	Time          time.Time
}

// RejectionEvent is published for every refused broker message.
type RejectionEvent struct {
	Broker string
	Kind   string
	Reason string
	Time   time.Time
}
