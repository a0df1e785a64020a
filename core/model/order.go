package model

import "time"

// Order is a broker's bid (positive MWh) or ask (negative MWh) for one
// timeslot. A nil LimitPrice makes it a market order. Limit prices are
// positive amounts per MWh on both sides.
type Order struct {
	ID         string   `json:"id"`
	Broker     string   `json:"broker"`
	Timeslot   int      `json:"timeslot"`
	MWh        float64  `json:"mwh"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
}

// IsMarketOrder reports whether the order carries no limit price.
func (o Order) IsMarketOrder() bool { return o.LimitPrice == nil }

// IsBid reports whether the order buys energy.
func (o Order) IsBid() bool { return o.MWh > 0 }

// Price returns a pointer to p, for building limit orders.
func Price(p float64) *float64 { return &p }

// OrderStatusCode is the result of order validation.
type OrderStatusCode string

const (
	OrderAccepted        OrderStatusCode = "accepted"
	OrderInvalidQuantity OrderStatusCode = "invalid_quantity"
	OrderInvalidPrice    OrderStatusCode = "invalid_price"
	OrderTooSmall        OrderStatusCode = "quantity_too_small"
	OrderTimeslotClosed  OrderStatusCode = "timeslot_closed"
	OrderMalformed       OrderStatusCode = "malformed"
	OrderIllegal         OrderStatusCode = "illegal_operation"
)

// OrderStatus acknowledges an order to its broker.
type OrderStatus struct {
	Broker  string          `json:"broker"`
	OrderID string          `json:"order_id"`
	Status  OrderStatusCode `json:"status"`
	Message string          `json:"message,omitempty"`
}

// OrderbookOrder is an unmatched residual order as published to brokers.
type OrderbookOrder struct {
	MWh        float64  `json:"mwh"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
}

// Orderbook lists the residual bids and asks of one timeslot after clearing.
// ClearingPrice is nil when nothing traded.
type Orderbook struct {
	Timeslot      int              `json:"timeslot"`
	ClearingPrice *float64         `json:"clearing_price,omitempty"`
	Bids          []OrderbookOrder `json:"bids"`
	Asks          []OrderbookOrder `json:"asks"`
	DateExecuted  time.Time        `json:"date_executed"`
}

// ClearedTrade summarizes one timeslot's clearing.
type ClearedTrade struct {
	Timeslot       int       `json:"timeslot"`
	ExecutionMWh   float64   `json:"execution_mwh"`
	ExecutionPrice float64   `json:"execution_price"`
	DateExecuted   time.Time `json:"date_executed"`
}

// MarketPosition is a broker's net contracted energy for a timeslot.
type MarketPosition struct {
	Broker         string  `json:"broker"`
	Timeslot       int     `json:"timeslot"`
	OverallBalance float64 `json:"overall_balance"`
}
