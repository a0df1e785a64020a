// Package ledger buffers the transactions produced during a timeslot and
// commits them once per timeslot to durable stores.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/gridmarket/core/model"
)

// TxKind classifies tariff transactions.
type TxKind string

const (
	TxPublish    TxKind = "publish"
	TxRevoke     TxKind = "revoke"
	TxSignup     TxKind = "signup"
	TxWithdraw   TxKind = "withdraw"
	TxRefund     TxKind = "refund"
	TxPeriodic   TxKind = "periodic"
	TxConsume    TxKind = "consume"
	TxProduce    TxKind = "produce"
	TxRegulation TxKind = "regulation"
)

// PostingType tells which ledger operation produced a posting.
type PostingType string

const (
	PostingMarket    PostingType = "market"
	PostingTariff    PostingType = "tariff"
	PostingBalancing PostingType = "balancing"
)

// Posting is one committed ledger line. Cash is the amount credited to the
// broker (negative when the broker pays).
type Posting struct {
	ID       string      `json:"id"`
	Type     PostingType `json:"type"`
	Timeslot int         `json:"timeslot"`
	Broker   string      `json:"broker"`
	Kind     TxKind      `json:"kind,omitempty"`
	TariffID int64       `json:"tariff_id,omitempty"`
	Customer string      `json:"customer,omitempty"`
	Count    int         `json:"count,omitempty"`
	Quantity float64     `json:"quantity"`
	Price    float64     `json:"price,omitempty"`
	Cash     float64     `json:"cash"`
	Posted   time.Time   `json:"posted"`
}

// Ledger is the sink the market subsystems post to.
type Ledger interface {
	// PostMarketTransaction records one leg of a wholesale trade: the seller
	// leg has negative mwh and positive price, the buyer leg the opposite.
	PostMarketTransaction(broker string, ts int, price, mwh float64)
	PostTariffTransaction(kind TxKind, tariffID int64, broker, customer string, count int, kwh, charge float64)
	PostBalancingControl(evt model.BalancingControlEvent)
}

// Query filters committed postings. Zero fields match everything.
type Query struct {
	Broker   string
	Type     PostingType
	Timeslot *int
}

// Match reports whether p satisfies q.
func (q Query) Match(p Posting) bool {
	if q.Broker != "" && p.Broker != q.Broker {
		return false
	}
	if q.Type != "" && p.Type != q.Type {
		return false
	}
	if q.Timeslot != nil && p.Timeslot != *q.Timeslot {
		return false
	}
	return true
}

// ErrWriteOnly is returned by stores that only export postings.
var ErrWriteOnly = errors.New("ledger store is write-only")

// Store persists committed postings. Appending a posting whose ID was
// already stored is a no-op.
type Store interface {
	Append(ctx context.Context, postings []Posting) error
	Query(ctx context.Context, q Query) ([]Posting, error)
	Close() error
}
