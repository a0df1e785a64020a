// Package router dispatches inbound broker messages to the subsystem that
// owns them and returns the acknowledgment for the sender.
package router

import (
	"errors"
	"fmt"

	"github.com/kilianp07/gridmarket/core/broker"
	"github.com/kilianp07/gridmarket/core/logger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/monitoring"
)

var ErrUnroutable = errors.New("no handler for message kind")

// OrderHandler accepts wholesale orders.
type OrderHandler interface {
	Submit(o model.Order) model.OrderStatus
}

// TariffHandler accepts the tariff-market messages.
type TariffHandler interface {
	Publish(spec model.TariffSpecification) model.TariffStatus
	Expire(msg model.TariffExpire) model.TariffStatus
	Revoke(msg model.TariffRevoke) model.TariffStatus
	UpdateRate(vru model.VariableRateUpdate) model.TariffStatus
	PostEconomicControl(evt model.EconomicControlEvent) model.TariffStatus
	AddBalancingOrder(o model.BalancingOrder) model.TariffStatus
}

// Router maps each inbound message variant to one handler.
type Router struct {
	orders    OrderHandler
	tariffs   TariffHandler
	transport broker.Transport
	log       logger.Logger
}

// New creates a router. tr receives the acknowledgments sent by Dispatch.
func New(orders OrderHandler, tariffs TariffHandler, tr broker.Transport, log logger.Logger) *Router {
	if tr == nil {
		tr = broker.NopTransport{}
	}
	return &Router{orders: orders, tariffs: tariffs, transport: tr, log: log}
}

// Handle routes msg and returns its acknowledgment, or nil when the
// message could not be handled.
func (r *Router) Handle(msg model.Message) model.Message {
	if msg == nil {
		r.log.Errorf("router: nil message")
		return nil
	}
	var ack model.Message
	err := monitoring.Guard("router."+string(msg.Kind()), func() error {
		switch m := msg.(type) {
		case model.Order:
			ack = r.orders.Submit(m)
		case model.TariffSpecification:
			ack = r.tariffs.Publish(m)
		case model.TariffExpire:
			ack = r.tariffs.Expire(m)
		case model.TariffRevoke:
			ack = r.tariffs.Revoke(m)
		case model.VariableRateUpdate:
			ack = r.tariffs.UpdateRate(m)
		case model.EconomicControlEvent:
			ack = r.tariffs.PostEconomicControl(m)
		case model.BalancingOrder:
			ack = r.tariffs.AddBalancingOrder(m)
		default:
			return fmt.Errorf("%w: %s", ErrUnroutable, msg.Kind())
		}
		return nil
	})
	if err != nil {
		r.log.Errorf("router: %v", err)
		return nil
	}
	return ack
}

// Dispatch handles msg from sender and sends the acknowledgment back.
func (r *Router) Dispatch(sender string, msg model.Message) error {
	ack := r.Handle(msg)
	if ack == nil {
		return nil
	}
	if err := r.transport.Send(sender, ack); err != nil {
		return fmt.Errorf("ack %s to %s: %w", msg.Kind(), sender, err)
	}
	return nil
}
