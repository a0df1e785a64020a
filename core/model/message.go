package model

import (
	"encoding/json"
	"fmt"
)

// MessageKind tags every message exchanged with brokers.
type MessageKind string

const (
	KindOrder               MessageKind = "order"
	KindOrderStatus         MessageKind = "order_status"
	KindOrderbook           MessageKind = "orderbook"
	KindClearedTrade        MessageKind = "cleared_trade"
	KindTariffSpecification MessageKind = "tariff_specification"
	KindTariffSpecBatch     MessageKind = "tariff_spec_batch"
	KindTariffStatus        MessageKind = "tariff_status"
	KindTariffExpire        MessageKind = "tariff_expire"
	KindTariffRevoke        MessageKind = "tariff_revoke"
	KindVariableRateUpdate  MessageKind = "variable_rate_update"
	KindEconomicControl     MessageKind = "economic_control"
	KindBalancingOrder      MessageKind = "balancing_order"
	KindBalancingControl    MessageKind = "balancing_control"
)

// Message is the closed set of broker-facing message variants.
type Message interface {
	Kind() MessageKind
}

func (Order) Kind() MessageKind                 { return KindOrder }
func (OrderStatus) Kind() MessageKind           { return KindOrderStatus }
func (Orderbook) Kind() MessageKind             { return KindOrderbook }
func (ClearedTrade) Kind() MessageKind          { return KindClearedTrade }
func (TariffSpecification) Kind() MessageKind   { return KindTariffSpecification }
func (TariffSpecBatch) Kind() MessageKind       { return KindTariffSpecBatch }
func (TariffStatus) Kind() MessageKind          { return KindTariffStatus }
func (TariffExpire) Kind() MessageKind          { return KindTariffExpire }
func (TariffRevoke) Kind() MessageKind          { return KindTariffRevoke }
func (VariableRateUpdate) Kind() MessageKind    { return KindVariableRateUpdate }
func (EconomicControlEvent) Kind() MessageKind  { return KindEconomicControl }
func (BalancingOrder) Kind() MessageKind        { return KindBalancingOrder }
func (BalancingControlEvent) Kind() MessageKind { return KindBalancingControl }

// DecodeMessage builds the inbound variant identified by kind from its JSON
// payload. Outbound-only kinds are refused.
func DecodeMessage(kind MessageKind, payload []byte) (Message, error) {
	var (
		msg Message
		err error
	)
	switch kind {
	case KindOrder:
		var m Order
		err = json.Unmarshal(payload, &m)
		msg = m
	case KindTariffSpecification:
		var m TariffSpecification
		err = json.Unmarshal(payload, &m)
		msg = m
	case KindTariffExpire:
		var m TariffExpire
		err = json.Unmarshal(payload, &m)
		msg = m
	case KindTariffRevoke:
		var m TariffRevoke
		err = json.Unmarshal(payload, &m)
		msg = m
	case KindVariableRateUpdate:
		var m VariableRateUpdate
		err = json.Unmarshal(payload, &m)
		msg = m
	case KindEconomicControl:
		var m EconomicControlEvent
		err = json.Unmarshal(payload, &m)
		msg = m
	case KindBalancingOrder:
		var m BalancingOrder
		err = json.Unmarshal(payload, &m)
		msg = m
	default:
		return nil, fmt.Errorf("unsupported inbound message kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return msg, nil
}
