package mqtt

import (
	"encoding/json"

	"github.com/kilianp07/gridmarket/core/model"
)

// messageRef holds the identifiers readable from a payload that failed to
// decode as its declared kind.
type messageRef struct {
	ID       json.RawMessage `json:"id"`
	TariffID int64           `json:"tariff_id"`
}

// reject answers a refused inbound message on the sender's topic.
func (t *Transport) reject(sender string, status model.Message) {
	if err := t.Send(sender, status); err != nil {
		t.log.Errorf("mqtt: reject %s to %s: %v", status.Kind(), sender, err)
	}
}

// malformedStatus builds the reply to an envelope or payload that could not
// be decoded. Orders get an OrderStatus, every other kind a TariffStatus.
func malformedStatus(sender string, env Envelope, cause error) model.Message {
	var ref messageRef
	if len(env.Payload) > 0 {
		_ = json.Unmarshal(env.Payload, &ref)
	}
	if env.Kind == model.KindOrder {
		var id string
		_ = json.Unmarshal(ref.ID, &id)
		return model.OrderStatus{Broker: sender, OrderID: id, Status: model.OrderMalformed, Message: cause.Error()}
	}
	var id int64
	_ = json.Unmarshal(ref.ID, &id)
	st := model.TariffStatus{Broker: sender, TariffID: ref.TariffID, UpdateID: id, Status: model.StatusInvalidTariff, Message: cause.Error()}
	switch env.Kind {
	case model.KindTariffSpecification:
		st.TariffID, st.UpdateID = id, 0
	case model.KindTariffExpire, model.KindTariffRevoke, model.KindVariableRateUpdate,
		model.KindEconomicControl, model.KindBalancingOrder:
		st.Status = model.StatusInvalidUpdate
	default:
		st.Status = model.StatusUnsupported
	}
	return st
}

// illegalStatus builds the reply to a message that names another broker
// than the inbox it arrived on.
func illegalStatus(sender string, msg model.Message) model.Message {
	reason := ErrSenderMismatch.Error()
	switch m := msg.(type) {
	case model.Order:
		return model.OrderStatus{Broker: sender, OrderID: m.ID, Status: model.OrderIllegal, Message: reason}
	case model.TariffSpecification:
		return model.TariffStatus{Broker: sender, TariffID: m.ID, Status: model.StatusIllegalOperation, Message: reason}
	case model.TariffExpire:
		return model.TariffStatus{Broker: sender, TariffID: m.TariffID, UpdateID: m.ID, Status: model.StatusIllegalOperation, Message: reason}
	case model.TariffRevoke:
		return model.TariffStatus{Broker: sender, TariffID: m.TariffID, UpdateID: m.ID, Status: model.StatusIllegalOperation, Message: reason}
	case model.VariableRateUpdate:
		return model.TariffStatus{Broker: sender, TariffID: m.TariffID, UpdateID: m.ID, Status: model.StatusIllegalOperation, Message: reason}
	case model.EconomicControlEvent:
		return model.TariffStatus{Broker: sender, TariffID: m.TariffID, UpdateID: m.ID, Status: model.StatusIllegalOperation, Message: reason}
	case model.BalancingOrder:
		return model.TariffStatus{Broker: sender, TariffID: m.TariffID, UpdateID: m.ID, Status: model.StatusIllegalOperation, Message: reason}
	}
	return model.TariffStatus{Broker: sender, Status: model.StatusIllegalOperation, Message: reason}
}
