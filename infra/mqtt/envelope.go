package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/gridmarket/core/model"
)

// kindBatch tags an envelope whose payload is a list of envelopes.
const kindBatch model.MessageKind = "batch"

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope wraps every message on the wire. Broker names the addressee on
// outbound topics and the sender on inbound ones.
type Envelope struct {
	MessageID string            `json:"message_id"`
	Kind      model.MessageKind `json:"kind"`
	Broker    string            `json:"broker,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
}

func newEnvelope(brokerID string, msg model.Message, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return Envelope{
		MessageID: uuid.NewString(),
		Kind:      msg.Kind(),
		Broker:    brokerID,
		Timestamp: now.UTC(),
		Payload:   payload,
	}, nil
}

func newBatchEnvelope(msgs []model.Message, now time.Time) (Envelope, error) {
	inner := make([]Envelope, 0, len(msgs))
	for _, m := range msgs {
		env, err := newEnvelope("", m, now)
		if err != nil {
			return Envelope{}, err
		}
		inner = append(inner, env)
	}
	payload, err := json.Marshal(inner)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{MessageID: uuid.NewString(), Kind: kindBatch, Timestamp: now.UTC(), Payload: payload}, nil
}

// DecodeEnvelope parses an inbound envelope and its message.
func DecodeEnvelope(data []byte) (Envelope, model.Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Kind == "" || len(env.Payload) == 0 {
		return env, nil, fmt.Errorf("%w: missing kind or payload", ErrMalformedEnvelope)
	}
	msg, err := model.DecodeMessage(env.Kind, env.Payload)
	if err != nil {
		return env, nil, err
	}
	return env, msg, nil
}

// BrokerTopic is the topic a single broker listens on.
func BrokerTopic(prefix, brokerID string) string { return prefix + "/broker/" + brokerID }

// BroadcastTopic is the topic every broker listens on.
func BroadcastTopic(prefix string) string { return prefix + "/broadcast" }

// InboxTopic is the wildcard the market subscribes to for inbound messages.
func InboxTopic(prefix string) string { return prefix + "/inbox/+" }

// senderOf extracts the broker id from an inbox topic.
func senderOf(prefix, topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, prefix+"/inbox/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
