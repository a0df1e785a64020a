// Package mqtt implements the broker transport over an MQTT broker. Outbound
// messages go to <prefix>/broker/<id> and <prefix>/broadcast; inbound
// messages are read from <prefix>/inbox/<id> and handed to a Dispatcher.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/gridmarket/core/logger"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/monitoring"
)

var ErrSenderMismatch = errors.New("message broker does not match inbox topic")

// Dispatcher consumes inbound broker messages.
type Dispatcher interface {
	Dispatch(sender string, msg model.Message) error
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Transport implements broker.Transport on top of Eclipse Paho.
type Transport struct {
	cli     pahoClient
	cfg     Config
	log     logger.Logger
	backoff time.Duration
	now     func() time.Time

	mu         sync.Mutex
	dispatcher Dispatcher
}

// NewTransport connects to the MQTT broker. Inbound messages are ignored
// until Listen is called.
func NewTransport(cfg Config, log logger.Logger) (*Transport, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	t := &Transport{
		cfg:     cfg,
		log:     log,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
		now:     time.Now,
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		// Subscriptions do not survive a reconnect without a persistent session.
		t.mu.Lock()
		listening := t.dispatcher != nil
		t.mu.Unlock()
		if listening {
			t.subscribe(c)
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	t.cli = c
	return t, nil
}

// Listen subscribes to the inbox topic and hands every decoded message to d.
func (t *Transport) Listen(d Dispatcher) error {
	t.mu.Lock()
	t.dispatcher = d
	t.mu.Unlock()
	return t.subscribe(t.cli)
}

func (t *Transport) subscribe(c interface {
	Subscribe(string, byte, paho.MessageHandler) paho.Token
}) error {
	topic := InboxTopic(t.cfg.TopicPrefix)
	if token := c.Subscribe(topic, t.cfg.qos(QoSInbox), t.onInbound); token.Wait() && token.Error() != nil {
		t.log.Errorf("subscribe %s: %v", topic, token.Error())
		return token.Error()
	}
	return nil
}

func (t *Transport) onInbound(_ paho.Client, m paho.Message) {
	sender, ok := senderOf(t.cfg.TopicPrefix, m.Topic())
	if !ok {
		t.log.Warnf("mqtt: message on unexpected topic %s", m.Topic())
		return
	}
	env, msg, err := DecodeEnvelope(m.Payload())
	if err != nil {
		t.log.Warnw("mqtt: inbound message rejected", map[string]any{
			"broker": sender, "message_id": env.MessageID, "error": err.Error(),
		})
		t.reject(sender, malformedStatus(sender, env, err))
		return
	}
	if claimed := claimedBroker(msg); claimed != sender {
		t.log.Warnw("mqtt: inbound message rejected", map[string]any{
			"broker": sender, "message_id": env.MessageID, "claimed": claimed, "error": ErrSenderMismatch.Error(),
		})
		t.reject(sender, illegalStatus(sender, msg))
		return
	}
	t.mu.Lock()
	d := t.dispatcher
	t.mu.Unlock()
	if d == nil {
		return
	}
	if err := d.Dispatch(sender, msg); err != nil {
		t.log.Errorf("mqtt: dispatch %s from %s: %v", env.Kind, sender, err)
	}
}

func claimedBroker(msg model.Message) string {
	switch m := msg.(type) {
	case model.Order:
		return m.Broker
	case model.TariffSpecification:
		return m.Broker
	case model.TariffExpire:
		return m.Broker
	case model.TariffRevoke:
		return m.Broker
	case model.VariableRateUpdate:
		return m.Broker
	case model.EconomicControlEvent:
		return m.Broker
	case model.BalancingOrder:
		return m.Broker
	}
	return ""
}

// Send delivers msg to one broker's topic.
func (t *Transport) Send(brokerID string, msg model.Message) error {
	env, err := newEnvelope(brokerID, msg, t.now())
	if err != nil {
		return err
	}
	return t.publish(BrokerTopic(t.cfg.TopicPrefix, brokerID), t.cfg.qos(QoSSend), env, brokerID)
}

// Broadcast delivers msg on the broadcast topic.
func (t *Transport) Broadcast(msg model.Message) error {
	env, err := newEnvelope("", msg, t.now())
	if err != nil {
		return err
	}
	return t.publish(BroadcastTopic(t.cfg.TopicPrefix), t.cfg.qos(QoSBroadcast), env, "")
}

// BroadcastBatch delivers msgs in a single batch envelope.
func (t *Transport) BroadcastBatch(msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	env, err := newBatchEnvelope(msgs, t.now())
	if err != nil {
		return err
	}
	return t.publish(BroadcastTopic(t.cfg.TopicPrefix), t.cfg.qos(QoSBroadcast), env, "")
}

// publish retries with exponential backoff and reports the final failure.
func (t *Transport) publish(topic string, qos byte, env Envelope, brokerID string) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= t.cfg.MaxRetries; attempt++ {
		token := t.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			t.log.Debugf("sent %s %s to %s", env.Kind, env.MessageID, topic)
			return nil
		}
		t.log.Errorf("publish attempt %d to %s failed: %v", attempt+1, topic, publishErr)
		if attempt < t.cfg.MaxRetries {
			time.Sleep(t.backoff * time.Duration(1<<attempt))
		}
	}
	monitoring.CaptureException(publishErr, map[string]string{
		"module": "mqtt", "topic": topic, "broker": brokerID, "kind": string(env.Kind),
	})
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// Disconnect gracefully closes the MQTT connection.
func (t *Transport) Disconnect() {
	if t.cli != nil && t.cli.IsConnected() {
		t.cli.Disconnect(250)
	}
}
