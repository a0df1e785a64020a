package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	coreledger "github.com/kilianp07/gridmarket/core/ledger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStore exports committed postings to a Kafka topic, keyed by broker so
// each broker's postings stay ordered within a partition. Delivery is at
// least once; the posting ID travels in the "posting_id" header for
// consumers to deduplicate.
type KafkaStore struct {
	writer messageWriter
}

// NewKafkaStore creates a synchronous writer that waits for all replicas.
func NewKafkaStore(brokers []string, topic string) *KafkaStore {
	return &KafkaStore{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}}
}

func (s *KafkaStore) Append(ctx context.Context, postings []coreledger.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(postings))
	for _, p := range postings {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(p.Broker),
			Value:   b,
			Headers: []kafka.Header{{Key: "posting_id", Value: []byte(p.ID)}},
			Time:    p.Posted,
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

// Query is not supported; read the topic instead.
func (s *KafkaStore) Query(context.Context, coreledger.Query) ([]coreledger.Posting, error) {
	return nil, coreledger.ErrWriteOnly
}

func (s *KafkaStore) Close() error { return s.writer.Close() }
