// Package ledger provides the durable ledger stores registered with
// core/ledger: "sqlite", "jsonl" and "kafka".
package ledger

import (
	"errors"

	"github.com/kilianp07/gridmarket/core/factory"
	coreledger "github.com/kilianp07/gridmarket/core/ledger"
)

func init() {
	_ = coreledger.RegisterStore("sqlite", func(conf map[string]any) (coreledger.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, errors.New("sqlite: path required")
		}
		return NewSQLiteStore(c.Path)
	})

	_ = coreledger.RegisterStore("jsonl", func(conf map[string]any) (coreledger.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, errors.New("jsonl: path required")
		}
		return NewJSONLStore(c.Path)
	})

	_ = coreledger.RegisterStore("kafka", func(conf map[string]any) (coreledger.Store, error) {
		var c struct {
			Brokers []string `json:"brokers"`
			Topic   string   `json:"topic"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if len(c.Brokers) == 0 || c.Topic == "" {
			return nil, errors.New("kafka: brokers and topic required")
		}
		return NewKafkaStore(c.Brokers, c.Topic), nil
	})
}
