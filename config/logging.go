package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kilianp07/gridmarket/core/factory"
)

// LoggingConfig selects the global log level.
type LoggingConfig struct {
	Level string `json:"level"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// LedgerConfig lists the stores committed postings are written to. An empty
// list keeps postings in memory only.
type LedgerConfig struct {
	Stores []factory.ModuleConfig `json:"stores"`
}

// APIConfig enables the read-only HTTP API when Addr is set. A non-empty
// Token is required as a bearer token on ledger queries.
type APIConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token"`
}
