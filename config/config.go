// Package config loads the game configuration from a YAML or JSON file with
// K_ prefixed environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/broker"
	"github.com/kilianp07/gridmarket/core/metrics"
	"github.com/kilianp07/gridmarket/core/tariffmarket"
	"github.com/kilianp07/gridmarket/core/timeslot"
	"github.com/kilianp07/gridmarket/infra/mqtt"
)

type Config struct {
	Auction      auction.Config      `json:"auction"`
	TariffMarket tariffmarket.Config `json:"tariff_market"`
	Timeslot     timeslot.Config     `json:"timeslot"`
	Brokers      []broker.Broker     `json:"brokers"`
	MQTT         mqtt.Config         `json:"mqtt"`
	Metrics      metrics.Config      `json:"metrics"`
	Ledger       LedgerConfig        `json:"ledger"`
	Logging      LoggingConfig       `json:"logging"`
	Sentry       SentryConfig        `json:"sentry"`
	API          APIConfig           `json:"api"`
}

// Default returns a configuration holding every subsystem default.
func Default() Config {
	cfg := Config{
		Auction:      auction.DefaultConfig(),
		TariffMarket: tariffmarket.DefaultConfig(),
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields of the sections that have defaults.
func (c *Config) SetDefaults() {
	c.Timeslot.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Auction.Validate(); err != nil {
		return err
	}
	if err := c.TariffMarket.Validate(); err != nil {
		return err
	}
	if err := c.Timeslot.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Brokers))
	for _, b := range c.Brokers {
		if b.ID == "" {
			return fmt.Errorf("brokers: empty id")
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("brokers: duplicate id %q", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
