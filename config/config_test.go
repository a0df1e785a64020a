package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `auction:
  seller_max_margin: 0
  position_limit:
    capacity: 150
tariff_market:
  publication_interval: 4
  publication_offset: 1
  publication_fee:
    fixed: -250
timeslot:
  start: "2024-03-01T00:00:00Z"
  tick_seconds: 2
brokers:
  - id: "default"
    wholesale: true
    enabled: true
  - id: "b1"
    enabled: true
mqtt:
  broker: "tcp://localhost:1883"
  topic_prefix: "game1"
  qos:
    send: 2
metrics:
  prometheus_port: ":9100"
  sinks:
    - type: "nop"
ledger:
  stores:
    - type: "sqlite"
      conf:
        path: "ledger.db"
logging:
  level: "debug"
sentry:
  game_id: "game-1"
api:
  addr: ":8080"
  token: "secret"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"auction.seller_max_margin", cfg.Auction.SellerMaxMargin, 0.0},
		{"auction.default_margin kept", cfg.Auction.DefaultMargin, 0.05},
		{"auction.position_limit.capacity", cfg.Auction.PositionLimit.Capacity, 150.0},
		{"auction.position_limit.initial_fraction kept", cfg.Auction.PositionLimit.InitialFraction, 90.0 / 143.0},
		{"tariff_market.publication_interval", cfg.TariffMarket.PublicationInterval, 4},
		{"tariff_market.publication_offset", cfg.TariffMarket.PublicationOffset, 1},
		{"tariff_market.revocation_fee.min kept", cfg.TariffMarket.RevocationFee.Min, -100.0},
		{"timeslot.start", cfg.Timeslot.Start, "2024-03-01T00:00:00Z"},
		{"timeslot.tick_seconds", cfg.Timeslot.TickSeconds, 2},
		{"timeslot.window default", cfg.Timeslot.Window, 24},
		{"brokers", len(cfg.Brokers), 2},
		{"broker wholesale", cfg.Brokers[0].Wholesale, true},
		{"mqtt.topic_prefix", cfg.MQTT.TopicPrefix, "game1"},
		{"mqtt.client_id default", cfg.MQTT.ClientID, "gridmarket"},
		{"metrics.prometheus_port", cfg.Metrics.PrometheusPort, ":9100"},
		{"ledger.stores", cfg.Ledger.Stores[0].Type, "sqlite"},
		{"ledger.stores.conf", cfg.Ledger.Stores[0].Conf["path"], "ledger.db"},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"sentry.game_id", cfg.Sentry.GameID, "game-1"},
		{"api.addr", cfg.API.Addr, ":8080"},
		{"api.token", cfg.API.Token, "secret"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
	require.NotNil(t, cfg.TariffMarket.PublicationFee.Fixed)
	assert.Equal(t, -250.0, *cfg.TariffMarket.PublicationFee.Fixed)
	assert.Equal(t, byte(2), cfg.MQTT.QoS["send"])
}

func TestLoadDefaultsFromEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{}`))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, 6, cfg.TariffMarket.PublicationInterval)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("K_TARIFF_MARKET__PUBLICATION_INTERVAL", "12")
	cfg, err := Load(writeConfig(t, "config.yaml", "logging:\n  level: warn\n"))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.TariffMarket.PublicationInterval)
}

func TestLoadZeroLead(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", "timeslot:\n  lead: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Timeslot.Lead)
	assert.Equal(t, 0, *cfg.Timeslot.Lead)

	cfg, err = Load(writeConfig(t, "config.yaml", "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, *cfg.Timeslot.Lead)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"offset":   "tariff_market:\n  publication_offset: 6\n",
		"level":    "logging:\n  level: chatty\n",
		"dup":      "brokers:\n  - id: b1\n  - id: b1\n",
		"surplus":  "auction:\n  seller_surplus_ratio: 2\n",
		"timeslot": "timeslot:\n  start: yesterday\n",
		"mqtt qos": "mqtt:\n  broker: tcp://x:1883\n  qos:\n    send: 3\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}
	_, err := Load(writeConfig(t, "config.toml", ""))
	assert.Error(t, err)
}
