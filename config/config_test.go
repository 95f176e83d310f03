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
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `identity:
  charge_point_id: "CP001"
  vendor: "ACME"
  model: "Station X"
  id_tag: "TAG42"
connection:
  url: "ws://localhost:9000/ocpp"
  password: "secret"
station:
  connectors: 3
  max_power_w: 11000
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "nop"
configuration_keys:
  - name: "MeterValueSampleInterval"
    value: "10"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "CP001", cfg.Identity.ChargePointID)
	assert.Equal(t, "ACME", cfg.Identity.Vendor)
	assert.Equal(t, "ws://localhost:9000/ocpp", cfg.Connection.URL)
	assert.Equal(t, "secret", cfg.Connection.Password)
	assert.Equal(t, 3, cfg.Station.Connectors)
	assert.Equal(t, 11000, cfg.Station.MaxPowerW)
	assert.Equal(t, ":9100", cfg.Metrics.PrometheusAddr)
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, "nop", cfg.Metrics.Sinks[0].Type)
	require.Len(t, cfg.ConfigurationKeys, 1)
	assert.Equal(t, "MeterValueSampleInterval", cfg.ConfigurationKeys[0].Name)
	assert.Equal(t, "10", cfg.ConfigurationKeys[0].Value)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `identity:
  charge_point_id: "CP001"
connection:
  url: "wss://csms.example.com/ocpp"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "EVSim", cfg.Identity.Vendor)
	assert.Equal(t, 2, cfg.Station.Connectors)
	assert.Equal(t, 22000, cfg.Station.MaxPowerW)
	assert.Equal(t, 32, cfg.Station.MaxCurrentA)
	assert.Equal(t, 3600, cfg.Station.HeartbeatIntervalSeconds)
	assert.Equal(t, 5, cfg.Connection.MaxReconnectAttempts)
	assert.Equal(t, 30, cfg.Connection.CallTimeoutSeconds)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `identity:
  charge_point_id: "CP001"
connection:
  url: "ws://localhost:9000/ocpp"
`)
	t.Setenv("CP_CONNECTION__PASSWORD", "fromenv")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Connection.Password)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "identity": {"charge_point_id": "CP002"},
  "connection": {"url": "ws://localhost:9000/ocpp"}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "CP002", cfg.Identity.ChargePointID)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeConfig(t, "config.toml", "")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"missing id", func(c *Config) { c.Identity.ChargePointID = "" }},
		{"missing url", func(c *Config) { c.Connection.URL = "" }},
		{"bad scheme", func(c *Config) { c.Connection.URL = "http://localhost" }},
		{"no connectors", func(c *Config) { c.Station.Connectors = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{}
			cfg.SetDefaults()
			cfg.Identity.ChargePointID = "CP001"
			cfg.Connection.URL = "ws://localhost:9000/ocpp"
			tc.mut(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
