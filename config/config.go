// Package config loads the simulator configuration from YAML or JSON
// files with environment variable overrides.
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

	"github.com/evsim/cpsim/core/confkeys"
	"github.com/evsim/cpsim/core/factory"
)

// Config is the root configuration of the simulator.
type Config struct {
	Identity          IdentityConfig   `json:"identity"`
	Connection        ConnectionConfig `json:"connection"`
	Station           StationConfig    `json:"station"`
	Metrics           MetricsConfig    `json:"metrics"`
	ConfigurationKeys []confkeys.Key   `json:"configuration_keys"`
}

// IdentityConfig identifies the charge point toward the central system.
type IdentityConfig struct {
	ChargePointID   string `json:"charge_point_id"`
	Vendor          string `json:"vendor"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	FirmwareVersion string `json:"firmware_version"`
	IdTag           string `json:"id_tag"`
}

// ConnectionConfig holds the central system endpoint and retry policy.
type ConnectionConfig struct {
	URL                     string `json:"url"`
	Password                string `json:"password"`
	CABundle                string `json:"ca_bundle"`
	InsecureSkipVerify      bool   `json:"insecure_skip_verify"`
	HandshakeTimeoutSeconds int    `json:"handshake_timeout_seconds"`
	PingIntervalSeconds     int    `json:"ping_interval_seconds"`
	MaxReconnectAttempts    int    `json:"max_reconnect_attempts"`
	ReconnectDelaySeconds   int    `json:"reconnect_delay_seconds"`
	CallTimeoutSeconds      int    `json:"call_timeout_seconds"`
}

// StationConfig describes the simulated hardware.
type StationConfig struct {
	Connectors               int `json:"connectors"`
	MaxPowerW                int `json:"max_power_w"`
	MaxCurrentA              int `json:"max_current_a"`
	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds"`
}

// MetricsConfig selects the telemetry sinks.
type MetricsConfig struct {
	Sinks          []factory.ModuleConfig `json:"sinks"`
	PrometheusAddr string                 `json:"prometheus_addr"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Identity.Vendor == "" {
		c.Identity.Vendor = "EVSim"
	}
	if c.Identity.Model == "" {
		c.Identity.Model = "SimOne"
	}
	if c.Station.Connectors == 0 {
		c.Station.Connectors = 2
	}
	if c.Station.MaxPowerW == 0 {
		c.Station.MaxPowerW = 22000
	}
	if c.Station.MaxCurrentA == 0 {
		c.Station.MaxCurrentA = 32
	}
	if c.Station.HeartbeatIntervalSeconds == 0 {
		c.Station.HeartbeatIntervalSeconds = 3600
	}
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = 5
	}
	if c.Connection.ReconnectDelaySeconds == 0 {
		c.Connection.ReconnectDelaySeconds = 5
	}
	if c.Connection.CallTimeoutSeconds == 0 {
		c.Connection.CallTimeoutSeconds = 30
	}
	if c.Metrics.PrometheusAddr == "" {
		c.Metrics.PrometheusAddr = ":9464"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Identity.ChargePointID == "" {
		return fmt.Errorf("identity.charge_point_id is required")
	}
	if c.Connection.URL == "" {
		return fmt.Errorf("connection.url is required")
	}
	if !strings.HasPrefix(c.Connection.URL, "ws://") && !strings.HasPrefix(c.Connection.URL, "wss://") {
		return fmt.Errorf("connection.url must use the ws or wss scheme")
	}
	if c.Station.Connectors < 1 {
		return fmt.Errorf("station.connectors must be at least 1")
	}
	return nil
}

// Load reads the configuration file at path. Environment variables
// prefixed with CP_ override file values, with __ as the path
// separator, e.g. CP_CONNECTION__URL.
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
	if err := k.Load(env.Provider("CP_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cp_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
