// Package confkeys holds the OCPP 1.6 configuration key table served
// through GetConfiguration/ChangeConfiguration. Keys are plain strings
// on the wire; typed accessors parse on read.
package confkeys

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/evsim/cpsim/core/logger"
	"github.com/evsim/cpsim/core/ocpp"
)

// Key is one configuration entry.
type Key struct {
	Name           string `json:"name"`
	Readonly       bool   `json:"readonly"`
	Value          string `json:"value"`
	RebootRequired bool   `json:"reboot_required"`
}

// Options seeds the instance-specific defaults.
type Options struct {
	HeartbeatInterval int
	Connectors        int
	MaxPowerW         int
}

// Store is a thread-safe configuration key table.
type Store struct {
	mu   sync.RWMutex
	keys map[string]*Key
	log  logger.Logger
}

// New builds a store with the standard OCPP 1.6 key set.
func New(opts Options, log logger.Logger) *Store {
	s := &Store{keys: make(map[string]*Key), log: log}
	for _, k := range defaults(opts) {
		key := k
		s.keys[key.Name] = &key
	}
	return s
}

func defaults(opts Options) []Key {
	return []Key{
		{Name: "AllowOfflineTxForUnknownId", Value: "false"},
		{Name: "AuthorizationCacheEnabled", Value: "false"},
		{Name: "AuthorizeRemoteTxRequests", Value: "true"},
		{Name: "BlinkRepeat", Value: "3"},
		{Name: "ClockAlignedDataInterval", Value: "0"},
		{Name: "ConnectionTimeOut", Value: "120"},
		{Name: "ConnectorPhaseRotation", Value: "0.RST,1.RST"},
		{Name: "GetConfigurationMaxKeys", Value: "100"},
		{Name: "HeartbeatInterval", Value: strconv.Itoa(opts.HeartbeatInterval)},
		{Name: "LightIntensity", Value: "50"},
		{Name: "LocalAuthorizeOffline", Value: "true"},
		{Name: "LocalPreAuthorize", Value: "false"},
		{Name: "MaxEnergyOnInvalidId", Value: "0"},
		{Name: "MeterValuesAlignedData", Value: "Energy.Active.Import.Register"},
		{Name: "MeterValuesSampledData", Value: "Energy.Active.Import.Register,Power.Active.Import"},
		{Name: "MeterValueSampleInterval", Value: "60"},
		{Name: "MinimumStatusDuration", Value: "0"},
		{Name: "NumberOfConnectors", Readonly: true, Value: strconv.Itoa(opts.Connectors)},
		{Name: "ResetRetries", Value: "3"},
		{Name: "StopTransactionOnEVSideDisconnect", Value: "true"},
		{Name: "StopTransactionOnInvalidId", Value: "true"},
		{Name: "StopTxnAlignedData", Value: "Energy.Active.Import.Register"},
		{Name: "StopTxnSampledData", Value: "Energy.Active.Import.Register"},
		{Name: "SupportedFeatureProfiles", Readonly: true,
			Value: "Core,FirmwareManagement,LocalAuthListManagement,Reservation,SmartCharging,RemoteTrigger"},
		{Name: "TransactionMessageAttempts", Value: "3"},
		{Name: "TransactionMessageRetryInterval", Value: "10"},
		{Name: "UnlockConnectorOnEVSideDisconnect", Value: "true"},
		{Name: "WebSocketPingInterval", Value: "0"},

		{Name: "LocalAuthListEnabled", Value: "false"},
		{Name: "LocalAuthListMaxLength", Readonly: true, Value: "100"},
		{Name: "SendLocalListMaxLength", Readonly: true, Value: "20"},

		{Name: "ReserveConnectorZeroSupported", Readonly: true, Value: "false"},

		{Name: "ChargeProfileMaxStackLevel", Readonly: true, Value: "10"},
		{Name: "ChargingScheduleAllowedChargingRateUnit", Readonly: true, Value: "Current,Power"},
		{Name: "ChargingScheduleMaxPeriods", Readonly: true, Value: "6"},
		{Name: "ConnectorSwitch3to1PhaseSupported", Readonly: true, Value: "false"},
		{Name: "MaxChargingProfilesInstalled", Readonly: true, Value: "10"},

		{Name: "MaxChargingPower", Readonly: true, Value: strconv.Itoa(opts.MaxPowerW)},
	}
}

// LoadCustom merges operator-supplied keys, overriding or extending the
// defaults.
func (s *Store) LoadCustom(keys []Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k.Name == "" {
			continue
		}
		key := k
		s.keys[key.Name] = &key
	}
}

// Get returns the key's value or def when the key is absent.
func (s *Store) Get(name, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k, ok := s.keys[name]; ok {
		return k.Value
	}
	return def
}

// GetInt returns the key's value parsed as an integer, falling back to
// def when the key is absent or malformed.
func (s *Store) GetInt(name string, def int) int {
	v := s.Get(name, strconv.Itoa(def))
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBool returns the key's value parsed as a boolean.
func (s *Store) GetBool(name string, def bool) bool {
	v := s.Get(name, strconv.FormatBool(def))
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Set applies a ChangeConfiguration request against the table.
func (s *Store) Set(name, value string) ocpp.ConfigurationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[name]
	if !ok {
		return ocpp.ConfigurationNotSupported
	}
	if k.Readonly {
		s.log.Warnf("rejected change to read-only configuration key %s", name)
		return ocpp.ConfigurationRejected
	}

	if name == "HeartbeatInterval" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return ocpp.ConfigurationRejected
		}
	}

	k.Value = value
	s.log.Infof("configuration key %s set to %q", name, value)
	if k.RebootRequired {
		return ocpp.ConfigurationRebootRequired
	}
	return ocpp.ConfigurationAccepted
}

// Lookup returns a copy of a single key.
func (s *Store) Lookup(name string) (Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k, ok := s.keys[name]; ok {
		return *k, true
	}
	return Key{}, false
}

// All returns every key sorted by name.
func (s *Store) All() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Key, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, *k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Configuration answers a GetConfiguration request: the requested keys
// with their values plus the names that are unknown. An empty request
// returns the full table.
func (s *Store) Configuration(names []string) ([]ocpp.KeyValue, []string) {
	if len(names) == 0 {
		all := s.All()
		out := make([]ocpp.KeyValue, 0, len(all))
		for _, k := range all {
			v := k.Value
			out = append(out, ocpp.KeyValue{Key: k.Name, Readonly: k.Readonly, Value: &v})
		}
		return out, nil
	}

	var known []ocpp.KeyValue
	var unknown []string
	for _, name := range names {
		k, ok := s.Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		v := k.Value
		known = append(known, ocpp.KeyValue{Key: k.Name, Readonly: k.Readonly, Value: &v})
	}
	return known, unknown
}

// String renders the table for debug output.
func (s *Store) String() string {
	return fmt.Sprintf("confkeys.Store(%d keys)", len(s.All()))
}
