package profile

import (
	"strings"
	"sync"
	"time"

	"github.com/evsim/cpsim/core/logger"
	"github.com/evsim/cpsim/core/ocpp"
)

// Settings is the configuration key store the scheduler consults for
// its operating limits.
type Settings interface {
	Get(key, def string) string
	GetInt(key string, def int) int
}

// TransactionLookup reports transaction activity, backed by the station
// runtime state.
type TransactionLookup interface {
	// ActiveTransaction returns the transaction id active on a connector.
	ActiveTransaction(connectorID int) (int, bool)
	// IsTransactionActive reports whether the id is active on any connector.
	IsTransactionActive(txID int) bool
}

// Limits is the effective limit in force for a connector. Nil fields
// mean no restriction.
type Limits struct {
	PowerW   *float64
	CurrentA *float64
	MinRate  *float64
}

// Restricted reports whether any limit is present.
func (l Limits) Restricted() bool { return l.PowerW != nil || l.CurrentA != nil }

// ClearCriteria selects profiles for removal. A profile matches by ID,
// or by purpose (optionally narrowed by stack level).
type ClearCriteria struct {
	ID          *int
	ConnectorID *int
	Purpose     *ocpp.ChargingProfilePurpose
	StackLevel  *int
}

// Config carries the simulated charger's physical ratings.
type Config struct {
	Connectors  int
	MaxPowerW   float64
	MaxCurrentA float64
}

// Store holds charging profiles per connector and maintains the derived
// effective limit. Connector 0 holds charge-point level profiles that
// apply to every physical connector.
type Store struct {
	cfg      Config
	settings Settings
	tx       TransactionLookup
	log      logger.Logger
	now      func() time.Time

	mu        sync.Mutex
	profiles  map[int][]*Profile
	limits    map[int]Limits
	listeners []func(connectorID int, l Limits)
}

// NewStore creates a Store for connectors 0..cfg.Connectors.
func NewStore(cfg Config, settings Settings, tx TransactionLookup, log logger.Logger) *Store {
	s := &Store{
		cfg:      cfg,
		settings: settings,
		tx:       tx,
		log:      log,
		now:      time.Now,
		profiles: make(map[int][]*Profile),
		limits:   make(map[int]Limits),
	}
	for i := 0; i <= cfg.Connectors; i++ {
		s.profiles[i] = nil
		s.limits[i] = Limits{}
	}
	return s
}

// OnLimitChange registers a listener invoked with the recomputed limit
// after every mutation. Listeners are called outside the store lock.
func (s *Store) OnLimitChange(fn func(connectorID int, l Limits)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// SetProfile validates and installs a profile on a connector. A profile
// with the same id or the same (stackLevel, purpose) pair replaces the
// existing one. The store is not touched unless the profile is accepted.
func (s *Store) SetProfile(connectorID int, wire ocpp.ChargingProfile) ocpp.ChargingProfileStatus {
	now := s.now()

	if connectorID < 0 || connectorID > s.cfg.Connectors {
		s.log.Warnf("charging profile %d rejected: connector %d out of range", wire.ChargingProfileID, connectorID)
		return ocpp.ProfileRejected
	}

	p := fromWire(wire, now)

	if status := s.validate(p, connectorID); status != ocpp.ProfileAccepted {
		return status
	}

	s.mu.Lock()
	s.evictConflicting(connectorID, p)
	s.profiles[connectorID] = append(s.profiles[connectorID], p)
	limit := s.recomputeLocked(connectorID, now)
	listeners := s.listeners
	s.mu.Unlock()

	s.log.Infof("charging profile %d accepted on connector %d (stack %d, purpose %s)",
		p.ID, connectorID, p.StackLevel, p.Purpose)
	for _, fn := range listeners {
		fn(connectorID, limit)
	}
	return ocpp.ProfileAccepted
}

func (s *Store) validate(p *Profile, connectorID int) ocpp.ChargingProfileStatus {
	maxStack := s.settings.GetInt("ChargeProfileMaxStackLevel", 10)
	if p.StackLevel > maxStack {
		s.log.Warnf("profile %d rejected: stack level %d exceeds maximum %d", p.ID, p.StackLevel, maxStack)
		return ocpp.ProfileRejected
	}

	maxPeriods := s.settings.GetInt("ChargingScheduleMaxPeriods", 6)
	if len(p.Schedule.Periods) > maxPeriods {
		s.log.Warnf("profile %d rejected: %d periods exceeds maximum %d", p.ID, len(p.Schedule.Periods), maxPeriods)
		return ocpp.ProfileRejected
	}

	last := -1
	for _, period := range p.Schedule.Periods {
		if period.Offset <= last {
			s.log.Warnf("profile %d rejected: period offsets must be strictly increasing", p.ID)
			return ocpp.ProfileRejected
		}
		if period.Limit < 0 {
			s.log.Warnf("profile %d rejected: negative period limit", p.ID)
			return ocpp.ProfileRejected
		}
		last = period.Offset
	}

	if p.Purpose == ocpp.PurposeTxProfile {
		if p.TransactionID != nil {
			active, ok := s.tx.ActiveTransaction(connectorID)
			if !ok || active != *p.TransactionID {
				s.log.Warnf("profile %d rejected: transaction %d not active on connector %d", p.ID, *p.TransactionID, connectorID)
				return ocpp.ProfileRejected
			}
		} else if connectorID == 0 {
			s.log.Warnf("profile %d rejected: TxProfile on connector 0 requires a transaction id", p.ID)
			return ocpp.ProfileRejected
		}
	}

	if !s.unitAllowed(p.Schedule.RateUnit) {
		s.log.Warnf("profile %d not supported: rate unit %s not allowed", p.ID, p.Schedule.RateUnit)
		return ocpp.ProfileNotSupported
	}

	maxPower := float64(s.settings.GetInt("MaxChargingPower", int(s.cfg.MaxPowerW)))
	for _, period := range p.Schedule.Periods {
		switch p.Schedule.RateUnit {
		case ocpp.RateUnitWatts:
			if period.Limit > maxPower {
				s.log.Warnf("profile %d rejected: %0.f W exceeds charger maximum %0.f W", p.ID, period.Limit, maxPower)
				return ocpp.ProfileRejected
			}
		case ocpp.RateUnitAmperes:
			if s.cfg.MaxCurrentA > 0 && period.Limit > s.cfg.MaxCurrentA {
				s.log.Warnf("profile %d rejected: %0.f A exceeds charger maximum %0.f A", p.ID, period.Limit, s.cfg.MaxCurrentA)
				return ocpp.ProfileRejected
			}
			if est := wattsFromAmps(period.Limit, period.Phases); est > maxPower {
				s.log.Warnf("profile %d rejected: %0.f A (%0.f W estimated) exceeds charger maximum %0.f W", p.ID, period.Limit, est, maxPower)
				return ocpp.ProfileRejected
			}
		}
	}

	return ocpp.ProfileAccepted
}

func (s *Store) unitAllowed(unit ocpp.ChargingRateUnit) bool {
	allowed := s.settings.Get("ChargingScheduleAllowedChargingRateUnit", "Current,Power")
	for _, u := range strings.Split(allowed, ",") {
		switch strings.TrimSpace(u) {
		case "Power":
			if unit == ocpp.RateUnitWatts {
				return true
			}
		case "Current":
			if unit == ocpp.RateUnitAmperes {
				return true
			}
		}
	}
	return false
}

// evictConflicting removes profiles sharing the new profile's id or its
// (stackLevel, purpose) pair. Caller holds the lock.
func (s *Store) evictConflicting(connectorID int, p *Profile) {
	kept := s.profiles[connectorID][:0]
	for _, existing := range s.profiles[connectorID] {
		if existing.ID == p.ID ||
			(existing.StackLevel == p.StackLevel && existing.Purpose == p.Purpose) {
			s.log.Infof("evicting charging profile %d from connector %d", existing.ID, connectorID)
			continue
		}
		kept = append(kept, existing)
	}
	s.profiles[connectorID] = kept
}

// ClearProfiles removes every profile matching the criteria, scanning
// all connectors when none is given. It returns Accepted when at least
// one profile was removed.
func (s *Store) ClearProfiles(c ClearCriteria) ocpp.ClearChargingProfileStatus {
	now := s.now()

	s.mu.Lock()
	connectors := make([]int, 0, len(s.profiles))
	if c.ConnectorID != nil {
		if _, ok := s.profiles[*c.ConnectorID]; ok {
			connectors = append(connectors, *c.ConnectorID)
		}
	} else {
		for i := 0; i <= s.cfg.Connectors; i++ {
			connectors = append(connectors, i)
		}
	}

	cleared := false
	changed := make(map[int]Limits)
	for _, connectorID := range connectors {
		kept := s.profiles[connectorID][:0]
		removed := false
		for _, p := range s.profiles[connectorID] {
			if c.matches(p) {
				s.log.Infof("cleared charging profile %d from connector %d", p.ID, connectorID)
				cleared = true
				removed = true
				continue
			}
			kept = append(kept, p)
		}
		s.profiles[connectorID] = kept
		if removed {
			changed[connectorID] = s.recomputeLocked(connectorID, now)
		}
	}
	listeners := s.listeners
	s.mu.Unlock()

	for connectorID, limit := range changed {
		for _, fn := range listeners {
			fn(connectorID, limit)
		}
	}

	if cleared {
		return ocpp.ClearAccepted
	}
	return ocpp.ClearUnknown
}

// matches applies the clear criteria. Purpose (and with it stackLevel)
// is only consulted when the request named a connector.
func (c ClearCriteria) matches(p *Profile) bool {
	if c.ID != nil && p.ID == *c.ID {
		return true
	}
	if c.ConnectorID != nil && c.Purpose != nil && p.Purpose == *c.Purpose {
		return c.StackLevel == nil || p.StackLevel == *c.StackLevel
	}
	return false
}

// RemoveTransactionProfiles drops TxProfile entries bound to txID when a
// transaction ends and recomputes the connector's limit.
func (s *Store) RemoveTransactionProfiles(connectorID, txID int) {
	now := s.now()

	s.mu.Lock()
	kept := s.profiles[connectorID][:0]
	removed := false
	for _, p := range s.profiles[connectorID] {
		if p.Purpose == ocpp.PurposeTxProfile && p.TransactionID != nil && *p.TransactionID == txID {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	s.profiles[connectorID] = kept
	var limit Limits
	if removed {
		limit = s.recomputeLocked(connectorID, now)
	}
	listeners := s.listeners
	s.mu.Unlock()

	if removed {
		for _, fn := range listeners {
			fn(connectorID, limit)
		}
	}
}

// EffectiveLimit returns the limit computed at the last mutation.
func (s *Store) EffectiveLimit(connectorID int) Limits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits[connectorID]
}

// Recompute re-evaluates a connector's limit at the current time, for
// callers reacting to time passing rather than to a mutation.
func (s *Store) Recompute(connectorID int) Limits {
	now := s.now()
	s.mu.Lock()
	limit := s.recomputeLocked(connectorID, now)
	listeners := s.listeners
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(connectorID, limit)
	}
	return limit
}

// recomputeLocked recalculates and caches a connector's effective
// limit. Caller holds the lock.
func (s *Store) recomputeLocked(connectorID int, now time.Time) Limits {
	limit := s.evaluateLocked(connectorID, now)
	s.limits[connectorID] = limit
	return limit
}
