package profile

import (
	"github.com/evsim/cpsim/core/ocpp"
)

// CompositeSchedule answers GetCompositeSchedule: the schedule of the
// highest-priority active profile on the connector, clipped to the
// requested duration. An in-range connector with no active profile
// yields an accepted response without a schedule.
func (s *Store) CompositeSchedule(connectorID, duration int, unit ocpp.ChargingRateUnit) ocpp.GetCompositeScheduleResponse {
	now := s.now()

	if connectorID < 0 || connectorID > s.cfg.Connectors {
		return ocpp.GetCompositeScheduleResponse{Status: ocpp.CompositeRejected}
	}

	s.mu.Lock()
	var candidates []*Profile
	for _, p := range s.profiles[connectorID] {
		if p.activeAt(now, s.tx) {
			candidates = append(candidates, p)
		}
	}
	if connectorID > 0 {
		for _, p := range s.profiles[0] {
			if p.activeAt(now, s.tx) {
				candidates = append(candidates, p)
			}
		}
	}
	s.mu.Unlock()

	if len(candidates) == 0 {
		return ocpp.GetCompositeScheduleResponse{Status: ocpp.CompositeAccepted}
	}

	winner := byStackLevel(candidates)[0]
	if unit == "" {
		unit = winner.Schedule.RateUnit
	}

	schedule := winner.Schedule.wireSchedule(unit)
	clipped := duration
	if winner.Schedule.Duration != nil && *winner.Schedule.Duration < clipped {
		clipped = *winner.Schedule.Duration
	}
	schedule.Duration = &clipped

	start := ocpp.NewDateTime(now)
	cid := connectorID
	return ocpp.GetCompositeScheduleResponse{
		Status:           ocpp.CompositeAccepted,
		ConnectorID:      &cid,
		ScheduleStart:    &start,
		ChargingSchedule: &schedule,
	}
}

// Summary describes one stored profile for display tooling.
type Summary struct {
	ID           int
	StackLevel   int
	Purpose      ocpp.ChargingProfilePurpose
	Kind         ocpp.ChargingProfileKind
	RateUnit     ocpp.ChargingRateUnit
	Periods      []Period
	CurrentLimit *float64
}

// ActiveProfilesSummary lists the stored profiles per connector with
// the limit each would contribute right now.
func (s *Store) ActiveProfilesSummary() map[int][]Summary {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int][]Summary)
	for connectorID, profiles := range s.profiles {
		for _, p := range profiles {
			sum := Summary{
				ID:         p.ID,
				StackLevel: p.StackLevel,
				Purpose:    p.Purpose,
				Kind:       p.Kind,
				RateUnit:   p.Schedule.RateUnit,
				Periods:    append([]Period(nil), p.Schedule.Periods...),
			}
			if period, ok := p.periodAt(now); ok {
				limit := period.Limit
				sum.CurrentLimit = &limit
			}
			out[connectorID] = append(out[connectorID], sum)
		}
	}
	return out
}
