// Package profile stores and evaluates OCPP 1.6 smart charging
// profiles per connector, deriving the effective power/current limit
// currently in force.
package profile

import (
	"sort"
	"time"

	"github.com/evsim/cpsim/core/ocpp"
)

// Period is one step of a schedule, starting Offset seconds after the
// schedule start.
type Period struct {
	Offset int
	Limit  float64
	Phases *int
}

// Schedule is the ordered period sequence of a profile.
type Schedule struct {
	Duration *int
	Start    *time.Time
	RateUnit ocpp.ChargingRateUnit
	MinRate  *float64
	Periods  []Period
}

// Profile is a stored charging profile. CreatedAt is captured when the
// profile is accepted and anchors Relative schedules.
type Profile struct {
	ID            int
	TransactionID *int
	StackLevel    int
	Purpose       ocpp.ChargingProfilePurpose
	Kind          ocpp.ChargingProfileKind
	Recurrency    *ocpp.RecurrencyKind
	ValidFrom     *time.Time
	ValidTo       *time.Time
	Schedule      Schedule
	CreatedAt     time.Time
}

// fromWire converts the wire form into a stored profile, stamping the
// acceptance time.
func fromWire(w ocpp.ChargingProfile, now time.Time) *Profile {
	p := &Profile{
		ID:            w.ChargingProfileID,
		TransactionID: w.TransactionID,
		StackLevel:    w.StackLevel,
		Purpose:       w.ChargingProfilePurpose,
		Kind:          w.ChargingProfileKind,
		Recurrency:    w.RecurrencyKind,
		CreatedAt:     now,
	}
	if w.ValidFrom != nil {
		t := w.ValidFrom.Time
		p.ValidFrom = &t
	}
	if w.ValidTo != nil {
		t := w.ValidTo.Time
		p.ValidTo = &t
	}
	p.Schedule = Schedule{
		Duration: w.ChargingSchedule.Duration,
		RateUnit: w.ChargingSchedule.ChargingRateUnit,
		MinRate:  w.ChargingSchedule.MinChargingRate,
	}
	if w.ChargingSchedule.StartSchedule != nil {
		t := w.ChargingSchedule.StartSchedule.Time
		p.Schedule.Start = &t
	}
	for _, wp := range w.ChargingSchedule.ChargingSchedulePeriod {
		p.Schedule.Periods = append(p.Schedule.Periods, Period{
			Offset: wp.StartPeriod,
			Limit:  wp.Limit,
			Phases: wp.NumberPhases,
		})
	}
	return p
}

// wireSchedule converts a stored schedule back to its wire form,
// translating period limits into the requested unit.
func (s Schedule) wireSchedule(unit ocpp.ChargingRateUnit) ocpp.ChargingSchedule {
	out := ocpp.ChargingSchedule{
		Duration:         s.Duration,
		ChargingRateUnit: unit,
		MinChargingRate:  s.MinRate,
	}
	if s.Start != nil {
		dt := ocpp.NewDateTime(*s.Start)
		out.StartSchedule = &dt
	}
	for _, p := range s.Periods {
		limit := p.Limit
		if unit != s.RateUnit {
			limit = convertLimit(limit, s.RateUnit, unit, p.Phases)
		}
		out.ChargingSchedulePeriod = append(out.ChargingSchedulePeriod, ocpp.ChargingSchedulePeriod{
			StartPeriod:  p.Offset,
			Limit:        limit,
			NumberPhases: p.Phases,
		})
	}
	return out
}

// activeAt reports whether the profile is inside its validity window and,
// for transaction profiles, still bound to a live transaction.
func (p *Profile) activeAt(now time.Time, tx TransactionLookup) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidTo != nil && now.After(*p.ValidTo) {
		return false
	}
	if p.Purpose == ocpp.PurposeTxProfile && p.TransactionID != nil {
		return tx.IsTransactionActive(*p.TransactionID)
	}
	return true
}

// byStackLevel orders profiles by descending stack level, preserving
// insertion order between equal levels.
func byStackLevel(profiles []*Profile) []*Profile {
	ranked := make([]*Profile, len(profiles))
	copy(ranked, profiles)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].StackLevel > ranked[j].StackLevel
	})
	return ranked
}
