package profile

import (
	"time"

	"github.com/evsim/cpsim/core/ocpp"
)

const (
	secondsPerDay  = 86400
	secondsPerWeek = 604800
)

// evaluateLocked derives the effective limit for a connector: gather its
// own profiles plus charge-point level ones, drop inactive entries, rank
// by stack level and take the first profile whose schedule yields a
// period at this instant. Caller holds the lock.
func (s *Store) evaluateLocked(connectorID int, now time.Time) Limits {
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
	if len(candidates) == 0 {
		return Limits{}
	}

	for _, p := range byStackLevel(candidates) {
		period, ok := p.periodAt(now)
		if !ok {
			continue
		}
		var limits Limits
		switch p.Schedule.RateUnit {
		case ocpp.RateUnitWatts:
			power := period.Limit
			current := ampsFromWatts(period.Limit)
			limits.PowerW = &power
			limits.CurrentA = &current
		case ocpp.RateUnitAmperes:
			current := period.Limit
			power := wattsFromAmps(period.Limit, period.Phases)
			limits.CurrentA = &current
			limits.PowerW = &power
		}
		if p.Schedule.MinRate != nil {
			min := *p.Schedule.MinRate
			limits.MinRate = &min
		}
		return limits
	}
	return Limits{}
}

// periodAt selects the schedule period in force at the given instant:
// the last period whose offset is at or before the elapsed time since
// the schedule start, with recurring schedules wrapping their clock.
func (p *Profile) periodAt(now time.Time) (Period, bool) {
	if len(p.Schedule.Periods) == 0 {
		return Period{}, false
	}

	start := p.scheduleStart(now)
	elapsed := now.Sub(start).Seconds()

	if p.Kind == ocpp.KindRecurring && p.Recurrency != nil {
		switch *p.Recurrency {
		case ocpp.RecurrencyDaily:
			elapsed = modSeconds(elapsed, secondsPerDay)
		case ocpp.RecurrencyWeekly:
			elapsed = modSeconds(elapsed, secondsPerWeek)
		}
	}

	var selected *Period
	for i := range p.Schedule.Periods {
		if elapsed >= float64(p.Schedule.Periods[i].Offset) {
			selected = &p.Schedule.Periods[i]
		} else {
			break
		}
	}
	if selected == nil {
		return Period{}, false
	}
	return *selected, true
}

// scheduleStart resolves the schedule clock origin: the explicit start
// if present, the acceptance time for Relative profiles, otherwise now.
func (p *Profile) scheduleStart(now time.Time) time.Time {
	if p.Schedule.Start != nil {
		return *p.Schedule.Start
	}
	if p.Kind == ocpp.KindRelative {
		return p.CreatedAt
	}
	return now
}

func modSeconds(elapsed float64, period int) float64 {
	m := int64(elapsed) % int64(period)
	if m < 0 {
		m += int64(period)
	}
	return float64(m)
}
