package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evsim/cpsim/core/ocpp"
)

func TestRecurringDailyBoundaries(t *testing.T) {
	s := newTestStore(nil)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	daily := ocpp.RecurrencyDaily
	start := ocpp.NewDateTime(base)
	p := ocpp.ChargingProfile{
		ChargingProfileID:      1,
		StackLevel:             0,
		ChargingProfilePurpose: ocpp.PurposeTxDefaultProfile,
		ChargingProfileKind:    ocpp.KindRecurring,
		RecurrencyKind:         &daily,
		ChargingSchedule: ocpp.ChargingSchedule{
			StartSchedule:    &start,
			ChargingRateUnit: ocpp.RateUnitWatts,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 11000},
				{StartPeriod: 3600, Limit: 7400},
			},
		},
	}
	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, p))

	cases := []struct {
		elapsed int
		want    float64
	}{
		{0, 11000},
		{3599, 11000},
		{3600, 7400},
		{86399, 7400},
		{86400, 11000},
		{90000, 7400},
	}
	for _, tc := range cases {
		s.now = func() time.Time { return base.Add(time.Duration(tc.elapsed) * time.Second) }
		limit := s.Recompute(1)
		require.NotNil(t, limit.PowerW, "elapsed %ds", tc.elapsed)
		assert.InDelta(t, tc.want, *limit.PowerW, 0.01, "elapsed %ds", tc.elapsed)
	}
}

func TestRecurringWeeklyWraps(t *testing.T) {
	s := newTestStore(nil)
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	s.now = func() time.Time { return base }

	weekly := ocpp.RecurrencyWeekly
	start := ocpp.NewDateTime(base)
	p := ocpp.ChargingProfile{
		ChargingProfileID:      2,
		ChargingProfilePurpose: ocpp.PurposeTxDefaultProfile,
		ChargingProfileKind:    ocpp.KindRecurring,
		RecurrencyKind:         &weekly,
		ChargingSchedule: ocpp.ChargingSchedule{
			StartSchedule:    &start,
			ChargingRateUnit: ocpp.RateUnitWatts,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 10000},
				{StartPeriod: 2 * secondsPerDay, Limit: 5000},
			},
		},
	}
	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, p))

	s.now = func() time.Time { return base.Add(3 * 24 * time.Hour) }
	limit := s.Recompute(1)
	require.NotNil(t, limit.PowerW)
	assert.InDelta(t, 5000, *limit.PowerW, 0.01)

	// One full week later the clock wraps back to the first period.
	s.now = func() time.Time { return base.Add(time.Duration(secondsPerWeek) * time.Second) }
	limit = s.Recompute(1)
	require.NotNil(t, limit.PowerW)
	assert.InDelta(t, 10000, *limit.PowerW, 0.01)
}

func TestRelativeProfileAnchorsAtAcceptance(t *testing.T) {
	s := newTestStore(nil)
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	p := ocpp.ChargingProfile{
		ChargingProfileID:      3,
		ChargingProfilePurpose: ocpp.PurposeTxDefaultProfile,
		ChargingProfileKind:    ocpp.KindRelative,
		ChargingSchedule: ocpp.ChargingSchedule{
			ChargingRateUnit: ocpp.RateUnitWatts,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 11000},
				{StartPeriod: 600, Limit: 3700},
			},
		},
	}
	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, p))

	limit := s.EffectiveLimit(1)
	require.NotNil(t, limit.PowerW)
	assert.InDelta(t, 11000, *limit.PowerW, 0.01)

	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	limit = s.Recompute(1)
	require.NotNil(t, limit.PowerW)
	assert.InDelta(t, 3700, *limit.PowerW, 0.01)
}

func TestScheduleNotYetStartedFallsThrough(t *testing.T) {
	s := newTestStore(nil)
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	// Higher stack, but its schedule only begins in an hour.
	later := ocpp.NewDateTime(base.Add(time.Hour))
	future := ocpp.ChargingProfile{
		ChargingProfileID:      4,
		StackLevel:             5,
		ChargingProfilePurpose: ocpp.PurposeTxDefaultProfile,
		ChargingProfileKind:    ocpp.KindAbsolute,
		ChargingSchedule: ocpp.ChargingSchedule{
			StartSchedule:          &later,
			ChargingRateUnit:       ocpp.RateUnitWatts,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{{StartPeriod: 0, Limit: 3700}},
		},
	}
	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, future))
	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, wattsProfile(5, 1, ocpp.PurposeChargePointMaxProfile, 9000)))

	limit := s.Recompute(1)
	require.NotNil(t, limit.PowerW, "lower-stack profile must apply while the winner has no period yet")
	assert.InDelta(t, 9000, *limit.PowerW, 0.01)

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	limit = s.Recompute(1)
	require.NotNil(t, limit.PowerW)
	assert.InDelta(t, 3700, *limit.PowerW, 0.01)
}

func TestAmpereProfileConverts(t *testing.T) {
	s := newTestStore(nil)
	p := wattsProfile(6, 0, ocpp.PurposeTxDefaultProfile, 16)
	p.ChargingSchedule.ChargingRateUnit = ocpp.RateUnitAmperes
	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, p))

	limit := s.EffectiveLimit(1)
	require.NotNil(t, limit.CurrentA)
	assert.InDelta(t, 16, *limit.CurrentA, 0.01)
	require.NotNil(t, limit.PowerW)
	assert.InDelta(t, 16*230*3, *limit.PowerW, 0.01)
}

func TestSinglePhaseConversion(t *testing.T) {
	s := newTestStore(nil)
	phases := 1
	p := wattsProfile(7, 0, ocpp.PurposeTxDefaultProfile, 16)
	p.ChargingSchedule.ChargingRateUnit = ocpp.RateUnitAmperes
	p.ChargingSchedule.ChargingSchedulePeriod[0].NumberPhases = &phases
	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, p))

	limit := s.EffectiveLimit(1)
	require.NotNil(t, limit.PowerW)
	assert.InDelta(t, 16*230, *limit.PowerW, 0.01)
}

func TestCompositeSchedule(t *testing.T) {
	s := newTestStore(nil)
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	resp := s.CompositeSchedule(9, 3600, ocpp.RateUnitWatts)
	assert.Equal(t, ocpp.CompositeRejected, resp.Status)

	resp = s.CompositeSchedule(1, 3600, ocpp.RateUnitWatts)
	assert.Equal(t, ocpp.CompositeAccepted, resp.Status)
	assert.Nil(t, resp.ChargingSchedule)

	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, wattsProfile(8, 2, ocpp.PurposeTxDefaultProfile, 11000)))
	resp = s.CompositeSchedule(1, 3600, ocpp.RateUnitWatts)
	require.Equal(t, ocpp.CompositeAccepted, resp.Status)
	require.NotNil(t, resp.ConnectorID)
	assert.Equal(t, 1, *resp.ConnectorID)
	require.NotNil(t, resp.ScheduleStart)
	assert.True(t, resp.ScheduleStart.Time.Equal(base))
	require.NotNil(t, resp.ChargingSchedule)
	require.NotNil(t, resp.ChargingSchedule.Duration)
	assert.Equal(t, 3600, *resp.ChargingSchedule.Duration)
	require.Len(t, resp.ChargingSchedule.ChargingSchedulePeriod, 1)
	assert.InDelta(t, 11000, resp.ChargingSchedule.ChargingSchedulePeriod[0].Limit, 0.01)
}

func TestCompositeScheduleConvertsUnit(t *testing.T) {
	s := newTestStore(nil)
	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, wattsProfile(9, 0, ocpp.PurposeTxDefaultProfile, 6900)))

	resp := s.CompositeSchedule(1, 600, ocpp.RateUnitAmperes)
	require.Equal(t, ocpp.CompositeAccepted, resp.Status)
	require.NotNil(t, resp.ChargingSchedule)
	assert.Equal(t, ocpp.RateUnitAmperes, resp.ChargingSchedule.ChargingRateUnit)
	require.Len(t, resp.ChargingSchedule.ChargingSchedulePeriod, 1)
	assert.InDelta(t, 30, resp.ChargingSchedule.ChargingSchedulePeriod[0].Limit, 0.01)
}

func TestCompositeScheduleClipsToProfileDuration(t *testing.T) {
	s := newTestStore(nil)
	p := wattsProfile(10, 0, ocpp.PurposeTxDefaultProfile, 11000)
	dur := 1800
	p.ChargingSchedule.Duration = &dur
	require.Equal(t, ocpp.ProfileAccepted, s.SetProfile(1, p))

	resp := s.CompositeSchedule(1, 3600, ocpp.RateUnitWatts)
	require.NotNil(t, resp.ChargingSchedule)
	require.NotNil(t, resp.ChargingSchedule.Duration)
	assert.Equal(t, 1800, *resp.ChargingSchedule.Duration)
}
