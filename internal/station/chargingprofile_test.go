package station

import (
	"testing"
	"time"

	"github.com/evfleet/station-simulator/internal/ocpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectActiveProfilePicksHighestStackLevel(t *testing.T) {
	now := time.Now()
	profiles := []ocpp.ChargingProfile{
		{ChargingProfileId: 1, StackLevel: 0},
		{ChargingProfileId: 2, StackLevel: 5},
		{ChargingProfileId: 3, StackLevel: 2},
	}
	best := selectActiveProfile(profiles, now)
	require.NotNil(t, best)
	assert.Equal(t, 2, best.ChargingProfileId)
}

func TestSelectActiveProfileRespectsValidWindow(t *testing.T) {
	now := time.Now()
	future := ocpp.NewDateTime(now.Add(time.Hour))
	profiles := []ocpp.ChargingProfile{
		{ChargingProfileId: 1, StackLevel: 9, ValidFrom: &future},
		{ChargingProfileId: 2, StackLevel: 1},
	}
	best := selectActiveProfile(profiles, now)
	require.NotNil(t, best)
	assert.Equal(t, 2, best.ChargingProfileId)
}

func TestSelectActivePeriodPicksWindowContainingNow(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)
	dt := ocpp.NewDateTime(start)
	schedule := ocpp.ChargingSchedule{
		StartSchedule:    &dt,
		ChargingRateUnit: ocpp.ChargingRateW,
		ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{
			{StartPeriod: 0, Limit: 1000},
			{StartPeriod: 60, Limit: 2000},
			{StartPeriod: 300, Limit: 3000},
		},
	}
	period := selectActivePeriod(schedule, time.Now())
	require.NotNil(t, period)
	assert.Equal(t, 2000.0, period.Limit)
}

func TestSelectActivePeriodReturnsNilPastDuration(t *testing.T) {
	start := time.Now().Add(-1 * time.Hour)
	dt := ocpp.NewDateTime(start)
	duration := 60
	schedule := ocpp.ChargingSchedule{
		StartSchedule: &dt,
		Duration:      &duration,
		ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{
			{StartPeriod: 0, Limit: 1000},
		},
	}
	assert.Nil(t, selectActivePeriod(schedule, time.Now()))
}

func TestChargingProfileLimitWattsConvertsAmps(t *testing.T) {
	start := time.Now().Add(-10 * time.Second)
	dt := ocpp.NewDateTime(start)
	profiles := []ocpp.ChargingProfile{
		{
			StackLevel: 0,
			ChargingSchedule: ocpp.ChargingSchedule{
				StartSchedule:    &dt,
				ChargingRateUnit: ocpp.ChargingRateA,
				ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{
					{StartPeriod: 0, Limit: 16},
				},
			},
		},
	}
	limit := chargingProfileLimitWatts(profiles, 3, 230, 1, time.Now())
	require.NotNil(t, limit)
	assert.InDelta(t, 3*230*16, *limit, 0.001)
}

func TestChargingProfileLimitWattsNilWhenNoProfiles(t *testing.T) {
	assert.Nil(t, chargingProfileLimitWatts(nil, 3, 230, 1, time.Now()))
}
