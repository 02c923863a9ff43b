package station

import (
	"sort"
	"time"

	"github.com/evfleet/station-simulator/internal/ocpp"
)

// selectActiveProfile picks, among profiles valid at now, the one with the
// highest StackLevel: profiles compose by stack level, highest wins.
func selectActiveProfile(profiles []ocpp.ChargingProfile, now time.Time) *ocpp.ChargingProfile {
	var best *ocpp.ChargingProfile
	for i := range profiles {
		p := &profiles[i]
		if p.ValidFrom != nil && now.Before(p.ValidFrom.Time) {
			continue
		}
		if p.ValidTo != nil && !now.Before(p.ValidTo.Time) {
			continue
		}
		if best == nil || p.StackLevel > best.StackLevel {
			best = p
		}
	}
	return best
}

// selectActivePeriod picks the period whose [startPeriod, nextStartPeriod)
// window, measured in seconds elapsed since the schedule's start, contains
// now. If the schedule has no explicit StartSchedule, the
// schedule is treated as starting at now (its first period is active).
func selectActivePeriod(schedule ocpp.ChargingSchedule, now time.Time) *ocpp.ChargingSchedulePeriod {
	periods := append([]ocpp.ChargingSchedulePeriod{}, schedule.ChargingSchedulePeriod...)
	if len(periods) == 0 {
		return nil
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartPeriod < periods[j].StartPeriod })

	start := now
	if schedule.StartSchedule != nil {
		start = schedule.StartSchedule.Time
	}
	elapsed := int(now.Sub(start).Seconds())
	if elapsed < 0 {
		return nil
	}
	if schedule.Duration != nil && elapsed >= *schedule.Duration {
		return nil
	}

	var active *ocpp.ChargingSchedulePeriod
	for i := range periods {
		if periods[i].StartPeriod > elapsed {
			break
		}
		p := periods[i]
		active = &p
	}
	return active
}

// chargingProfileLimitWatts resolves the watt limit a connector's active
// charging profile imposes right now, or nil if no profile applies.
func chargingProfileLimitWatts(profiles []ocpp.ChargingProfile, numberOfPhases int, voltage, cosPhi float64, now time.Time) *float64 {
	profile := selectActiveProfile(profiles, now)
	if profile == nil {
		return nil
	}
	period := selectActivePeriod(profile.ChargingSchedule, now)
	if period == nil {
		return nil
	}

	limit := period.Limit
	if profile.ChargingSchedule.ChargingRateUnit == ocpp.ChargingRateA {
		phases := numberOfPhases
		if period.NumberPhases != nil {
			phases = *period.NumberPhases
		}
		limit = acPower(phases, voltage, limit, cosPhi)
	}
	return &limit
}
