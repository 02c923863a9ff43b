package station

// acPower computes total AC power in watts: nPhases * V * I * cosPhi.
// cosPhi defaults to 1 when zero.
func acPower(numberOfPhases int, voltage, current, cosPhi float64) float64 {
	if cosPhi == 0 {
		cosPhi = 1
	}
	return float64(numberOfPhases) * voltage * current * cosPhi
}

// dcPower computes DC power in watts: V * I.
func dcPower(voltage, current float64) float64 {
	return voltage * current
}

// amperagePerPhaseFromPower inverts acPower for a single phase's current.
func amperagePerPhaseFromPower(power float64, numberOfPhases int, voltage, cosPhi float64) float64 {
	if cosPhi == 0 {
		cosPhi = 1
	}
	if numberOfPhases == 0 || voltage == 0 || cosPhi == 0 {
		return 0
	}
	return power / (float64(numberOfPhases) * voltage * cosPhi)
}

// amperageFromPower inverts dcPower.
func amperageFromPower(power, voltage float64) float64 {
	if voltage == 0 {
		return 0
	}
	return power / voltage
}

// ElectricalProfile describes a station's electrical capacity, the
// inputs needed to compute each connector's available power.
type ElectricalProfile struct {
	MaxPower               float64
	Voltage                float64
	NumberOfPhases         int
	CosPhi                 float64
	AmperageLimitation     float64 // 0 = no limitation configured
	PowerSharedByConnectors bool
	IsDC                   bool
}

// powerDivider returns the number a station's total power capacity is
// divided by across connectors: the connector count, or, when
// PowerSharedByConnectors is set, the number of connectors currently
// running a transaction (recomputed at query time).
func powerDivider(profile ElectricalProfile, connectorCount, activeTransactionCount int) int {
	if profile.PowerSharedByConnectors {
		if activeTransactionCount == 0 {
			return 1
		}
		return activeTransactionCount
	}
	if connectorCount == 0 {
		return 1
	}
	return connectorCount
}

// connectorMaximumAvailablePower computes the watts available to one
// connector: min(station maxPower/divider, amperage-limitation-derived
// power/divider, active charging-profile limit in watts).
func connectorMaximumAvailablePower(profile ElectricalProfile, divider int, profileLimitWatts *float64) float64 {
	if divider == 0 {
		divider = 1
	}

	available := profile.MaxPower / float64(divider)

	if profile.AmperageLimitation > 0 {
		var limitationPower float64
		if profile.IsDC {
			limitationPower = dcPower(profile.Voltage, profile.AmperageLimitation)
		} else {
			limitationPower = acPower(profile.NumberOfPhases, profile.Voltage, profile.AmperageLimitation, profile.CosPhi)
		}
		if v := limitationPower / float64(divider); v < available {
			available = v
		}
	}

	if profileLimitWatts != nil && *profileLimitWatts < available {
		available = *profileLimitWatts
	}

	return available
}
