package station

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/evfleet/station-simulator/internal/ocpp"
)

// sampleValue draws one measurand's numeric reading: if the template fixes
// a value with a fluctuation percentage, jitter around it; otherwise draw
// uniformly within [min, max], where min defaults to
// fallbackMin unless the template overrides it.
func sampleValue(tpl TemplateConnector, measurand string, fallbackMin, fallbackMax float64, rng *rand.Rand) float64 {
	if fixed, ok := tpl.FixedValue[measurand]; ok {
		fluctuation := tpl.FluctuationPercent[measurand]
		delta := fixed * fluctuation / 100
		return fixed + (rng.Float64()*2-1)*delta
	}
	min := fallbackMin
	if m, ok := tpl.MinValue[measurand]; ok {
		min = m
	}
	max := fallbackMax
	if max < min {
		max = min
	}
	return min + rng.Float64()*(max-min)
}

func sampled(value float64, measurand ocpp.Measurand, unit ocpp.UnitOfMeasure) ocpp.SampledValue {
	m := measurand
	sv := ocpp.SampledValue{
		Value:     fmt.Sprintf("%.2f", value),
		Measurand: &m,
	}
	if unit != "" {
		u := unit
		sv.Unit = &u
	}
	return sv
}

// GenerateMeterValue builds one MeterValue sample for connector, drawing
// values for each measurand the template enables, and returns the energy
// increment (Wh) accrued over the sampling interval so the caller can
// advance the connector's registers.
func GenerateMeterValue(conn *Connector, tpl TemplateConnector, maxAvailablePower, voltage float64, numberOfPhases, intervalSeconds int, rng *rand.Rand, now time.Time) (ocpp.MeterValue, int64) {
	measurands := tpl.MeterValuesSampledData
	if len(measurands) == 0 {
		measurands = []string{string(ocpp.MeasurandEnergyActiveImportRegister)}
	}

	var samples []ocpp.SampledValue
	var powerW float64
	sawPower := false

	for _, name := range measurands {
		m := ocpp.Measurand(name)
		switch m {
		case ocpp.MeasurandEnergyActiveImportRegister, ocpp.MeasurandEnergyActiveExportRegister:
			samples = append(samples, sampled(float64(conn.EnergyRegister), m, ocpp.UnitWh))
		case ocpp.MeasurandPowerActiveImport, ocpp.MeasurandPowerActiveExport, ocpp.MeasurandPowerOffered:
			powerW = sampleValue(tpl, name, 0, maxAvailablePower, rng)
			sawPower = true
			samples = append(samples, sampled(powerW, m, ocpp.UnitW))
		case ocpp.MeasurandCurrentImport, ocpp.MeasurandCurrentExport, ocpp.MeasurandCurrentOffered:
			basis := powerW
			if !sawPower {
				basis = sampleValue(tpl, name, 0, maxAvailablePower, rng)
			}
			amps := amperagePerPhaseFromPower(basis, numberOfPhases, voltage, 1)
			samples = append(samples, sampled(amps, m, ocpp.UnitA))
		case ocpp.MeasurandVoltage:
			v := sampleValue(tpl, name, voltage*0.97, voltage*1.03, rng)
			samples = append(samples, sampled(v, m, ocpp.UnitV))
		case ocpp.MeasurandSoC:
			v := sampleValue(tpl, name, 0, 100, rng)
			samples = append(samples, sampled(v, m, ocpp.UnitPercent))
		case ocpp.MeasurandTemperature:
			v := sampleValue(tpl, name, 20, 40, rng)
			samples = append(samples, sampled(v, m, ocpp.UnitCelsius))
		case ocpp.MeasurandFrequency, ocpp.MeasurandRPM:
			v := sampleValue(tpl, name, 0, 1, rng)
			samples = append(samples, sampled(v, m, ""))
		default:
			v := sampleValue(tpl, name, 0, maxAvailablePower, rng)
			samples = append(samples, sampled(v, m, ""))
		}
	}

	if !sawPower {
		powerW = sampleValue(tpl, string(ocpp.MeasurandPowerActiveImport), 0, maxAvailablePower, rng)
	}
	incrementWh := int64(powerW * float64(intervalSeconds) / 3600)

	return ocpp.MeterValue{
		Timestamp:    ocpp.NewDateTime(now),
		SampledValue: samples,
	}, incrementWh
}
