package station

import (
	"math/rand"
	"testing"
	"time"

	"github.com/evfleet/station-simulator/internal/ocpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMeterValueProducesConfiguredMeasurands(t *testing.T) {
	conn := NewConnector(1, 3)
	conn.EnergyRegister = 1000
	tpl := TemplateConnector{
		MeterValuesSampledData: []string{
			string(ocpp.MeasurandEnergyActiveImportRegister),
			string(ocpp.MeasurandPowerActiveImport),
			string(ocpp.MeasurandCurrentImport),
		},
	}
	rng := rand.New(rand.NewSource(1))

	mv, incrementWh := GenerateMeterValue(conn, tpl, 11000, 230, 3, 60, rng, time.Now())
	require.Len(t, mv.SampledValue, 3)
	assert.GreaterOrEqual(t, incrementWh, int64(0))

	measurands := map[ocpp.Measurand]bool{}
	for _, sv := range mv.SampledValue {
		measurands[*sv.Measurand] = true
	}
	assert.True(t, measurands[ocpp.MeasurandEnergyActiveImportRegister])
	assert.True(t, measurands[ocpp.MeasurandPowerActiveImport])
	assert.True(t, measurands[ocpp.MeasurandCurrentImport])
}

func TestGenerateMeterValueDefaultsToEnergyRegister(t *testing.T) {
	conn := NewConnector(1, 1)
	rng := rand.New(rand.NewSource(1))
	mv, _ := GenerateMeterValue(conn, TemplateConnector{}, 7000, 230, 1, 60, rng, time.Now())
	require.Len(t, mv.SampledValue, 1)
	assert.Equal(t, ocpp.MeasurandEnergyActiveImportRegister, *mv.SampledValue[0].Measurand)
}

func TestGenerateMeterValueRespectsFixedValueWithFluctuation(t *testing.T) {
	conn := NewConnector(1, 1)
	tpl := TemplateConnector{
		MeterValuesSampledData: []string{string(ocpp.MeasurandTemperature)},
		FixedValue:             map[string]float64{string(ocpp.MeasurandTemperature): 25},
		FluctuationPercent:     map[string]float64{string(ocpp.MeasurandTemperature): 0},
	}
	rng := rand.New(rand.NewSource(1))
	mv, _ := GenerateMeterValue(conn, tpl, 1000, 230, 1, 60, rng, time.Now())
	assert.Equal(t, "25.00", mv.SampledValue[0].Value)
}
