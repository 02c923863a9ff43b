package atg_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/evfleet/station-simulator/internal/atg"
	"github.com/evfleet/station-simulator/internal/config"
	"github.com/evfleet/station-simulator/internal/logger"
	"github.com/evfleet/station-simulator/internal/ocpp"
	"github.com/evfleet/station-simulator/internal/station"
)

// noopTransport is a station.Transport double that never opens, so nothing
// a station sends in these tests is written: the station buffers any
// outbound Call and its caller waits until its context ends or the station
// stops.
type noopTransport struct {
	events chan station.TransportEvent
}

func newNoopTransport() *noopTransport {
	return &noopTransport{events: make(chan station.TransportEvent)}
}

func (t *noopTransport) Start(ctx context.Context)                     {}
func (t *noopTransport) IsOpen() bool                                   { return false }
func (t *noopTransport) Send(data []byte) error                        { return nil }
func (t *noopTransport) Close(code int, reason string) error           { return nil }
func (t *noopTransport) Events() <-chan station.TransportEvent         { return t.events }

func testLogger() *logger.Logger {
	l, _ := logger.New(logger.DefaultConfig())
	return l
}

func baseTemplate(atgTpl *station.ATGTemplate) *station.Template {
	return &station.Template{
		StationId:          "CP001",
		NumberOfConnectors: 1,
		Connectors: map[string]station.TemplateConnector{
			"1": {},
		},
		AutoRegister: true,
		ATG:          atgTpl,
	}
}

func newStation(tpl *station.Template, authList []string) *station.Station {
	st := station.New(tpl, newNoopTransport(), ocpp.AlwaysValid{}, testLogger(), station.RuntimeConfig{
		PerSendTimeout: time.Second,
	}, nil, authList)
	st.Start(context.Background())
	return st
}

func TestRunner_DisabledByFleetDefaults_NoWorkers(t *testing.T) {
	st := newStation(baseTemplate(nil), []string{"TAG1"})
	defer st.Stop()

	r := atg.New(st, config.ATGConfig{Enabled: false}, testLogger())
	r.Start()
	defer r.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), r.SkippedCycles())
}

func TestRunner_DisabledByTemplate_NoWorkers(t *testing.T) {
	st := newStation(baseTemplate(&station.ATGTemplate{Enabled: false}), []string{"TAG1"})
	defer st.Stop()

	r := atg.New(st, config.ATGConfig{Enabled: true, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, testLogger())
	r.Start()
	defer r.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), r.SkippedCycles())
}

func TestRunner_ZeroStartProbability_OnlySkipsCycles(t *testing.T) {
	tpl := baseTemplate(&station.ATGTemplate{
		Enabled:          true,
		MinDelaySeconds:  0,
		MaxDelaySeconds:  0,
		StartProbability: 0,
		RequireAuthorize: true,
		AuthorizedIdTags: []string{"TAG1"},
	})
	st := newStation(tpl, nil)
	defer st.Stop()

	r := atg.New(st, config.ATGConfig{
		MinDelay: time.Millisecond,
		MaxDelay: 2 * time.Millisecond,
	}, testLogger())
	r.Start()
	defer r.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Greater(t, r.SkippedCycles(), int64(0))

	snap := st.Snapshot()
	assert.Len(t, snap, 1)
	assert.False(t, snap[0].TransactionStarted)
}

func TestRunner_StopIsIdempotent(t *testing.T) {
	st := newStation(baseTemplate(nil), nil)
	defer st.Stop()

	r := atg.New(st, config.ATGConfig{Enabled: false}, testLogger())
	r.Start()
	r.Stop()
	r.Stop()
}
