package station

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evfleet/station-simulator/internal/logger"
	"github.com/evfleet/station-simulator/internal/ocpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

// fakeTransport is an in-memory Transport double driven directly by tests:
// open()/deliver() push lifecycle events, sentFrames() inspects outbound frames.
type fakeTransport struct {
	mu      sync.Mutex
	isOpen  bool
	sent    [][]byte
	sendErr error
	events  chan TransportEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan TransportEvent, 128)}
}

func (f *fakeTransport) Start(ctx context.Context) {}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isOpen
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	f.isOpen = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Events() <-chan TransportEvent { return f.events }

func (f *fakeTransport) open() {
	f.mu.Lock()
	f.isOpen = true
	f.mu.Unlock()
	f.events <- TransportEvent{Kind: TransportOpened}
}

func (f *fakeTransport) deliver(data []byte) {
	f.events <- TransportEvent{Kind: TransportMessage, Data: data}
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func testTemplate() *Template {
	return &Template{
		StationId:          "CP-1",
		ChargePointVendor:  "Acme",
		ChargePointModel:   "Volt",
		SupervisionUrls:    []string{"wss://example.invalid/ocpp"},
		NumberOfConnectors: 2,
		Connectors: map[string]TemplateConnector{
			"1": {NumberOfPhases: 3, MeterValueSampleInterval: 60},
			"2": {NumberOfPhases: 1, MeterValueSampleInterval: 60},
		},
		MaxPower:       22000,
		Voltage:        230,
		NumberOfPhases: 3,
		CosPhi:         1,
	}
}

func testRuntime() RuntimeConfig {
	return RuntimeConfig{
		PerSendTimeout:         2 * time.Second,
		DefaultBootInterval:    10 * time.Millisecond,
		RegistrationMaxRetries: 2,
	}
}

func newTestStation(t *testing.T, tpl *Template, transport Transport) *Station {
	t.Helper()
	log, err := logger.New(logger.DefaultConfig())
	require.NoError(t, err)
	return New(tpl, transport, ocpp.NewSchemaValidator(), log, testRuntime(), nil, nil)
}

func TestNewBuildsConnectorsFromTemplate(t *testing.T) {
	tpl := testTemplate()
	s := newTestStation(t, tpl, newFakeTransport())

	assert.Len(t, s.Connectors, 3) // 0 plus 2 configured
	assert.Equal(t, 3, s.Connectors[1].NumberOfPhases)
	assert.Equal(t, 1, s.Connectors[2].NumberOfPhases)
}

func TestNewSeedsConfiguration(t *testing.T) {
	tpl := testTemplate()
	s := newTestStation(t, tpl, newFakeTransport())

	kv, ok := s.ConfigStore.Get("NumberOfConnectors")
	require.True(t, ok)
	assert.True(t, kv.Readonly)
	assert.Equal(t, "2", *kv.Value)

	_, ok = s.ConfigStore.Get("ConnectorPhaseRotation")
	assert.True(t, ok)
}

func TestNewAutoRegisterStartsAccepted(t *testing.T) {
	tpl := testTemplate()
	tpl.AutoRegister = true
	s := newTestStation(t, tpl, newFakeTransport())
	assert.Equal(t, Accepted, s.state)
}

func TestSendRejectedWhenUnknownAndNotBootNotification(t *testing.T) {
	tpl := testTemplate()
	transport := newFakeTransport()
	s := newTestStation(t, tpl, transport)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go s.run(ctx)
	defer s.Stop()

	_, err := s.Send(ctx, ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{}, sendOptions{})
	require.Error(t, err)
}

func TestRegistrationLoopAcceptsBootNotification(t *testing.T) {
	tpl := testTemplate()
	transport := newFakeTransport()
	s := newTestStation(t, tpl, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.run(ctx)
	defer s.Stop()
	transport.open()

	require.Eventually(t, func() bool {
		return len(transport.sentFrames()) > 0
	}, time.Second, 5*time.Millisecond)

	frames := transport.sentFrames()
	frame, err := ocpp.Decode(frames[0])
	require.NoError(t, err)
	assert.Equal(t, ocpp.ActionBootNotification, frame.Action)

	resp := ocpp.BootNotificationResponse{
		Status:      ocpp.RegistrationAccepted,
		CurrentTime: ocpp.NewDateTime(time.Now()),
		Interval:    30,
	}
	respData, _ := json.Marshal(resp)
	callResult, err := ocpp.EncodeCallResult(frame.MessageId, json.RawMessage(respData))
	require.NoError(t, err)
	transport.deliver(callResult)

	require.Eventually(t, func() bool {
		st := make(chan RegistrationState, 1)
		s.Enqueue(func(s *Station) { st <- s.state })
		select {
		case v := <-st:
			return v == Accepted
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestDispatchInboundCallResultResolvesPendingSend(t *testing.T) {
	tpl := testTemplate()
	tpl.AutoRegister = true
	transport := newFakeTransport()
	transport.isOpen = true
	s := newTestStation(t, tpl, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.run(ctx)
	defer s.Stop()

	done := make(chan struct{})
	var sendErr error
	var raw json.RawMessage
	go func() {
		raw, sendErr = s.Send(ctx, ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{}, sendOptions{})
		close(done)
	}()

	require.Eventually(t, func() bool { return len(transport.sentFrames()) > 0 }, time.Second, 5*time.Millisecond)
	frames := transport.sentFrames()
	frame, err := ocpp.Decode(frames[len(frames)-1])
	require.NoError(t, err)

	hbResp := ocpp.HeartbeatResponse{CurrentTime: ocpp.NewDateTime(time.Now())}
	data, _ := json.Marshal(hbResp)
	callResult, err := ocpp.EncodeCallResult(frame.MessageId, json.RawMessage(data))
	require.NoError(t, err)
	transport.deliver(callResult)

	<-done
	require.NoError(t, sendErr)
	var decoded ocpp.HeartbeatResponse
	require.NoError(t, json.Unmarshal(raw, &decoded))
}

func TestDispatchInboundResetCallSendsCallResultAndStops(t *testing.T) {
	tpl := testTemplate()
	tpl.AutoRegister = true
	transport := newFakeTransport()
	transport.isOpen = true
	s := newTestStation(t, tpl, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.run(ctx)

	reqFrame, err := ocpp.EncodeCall("m-reset", ocpp.ActionReset, ocpp.ResetRequest{Type: ocpp.ResetSoft})
	require.NoError(t, err)
	transport.deliver(reqFrame)

	require.Eventually(t, func() bool {
		for _, f := range transport.sentFrames() {
			frame, err := ocpp.Decode(f)
			if err == nil && frame.Type == ocpp.CallResult && frame.MessageId == "m-reset" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	select {
	case <-s.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("station did not stop after Reset")
	}
}

// Covers the Pending -> Accepted registration sequence: the loop must keep
// retrying BootNotification while Pending and arm nothing until Accepted.
func TestRegistrationPendingThenAcceptedSendsTwoBootNotifications(t *testing.T) {
	tpl := testTemplate()
	transport := newFakeTransport()
	s := newTestStation(t, tpl, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.run(ctx)
	defer s.Stop()
	transport.open()

	respond := func(frameIdx int, status ocpp.RegistrationStatus) {
		require.Eventually(t, func() bool {
			return len(transport.sentFrames()) > frameIdx
		}, 2*time.Second, 5*time.Millisecond)
		frame, err := ocpp.Decode(transport.sentFrames()[frameIdx])
		require.NoError(t, err)
		require.Equal(t, ocpp.ActionBootNotification, frame.Action)
		resp := ocpp.BootNotificationResponse{
			Status:      status,
			CurrentTime: ocpp.NewDateTime(time.Now()),
		}
		data, _ := json.Marshal(resp)
		callResult, err := ocpp.EncodeCallResult(frame.MessageId, json.RawMessage(data))
		require.NoError(t, err)
		transport.deliver(callResult)
	}

	respond(0, ocpp.RegistrationPending)
	respond(1, ocpp.RegistrationAccepted)

	require.Eventually(t, func() bool {
		st := make(chan RegistrationState, 1)
		s.Enqueue(func(s *Station) { st <- s.state })
		select {
		case v := <-st:
			return v == Accepted
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	boots := 0
	for _, f := range transport.sentFrames() {
		if frame, err := ocpp.Decode(f); err == nil && frame.Action == ocpp.ActionBootNotification {
			boots++
		}
	}
	assert.Equal(t, 2, boots)
}

// Covers the outage-buffer-flush sequence: a Call issued while the
// transport is down is buffered, then sent exactly once after the
// transport reopens, and its original caller still receives the response.
func TestBufferedFrameFlushedOnceAfterReconnect(t *testing.T) {
	tpl := testTemplate()
	tpl.AutoRegister = true
	transport := newFakeTransport()
	s := newTestStation(t, tpl, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.run(ctx)
	defer s.Stop()

	done := make(chan struct{})
	var sendErr error
	go func() {
		_, sendErr = s.Send(ctx, ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{}, sendOptions{})
		close(done)
	}()

	// The frame lands in the buffer, never on the wire.
	require.Eventually(t, func() bool {
		n := make(chan int, 1)
		s.Enqueue(func(st *Station) { n <- st.buffer.size() })
		select {
		case v := <-n:
			return v == 1
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, transport.sentFrames())

	transport.open()

	require.Eventually(t, func() bool {
		return len(transport.sentFrames()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	frame, err := ocpp.Decode(transport.sentFrames()[0])
	require.NoError(t, err)
	require.Equal(t, ocpp.ActionHeartbeat, frame.Action)

	hbResp := ocpp.HeartbeatResponse{CurrentTime: ocpp.NewDateTime(time.Now())}
	data, _ := json.Marshal(hbResp)
	callResult, err := ocpp.EncodeCallResult(frame.MessageId, json.RawMessage(data))
	require.NoError(t, err)
	transport.deliver(callResult)

	<-done
	require.NoError(t, sendErr)
	assert.Len(t, transport.sentFrames(), 1)
}

func TestStopTransactionFlowSendsStopAndResetsConnector(t *testing.T) {
	tpl := testTemplate()
	tpl.AutoRegister = true
	transport := newFakeTransport()
	transport.isOpen = true
	s := newTestStation(t, tpl, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go s.run(ctx)
	defer s.Stop()

	s.Enqueue(func(st *Station) {
		st.Connectors[1].startTransaction(42, "TAG01")
		st.Connectors[1].EnergyRegister = 1234
	})

	done := make(chan struct{})
	go func() {
		s.stopTransactionFlow(1, ocpp.ReasonLocal)
		close(done)
	}()

	var stopFrame *ocpp.Frame
	require.Eventually(t, func() bool {
		for _, f := range transport.sentFrames() {
			if frame, err := ocpp.Decode(f); err == nil && frame.Action == ocpp.ActionStopTransaction {
				stopFrame = frame
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	var req ocpp.StopTransactionRequest
	require.NoError(t, json.Unmarshal(stopFrame.Payload, &req))
	assert.Equal(t, 42, req.TransactionId)
	assert.Equal(t, 1234, req.MeterStop)
	assert.Equal(t, "TAG01", req.IdTag)

	data, _ := json.Marshal(ocpp.StopTransactionResponse{})
	callResult, err := ocpp.EncodeCallResult(stopFrame.MessageId, json.RawMessage(data))
	require.NoError(t, err)
	transport.deliver(callResult)
	<-done

	require.Eventually(t, func() bool {
		for _, cs := range s.Snapshot() {
			if cs.ID == 1 {
				return !cs.TransactionStarted && cs.TransactionID == 0
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReloadTemplateReseedsPhaseRotationOnPhaseChange(t *testing.T) {
	tpl := testTemplate()
	tpl.AutoRegister = true
	transport := newFakeTransport()
	s := newTestStation(t, tpl, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.run(ctx)
	defer s.Stop()

	updated := testTemplate()
	updated.Connectors["2"] = TemplateConnector{NumberOfPhases: 2, MeterValueSampleInterval: 60}
	s.ReloadTemplate(updated)

	require.Eventually(t, func() bool {
		kv, ok := s.ConfigStore.Get("ConnectorPhaseRotation")
		if !ok || kv.Value == nil {
			return false
		}
		return strings.Contains(*kv.Value, "2.NotApplicable")
	}, time.Second, 5*time.Millisecond)
}

func TestPerformanceStatisticsEventEmitted(t *testing.T) {
	tpl := testTemplate()
	tpl.AutoRegister = true
	transport := newFakeTransport()
	log, err := logger.New(logger.DefaultConfig())
	require.NoError(t, err)
	rt := testRuntime()
	rt.StatisticsInterval = 10 * time.Millisecond
	s := New(tpl, transport, ocpp.NewSchemaValidator(), log, rt, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.run(ctx)
	defer s.Stop()

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-s.Events:
			if ev.Kind == EventPerformanceStatistics {
				data, ok := ev.Data.(PerformanceStatisticsData)
				require.True(t, ok)
				assert.Equal(t, s.ID, data.StationId)
				return
			}
		case <-deadline:
			t.Fatal("no performanceStatistics event emitted")
		}
	}
}

func TestNewRestoresPersistedConfigurationByHashId(t *testing.T) {
	tpl := testTemplate()
	dir := t.TempDir()
	rt := testRuntime()
	rt.ConfigurationDir = dir
	log, err := logger.New(logger.DefaultConfig())
	require.NoError(t, err)

	// First start derives configuration from the template and persists it.
	first := New(tpl, newFakeTransport(), ocpp.NewSchemaValidator(), log, rt, nil, nil)
	require.NoError(t, first.ConfigStore.Set("HeartbeatInterval", "120"))
	data, err := first.snapshotJSON()
	require.NoError(t, err)
	require.NoError(t, first.ConfigStore.SaveTo(first.configurationFilePath(), data))

	// A second start with the same identity picks the persisted value up.
	second := New(testTemplate(), newFakeTransport(), ocpp.NewSchemaValidator(), log, rt, nil, nil)
	kv, ok := second.ConfigStore.Get("HeartbeatInterval")
	require.True(t, ok)
	assert.Equal(t, "120", *kv.Value)
}
