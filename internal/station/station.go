// Package station implements the per-station OCPP 1.6-J session engine:
// the durable WebSocket client session, request/response correlation,
// registration state machine, reconnect/buffering policy, timers, and
// connector model. It is the core of this simulator.
package station

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"time"

	"github.com/evfleet/station-simulator/internal/logger"
	"github.com/evfleet/station-simulator/internal/metrics"
	"github.com/evfleet/station-simulator/internal/ocpp"
)

// RuntimeConfig carries the operational knobs a Station needs that do not
// belong in its template (internal/config.Config values, translated by the
// supervisor at construction time so this package stays decoupled from
// internal/config).
type RuntimeConfig struct {
	PerSendTimeout         time.Duration
	DefaultBootInterval    time.Duration
	RegistrationMaxRetries int
	ConfigurationDir       string
	DefaultPingInterval    time.Duration
	StatisticsInterval     time.Duration
}

// AuthorizationCache is the subset of internal/cache.Cache a Station needs
// for the local id-tag authorization cache.
type AuthorizationCache interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
}

// Station is a single simulated charge point: one logical actor owning its
// connectors, configuration store, request cache, message buffer,
// transport, and timers.
type Station struct {
	ID       string
	HashID   string
	Template *Template
	Electrical ElectricalProfile

	Connectors  map[int]*Connector
	ConfigStore *ConfigurationKeyStore
	AuthList    []string

	cache  *requestCache
	buffer *messageBuffer
	state  RegistrationState

	transport Transport
	validator ocpp.Validate
	log       *logger.Logger
	rng       *rand.Rand
	runtime   RuntimeConfig
	authCache AuthorizationCache

	heartbeatInterval  time.Duration
	heartbeatStop      chan struct{}
	connectorTimerStop map[int]chan struct{}

	cmdCh   chan func(*Station)
	stopCh  chan struct{}
	stopped chan struct{}
	Events  chan Event

	messagesSent     int64
	messagesReceived int64
	startedEmitted   bool
	registering      int32 // CAS-guarded: at most one registration loop at a time

	powerDividerOverride int // 0 = compute from connector/transaction count
}

// New builds a Station from a parsed Template, wiring validator/logger/
// transport/cache collaborators.
func New(tpl *Template, transport Transport, validator ocpp.Validate, log *logger.Logger, runtime RuntimeConfig, authCache AuthorizationCache, authList []string) *Station {
	hashID := tpl.HashId()
	s := &Station{
		ID:                 tpl.StationId,
		HashID:             hashID,
		Template:           tpl,
		Connectors:         make(map[int]*Connector),
		ConfigStore:        NewConfigurationKeyStore(),
		AuthList:           authList,
		cache:              newRequestCache(),
		buffer:             newMessageBuffer(),
		state:              Unknown,
		transport:          transport,
		validator:          validator,
		log:                log.With("stationId", tpl.StationId).With("hashId", hashID),
		rng:                rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(tpl.StationId)))),
		runtime:            runtime,
		authCache:          authCache,
		connectorTimerStop: make(map[int]chan struct{}),
		cmdCh:              make(chan func(*Station), 64),
		stopCh:             make(chan struct{}),
		stopped:            make(chan struct{}),
		Events:             make(chan Event, 256),
	}

	s.Electrical = ElectricalProfile{
		MaxPower:                tpl.MaxPower,
		Voltage:                 tpl.Voltage,
		NumberOfPhases:          tpl.NumberOfPhases,
		CosPhi:                  tpl.CosPhi,
		AmperageLimitation:      tpl.AmperageLimitation,
		PowerSharedByConnectors: tpl.PowerSharedByConnectors,
		IsDC:                    tpl.IsDC,
	}

	s.buildConnectors()
	s.seedConfiguration()
	s.restoreConfiguration()
	if tpl.AutoRegister {
		s.state = Accepted
	}

	return s
}

// restoreConfiguration swaps in the per-station persisted configuration
// file when one exists for this hash id (the file is keyed by hash, so its
// presence means the identity fields still match),
// re-asserting the keys init always owns. When none exists, the freshly
// derived configuration is persisted so the next start finds it.
func (s *Station) restoreConfiguration() {
	if s.runtime.ConfigurationDir == "" {
		return
	}
	path := s.configurationFilePath()
	store, _, found, err := LoadConfigurationFrom(path)
	if err != nil {
		s.log.ErrorWithErr(err, "failed to read persisted configuration, deriving from template")
		return
	}
	if !found {
		if data, err := s.snapshotJSON(); err == nil {
			if err := s.ConfigStore.SaveTo(path, data); err != nil {
				s.log.ErrorWithErr(err, "failed to persist derived configuration")
			}
		}
		return
	}
	s.ConfigStore = store
	s.ConfigStore.Seed("NumberOfConnectors", fmt.Sprintf("%d", len(s.Connectors)-1), true)
}

// buildConnectors realizes the template's Connectors map into live
// Connector objects. If more connectors are desired
// than the template defines (excluding id 0) and RandomConnectors is
// unset, template selection is forced random.
func (s *Station) buildConnectors() {
	keys := make([]string, 0, len(s.Template.Connectors))
	for k := range s.Template.Connectors {
		if k != "0" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	desired := s.Template.NumberOfConnectors
	if desired <= 0 {
		desired = len(keys)
	}

	random := desired > len(keys)
	if s.Template.RandomConnectors != nil {
		random = *s.Template.RandomConnectors
	}

	s.Connectors[0] = NewConnector(0, s.Template.NumberOfPhases)

	for i := 1; i <= desired; i++ {
		var key string
		if random && len(keys) > 0 {
			key = keys[s.rng.Intn(len(keys))]
		} else if i-1 < len(keys) {
			key = keys[i-1]
		} else if len(keys) > 0 {
			key = keys[s.rng.Intn(len(keys))]
		}

		phases := s.Template.NumberOfPhases
		if key != "" {
			if tc, ok := s.Template.Connectors[key]; ok && tc.NumberOfPhases > 0 {
				phases = tc.NumberOfPhases
			}
		}
		s.Connectors[i] = NewConnector(i, phases)
	}
}

// connectorTemplate returns the TemplateConnector keyed by id's decimal
// string, or a zero value if the template has no entry under that key.
func (s *Station) connectorTemplate(id int) TemplateConnector {
	if tc, ok := s.Template.Connectors[fmt.Sprintf("%d", id)]; ok {
		return tc
	}
	return TemplateConnector{}
}

// seedConfiguration seeds the standard OCPP configuration keys, plus any
// vendor keys the template supplies.
func (s *Station) seedConfiguration() {
	s.ConfigStore.Seed("NumberOfConnectors", fmt.Sprintf("%d", len(s.Connectors)-1), true)
	s.ConfigStore.Seed("MeterValuesSampledData", string(ocpp.MeasurandEnergyActiveImportRegister), false)
	s.ConfigStore.Seed("AuthorizeRemoteTxRequests", boolStr(s.Template.AuthorizeRemoteTxRequests), false)
	s.ConfigStore.Seed("ConnectionTimeOut", fmt.Sprintf("%d", s.Template.ConnectionTimeOutSeconds), false)
	s.ConfigStore.Seed("HeartbeatInterval", "0", false)
	s.ConfigStore.Seed("MeterValueSampleInterval", "60", false)
	s.ConfigStore.Seed("WebSocketPingInterval", fmt.Sprintf("%d", int(s.runtime.DefaultPingInterval.Seconds())), false)

	for id, conn := range s.Connectors {
		if id == 0 {
			continue
		}
		conn.PhaseRotation = phaseRotationFor(conn.NumberOfPhases)
	}
	s.ConfigStore.Seed("ConnectorPhaseRotation", s.connectorPhaseRotationValue(), false)

	for _, feature := range s.Template.SupportedFeatureProfiles {
		if feature == "LocalAuthListManagement" {
			s.ConfigStore.Seed("LocalAuthListEnabled", boolStr(s.Template.LocalAuthListEnabled), false)
		}
	}

	if s.Template.SupervisionUrlOcppConfiguration && len(s.Template.SupervisionUrls) > 0 {
		s.ConfigStore.Seed("SupervisionUrl", s.Template.SupervisionUrls[0], false)
	}

	for key, value := range s.Template.Configuration {
		s.ConfigStore.Seed(key, value, false)
	}
}

// connectorPhaseRotationValue renders the comma-separated
// "<id>.RST,<id>.RST,..." ConnectorPhaseRotation string.
func (s *Station) connectorPhaseRotationValue() string {
	ids := make([]int, 0, len(s.Connectors))
	for id := range s.Connectors {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d.%s", id, s.Connectors[id].PhaseRotation))
	}
	joined := ""
	for i, p := range parts {
		if i > 0 {
			joined += ","
		}
		joined += p
	}
	return joined
}

// reseedConnectorPhaseRotation regenerates ConnectorPhaseRotation. It runs
// whenever a template reload changes a connector's phase count, rather than
// only at init, so an edited template cannot leave a stale rotation behind.
func (s *Station) reseedConnectorPhaseRotation() {
	for id, conn := range s.Connectors {
		if id == 0 {
			continue
		}
		conn.PhaseRotation = phaseRotationFor(conn.NumberOfPhases)
	}
	s.ConfigStore.Seed("ConnectorPhaseRotation", s.connectorPhaseRotationValue(), false)
}

func phaseRotationFor(numberOfPhases int) string {
	switch numberOfPhases {
	case 3:
		return "RST"
	case 1:
		return "RST"
	default:
		return "NotApplicable"
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// configurationFilePath returns the per-station persisted configuration
// path, keyed by the station's identity hash.
func (s *Station) configurationFilePath() string {
	return filepath.Join(s.runtime.ConfigurationDir, s.HashID+".json")
}

// Enqueue submits fn to run on the station's own actor goroutine. Any
// goroutine (ATG, timers, registry, remote-command consumer) must use this
// to touch station state, preserving the single-writer invariant.
func (s *Station) Enqueue(fn func(*Station)) {
	select {
	case s.cmdCh <- fn:
	case <-s.stopped:
	}
}

// Start opens the transport and begins the actor loop. Safe to call once.
func (s *Station) Start(ctx context.Context) {
	s.transport.Start(ctx)
	go s.run(ctx)
}

// Stop halts the station: cancels timers, closes the transport with code
// 1000, fails all outstanding requests with a stop sentinel, and drains the
// buffer without sending.
func (s *Station) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.stopped
}

var errStationStopped = fmt.Errorf("station stopped")

// run is the station's single actor loop. All mutation of Connectors,
// ConfigStore, cache, buffer, and state happens here.
func (s *Station) run(ctx context.Context) {
	defer close(s.stopped)
	defer s.teardown()

	if s.Template.AutoRegister {
		s.restartHeartbeatTimer()
		s.emitEvent(EventStarted)
		s.startedEmitted = true
	}
	if s.runtime.StatisticsInterval > 0 {
		go s.runStatisticsTicker(s.runtime.StatisticsInterval)
	}

	for {
		select {
		case fn := <-s.cmdCh:
			fn(s)
		case ev := <-s.transport.Events():
			s.handleTransportEvent(ev)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Station) teardown() {
	s.stopAllTimers()
	_ = s.transport.Close(1000, "station stopped")
	s.cache.drainWithError(errStationStopped)
	s.buffer.drain()
	for id, conn := range s.Connectors {
		if id == 0 {
			continue
		}
		conn.Availability = Inoperative
	}
	if s.runtime.ConfigurationDir != "" {
		if data, err := s.snapshotJSON(); err == nil {
			_ = s.ConfigStore.SaveTo(s.configurationFilePath(), data)
		}
	}
	s.emitEvent(EventStopped)
	close(s.Events)
}

func (s *Station) handleTransportEvent(ev TransportEvent) {
	switch ev.Kind {
	case TransportOpened:
		s.onTransportOpened()
	case TransportClosed:
		s.onTransportClosed(ev.CloseCode)
	case TransportMessage:
		s.messagesReceived++
		s.dispatchInbound(ev.Data)
	}
}

// onTransportOpened runs the connection-open sequence. Registration state
// is set back to Unknown on every (re)connect, so a reconnect always goes
// through the registration loop before the buffer is flushed, except for
// autoRegister stations, which never send BootNotification at all.
func (s *Station) onTransportOpened() {
	s.log.Info("transport opened")
	if s.Template.AutoRegister {
		s.state = Accepted
		s.restartHeartbeatTimer()
		s.flushBuffer()
		return
	}
	s.state = Unknown
	go s.registrationLoop()
}

func (s *Station) onTransportClosed(code int) {
	s.log.Warnf("transport closed, code=%d", code)
	if code == 1000 || code == 1005 {
		// Intentional close: tell the transport itself so its
		// reconnect loop stops, rather than just skipping our own timer
		// teardown here.
		_ = s.transport.Close(code, "central system closed intentionally")
		s.stopAllTimers()
		return
	}
	s.stopAllTimers()
	metrics.ReconnectAttemptsTotal.WithLabelValues("triggered").Inc()
}

// flushBuffer sends every buffered frame in FIFO order once registration is
// Accepted following a reconnect. If a send fails mid-flush,
// the failed frame and everything after it are re-buffered in their
// original order, so the next flush preserves FIFO.
func (s *Station) flushBuffer() {
	frames := s.buffer.drain()
	for i, frame := range frames {
		if err := s.transport.Send(frame); err != nil {
			s.log.ErrorWithErr(err, "flush interrupted, re-buffering remaining frames")
			for _, rest := range frames[i:] {
				s.buffer.push(rest)
			}
			return
		}
	}
}

func (s *Station) stopAllTimers() {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	for id, stop := range s.connectorTimerStop {
		close(stop)
		delete(s.connectorTimerStop, id)
	}
}

func (s *Station) emitEvent(kind EventKind) {
	data := StatusEventData{
		StationInfo: StationInfoSnapshot{StationId: s.ID, HashId: s.HashID},
		Connectors:  snapshotConnectors(s.Connectors),
		WSState:     wsStateLabel(s.transport.IsOpen()),
	}
	select {
	case s.Events <- Event{Kind: kind, StationId: s.ID, Data: data}:
	default:
		s.log.Warn("event channel full, dropping event")
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(kind)).Inc()
}

func wsStateLabel(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func (s *Station) snapshotJSON() ([]byte, error) {
	return json.Marshal(struct {
		StationId string `json:"stationId"`
		HashId    string `json:"hashId"`
	}{s.ID, s.HashID})
}

// ReloadTemplate applies an edited template in place, without a transport
// reset (only an identity-hash change forces a restart, which the
// supervisor handles before ever calling this). Electrical profile,
// connector phase counts, and template-supplied configuration keys are
// refreshed; ConnectorPhaseRotation is reseeded when any connector's phase
// count changed.
func (s *Station) ReloadTemplate(tpl *Template) {
	s.Enqueue(func(st *Station) {
		st.Template = tpl
		st.Electrical = ElectricalProfile{
			MaxPower:                tpl.MaxPower,
			Voltage:                 tpl.Voltage,
			NumberOfPhases:          tpl.NumberOfPhases,
			CosPhi:                  tpl.CosPhi,
			AmperageLimitation:      tpl.AmperageLimitation,
			PowerSharedByConnectors: tpl.PowerSharedByConnectors,
			IsDC:                    tpl.IsDC,
		}

		phasesChanged := false
		for id, conn := range st.Connectors {
			if id == 0 {
				continue
			}
			phases := tpl.NumberOfPhases
			if tc := st.connectorTemplate(id); tc.NumberOfPhases > 0 {
				phases = tc.NumberOfPhases
			}
			if conn.NumberOfPhases != phases {
				conn.NumberOfPhases = phases
				phasesChanged = true
			}
		}
		if phasesChanged {
			st.reseedConnectorPhaseRotation()
		}

		for key, value := range tpl.Configuration {
			st.ConfigStore.Seed(key, value, false)
		}

		st.log.Info("template reloaded in place")
		st.emitEvent(EventUpdated)
	})
}

// runStatisticsTicker periodically emits a performanceStatistics event
// until the station stops.
func (s *Station) runStatisticsTicker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Enqueue(func(st *Station) { st.emitPerformanceStatistics() })
		case <-s.stopped:
			return
		}
	}
}

func (s *Station) emitPerformanceStatistics() {
	data := PerformanceStatisticsData{
		StationId:          s.ID,
		MessagesSent:       s.messagesSent,
		MessagesReceived:   s.messagesReceived,
		TransactionsActive: s.activeTransactionCount(),
		Timestamp:          time.Now(),
	}
	select {
	case s.Events <- Event{Kind: EventPerformanceStatistics, StationId: s.ID, Data: data}:
	default:
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(EventPerformanceStatistics)).Inc()
}

// getConnectorMaximumAvailablePower computes the watt ceiling for one
// connector: power divider, amperage limitation, and the active
// charging-profile limit all apply.
func (s *Station) getConnectorMaximumAvailablePower(id int) float64 {
	divider := s.powerDividerOverride
	if divider == 0 {
		divider = powerDivider(s.Electrical, len(s.Connectors)-1, s.activeTransactionCount())
	}
	conn, ok := s.Connectors[id]
	var limit *float64
	if ok {
		limit = chargingProfileLimitWatts(conn.ChargingProfiles, conn.NumberOfPhases, s.Electrical.Voltage, s.Electrical.CosPhi, time.Now())
	}
	return connectorMaximumAvailablePower(s.Electrical, divider, limit)
}

func (s *Station) activeTransactionCount() int {
	n := 0
	for id, c := range s.Connectors {
		if id != 0 && c.TransactionStarted {
			n++
		}
	}
	return n
}
