// Package supervisor is the process-level manager that owns the fleet: it
// loads station templates from disk, builds and starts one station.Station
// plus (optionally) one atg.Runner per template, fans every station's
// Event channel out to the metrics registry and the Kafka event bridge, and
// routes external remote-control requests back into the owning station.
package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evfleet/station-simulator/internal/atg"
	"github.com/evfleet/station-simulator/internal/config"
	"github.com/evfleet/station-simulator/internal/logger"
	"github.com/evfleet/station-simulator/internal/metrics"
	"github.com/evfleet/station-simulator/internal/notify"
	"github.com/evfleet/station-simulator/internal/ocpp"
	"github.com/evfleet/station-simulator/internal/station"
	"github.com/evfleet/station-simulator/internal/transport/ws"
)

// leaseRegistry is the subset of internal/registry.Registry the supervisor
// needs, narrowed so it can run with the registry disabled (nil) in
// single-process / test setups.
type leaseRegistry interface {
	Acquire(ctx context.Context, stationID, ownerID string) error
	Renew(ctx context.Context, stationID, ownerID string) error
	Release(ctx context.Context, stationID, ownerID string) error
}

// eventPublisher is the subset of internal/notify.Producer the supervisor
// needs.
type eventPublisher interface {
	PublishEvent(ev station.Event) error
}

// Deps carries the already-constructed collaborators the supervisor wires
// stations through. Registry and Producer may be nil to disable their
// features.
type Deps struct {
	Registry      leaseRegistry
	RenewInterval time.Duration // how often to renew an acquired lease; ignored if Registry is nil
	Producer      eventPublisher
	AuthCache     station.AuthorizationCache
}

// managedStation bundles one running station with its optional ATG runner
// and the template-file bookkeeping the hot-reload watcher needs.
type managedStation struct {
	st      *station.Station
	atg     *atg.Runner
	path    string
	index   int
	hash    string
	modTime time.Time
}

// Manager owns the fleet of running stations.
type Manager struct {
	cfg  *config.Config
	deps Deps
	log  *logger.Logger

	mu       sync.Mutex
	stations map[string]*managedStation
}

// New builds a Manager. It does not load or start any stations yet.
func New(cfg *config.Config, deps Deps, log *logger.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		stations: make(map[string]*managedStation),
	}
}

// LoadAndStart reads every *.json template under cfg.Supervisor.TemplateDir,
// builds a station for each, attempts to acquire its ownership lease (if a
// registry is configured), and starts it. A template that fails to load or
// whose lease is already held elsewhere is logged and skipped, not fatal.
func (m *Manager) LoadAndStart(ctx context.Context) error {
	dir := m.cfg.Supervisor.TemplateDir
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	for i, path := range files {
		tpl, err := station.LoadTemplate(path)
		if err != nil {
			m.log.ErrorWithErr(err, "failed to load template "+path)
			continue
		}
		if err := m.startStation(ctx, tpl, i, path); err != nil {
			m.log.ErrorWithErr(err, "failed to start station "+tpl.StationId)
			continue
		}
	}

	metrics.StationsConfigured.Set(float64(len(m.stations)))
	if m.cfg.Supervisor.TemplateWatchEnable {
		go m.watchTemplates(ctx)
	}
	return nil
}

func (m *Manager) startStation(ctx context.Context, tpl *station.Template, index int, path string) error {
	if m.deps.Registry != nil {
		if err := m.deps.Registry.Acquire(ctx, tpl.StationId, m.cfg.PodID); err != nil {
			metrics.RegistryLeaseFailuresTotal.Inc()
			return fmt.Errorf("acquire ownership lease: %w", err)
		}
	}

	authList, err := station.LoadAuthorizationList(tpl.AuthorizationListFile)
	if err != nil {
		return fmt.Errorf("load authorization list: %w", err)
	}

	var validator ocpp.Validate = ocpp.AlwaysValid{}
	if tpl.OcppStrictCompliance {
		validator = ocpp.NewSchemaValidator()
	}

	runtime := station.RuntimeConfig{
		PerSendTimeout:         m.cfg.WebSocket.PerSendTimeout,
		DefaultBootInterval:    m.cfg.Registration.DefaultBootInterval,
		RegistrationMaxRetries: m.cfg.Registration.MaxRetries,
		ConfigurationDir:       m.cfg.Supervisor.ConfigurationDir,
		DefaultPingInterval:    m.cfg.WebSocket.DefaultPingInterval,
		StatisticsInterval:     m.cfg.Supervisor.StatisticsInterval,
	}

	log := m.log.With("stationId", tpl.StationId)
	transport := ws.New(m.wsConfig(tpl, index), log)

	st := station.New(tpl, transport, validator, log, runtime, m.deps.AuthCache, authList)
	st.Start(ctx)

	ms := &managedStation{st: st, path: path, index: index, hash: tpl.HashId()}
	if info, err := os.Stat(path); err == nil {
		ms.modTime = info.ModTime()
	}
	if tpl.ATG != nil && tpl.ATG.Enabled {
		ms.atg = atg.New(st, m.cfg.ATG, log)
		ms.atg.Start()
	}

	m.mu.Lock()
	m.stations[tpl.StationId] = ms
	m.mu.Unlock()

	go m.pumpEvents(st)
	if m.deps.Registry != nil && m.deps.RenewInterval > 0 {
		go m.renewLease(st)
	}
	return nil
}

// renewLease periodically re-extends a station's ownership lease until the
// station stops, so a long-running session doesn't outlive its own TTL.
func (m *Manager) renewLease(st *station.Station) {
	ticker := time.NewTicker(m.deps.RenewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := m.deps.Registry.Renew(ctx, st.ID, m.cfg.PodID)
			cancel()
			if err != nil {
				m.log.ErrorWithErr(err, "failed to renew ownership lease for "+st.ID)
			}
		case <-st.Done():
			return
		}
	}
}

// wsConfig translates fleet + per-template settings into a transport dial
// configuration, resolving the supervision URL to dial per the template's
// DistributionPolicy when more than one is configured.
func (m *Manager) wsConfig(tpl *station.Template, index int) ws.Config {
	cfg := ws.DefaultConfig()
	cfg.SupervisionURL = selectSupervisionURL(tpl, index)
	cfg.StationID = tpl.StationId
	cfg.ReadBufferSize = m.cfg.WebSocket.ReadBufferSize
	cfg.WriteBufferSize = m.cfg.WebSocket.WriteBufferSize
	cfg.HandshakeTimeout = m.cfg.WebSocket.HandshakeTimeout
	cfg.PingInterval = m.cfg.WebSocket.DefaultPingInterval
	cfg.MaxRetries = m.cfg.Reconnect.MaxRetries
	cfg.ExponentialBackoff = m.cfg.Reconnect.ExponentialDelay
	// The base reconnect delay is the handshake timeout; exponential backoff,
	// when enabled, grows from there.
	if cfg.HandshakeTimeout > 0 {
		cfg.MinBackoff = cfg.HandshakeTimeout
	}
	cfg.TLSInsecureSkipVerify = m.cfg.Security.InsecureSkipVerify

	if tpl.AuthorizationKey != "" {
		cfg.BasicAuthUser = tpl.StationId
		cfg.BasicAuthPassword = tpl.AuthorizationKey
	}
	return cfg
}

// selectSupervisionURL picks one of a template's supervisionUrls per its
// DistributionPolicy: random picks independently per station; round-robin,
// sequential and an unset policy all pick urls[index % len(urls)] by
// template index, so sequential is handled exactly like round-robin.
func selectSupervisionURL(tpl *station.Template, index int) string {
	urls := tpl.SupervisionUrls
	if len(urls) == 0 {
		return ""
	}
	if len(urls) == 1 {
		return urls[0]
	}
	switch tpl.DistributionPolicy {
	case "random":
		return urls[rand.Intn(len(urls))]
	default: // "round-robin", "sequential", or unset
		return urls[index%len(urls)]
	}
}

// pumpEvents forwards one station's Events channel to the Kafka producer (if
// configured) and keeps the stations-connected/registered gauges current
// until the station stops and its Events channel closes. A station may emit
// several boot responses across reconnects; the gauges count each station
// once.
func (m *Manager) pumpEvents(st *station.Station) {
	connected := false
	registered := false
	for ev := range st.Events {
		switch ev.Kind {
		case station.EventStarted:
			if !connected {
				connected = true
				metrics.StationsConnected.Inc()
			}
		case station.EventStopped:
			if connected {
				connected = false
				metrics.StationsConnected.Dec()
			}
			if registered {
				registered = false
				metrics.StationsRegistered.Dec()
			}
		}
		if data, ok := ev.Data.(station.StatusEventData); ok && data.BootNotificationResponse != nil &&
			data.BootNotificationResponse.Status == ocpp.RegistrationAccepted && !registered {
			registered = true
			metrics.StationsRegistered.Inc()
		}
		if m.deps.Producer != nil {
			if err := m.deps.Producer.PublishEvent(ev); err != nil {
				m.log.ErrorWithErr(err, "failed to publish station event")
			}
		}
	}
}

// watchTemplates polls every managed station's template file for changes
// an edit that keeps the derived identity hash is applied in
// place without a transport reset; an edit that changes the hash stops the
// station and starts a fresh one from the new template.
func (m *Manager) watchTemplates(ctx context.Context) {
	interval := m.cfg.Supervisor.TemplatePollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepTemplates(ctx)
		}
	}
}

func (m *Manager) sweepTemplates(ctx context.Context) {
	m.mu.Lock()
	all := make([]*managedStation, 0, len(m.stations))
	for _, ms := range m.stations {
		all = append(all, ms)
	}
	m.mu.Unlock()

	for _, ms := range all {
		info, err := os.Stat(ms.path)
		if err != nil {
			continue
		}
		if !info.ModTime().After(ms.modTime) {
			continue
		}
		tpl, err := station.LoadTemplate(ms.path)
		if err != nil {
			m.log.ErrorWithErr(err, "failed to reload template "+ms.path)
			continue
		}

		if tpl.HashId() != ms.hash {
			m.log.Infof("template %s changed station identity, restarting %s", ms.path, tpl.StationId)
			m.stopStation(ms)
			if err := m.startStation(ctx, tpl, ms.index, ms.path); err != nil {
				m.log.ErrorWithErr(err, "failed to restart station "+tpl.StationId)
			}
			continue
		}

		ms.modTime = info.ModTime()
		ms.st.ReloadTemplate(tpl)
	}
}

// stopStation stops one managed station, releases its lease, and forgets it.
func (m *Manager) stopStation(ms *managedStation) {
	if ms.atg != nil {
		ms.atg.Stop()
	}
	ms.st.Stop()
	if m.deps.Registry != nil {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.deps.Registry.Release(releaseCtx, ms.st.ID, m.cfg.PodID); err != nil {
			m.log.ErrorWithErr(err, "failed to release ownership lease for "+ms.st.ID)
		}
		cancel()
	}
	m.mu.Lock()
	if cur, ok := m.stations[ms.st.ID]; ok && cur == ms {
		delete(m.stations, ms.st.ID)
	}
	m.mu.Unlock()
}

// HandleRemoteCommand routes one external remote-control request into its
// owning station, exactly as if the central system had sent the equivalent
// Call over the wire.
func (m *Manager) HandleRemoteCommand(cmd notify.RemoteCommand) {
	m.mu.Lock()
	ms, ok := m.stations[cmd.StationId]
	m.mu.Unlock()
	if !ok {
		m.log.Warnf("remote command for unknown station %s ignored", cmd.StationId)
		return
	}

	var action ocpp.Action
	switch cmd.Command {
	case "RemoteStartTransaction":
		action = ocpp.ActionRemoteStartTransaction
	case "RemoteStopTransaction":
		action = ocpp.ActionRemoteStopTransaction
	case "TriggerMessage":
		action = ocpp.ActionTriggerMessage
	default:
		m.log.Warnf("unknown remote command %q for station %s", cmd.Command, cmd.StationId)
		return
	}
	ms.st.InjectCall(action, cmd.Payload)
}

// Stations returns a snapshot of currently managed station ids.
func (m *Manager) Stations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.stations))
	for id := range m.stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stop stops every managed station (and its ATG runner), releases any
// ownership leases held, and waits for all actor loops to exit.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	all := make([]*managedStation, 0, len(m.stations))
	for _, ms := range m.stations {
		all = append(all, ms)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, ms := range all {
		wg.Add(1)
		go func(ms *managedStation) {
			defer wg.Done()
			m.stopStation(ms)
		}(ms)
	}
	wg.Wait()
}
