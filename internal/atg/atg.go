// Package atg implements the Automatic Transaction Generator: one worker
// per connector that alternates sleeping, an
// Authorize/StartTransaction/StopTransaction cycle, and sleeping again,
// driving synthetic charging load against a station without any central
// system involved.
package atg

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evfleet/station-simulator/internal/config"
	"github.com/evfleet/station-simulator/internal/logger"
	"github.com/evfleet/station-simulator/internal/ocpp"
	"github.com/evfleet/station-simulator/internal/station"
)

// resolvedConfig is a station's ATG template merged over the fleet-wide
// defaults from internal/config.
type resolvedConfig struct {
	minDelay         time.Duration
	maxDelay         time.Duration
	minDuration      time.Duration
	maxDuration      time.Duration
	startProbability float64
	stopAfter        time.Duration
	idTags           []string
}

// Runner drives the ATG for one station: one goroutine per connector id>0,
// started by Start and torn down by Stop.
type Runner struct {
	st       *station.Station
	defaults config.ATGConfig
	log      *logger.Logger

	stopCh  chan struct{}
	stopped int32
	wg      sync.WaitGroup

	skipped int64
	started int64
}

// New builds a Runner for st. It does not start any goroutines until Start
// is called.
func New(st *station.Station, defaults config.ATGConfig, log *logger.Logger) *Runner {
	return &Runner{
		st:       st,
		defaults: defaults,
		log:      log.With("stationId", st.ID),
		stopCh:   make(chan struct{}),
	}
}

// Start launches one worker per connector, if the resolved configuration
// enables the ATG. Start has no guard against repeated calls: each call
// launches another set of workers.
func (r *Runner) Start() {
	cfg := r.resolve()
	if !cfg.enabled() {
		return
	}
	var deadline time.Time
	if cfg.stopAfter > 0 {
		deadline = time.Now().Add(cfg.stopAfter)
	}

	for _, cs := range r.st.Snapshot() {
		id := cs.ID
		r.wg.Add(1)
		go r.runConnector(id, cfg, deadline)
	}
}

// Stop signals every worker to exit and waits for them to do so.
func (r *Runner) Stop() {
	if !atomic.CompareAndSwapInt32(&r.stopped, 0, 1) {
		return
	}
	close(r.stopCh)
	r.wg.Wait()
}

// SkippedCycles reports how many cycles were skipped by the start
// probability gate.
func (r *Runner) SkippedCycles() int64 {
	return atomic.LoadInt64(&r.skipped)
}

// TransactionsStarted reports how many transactions this runner has
// successfully opened.
func (r *Runner) TransactionsStarted() int64 {
	return atomic.LoadInt64(&r.started)
}

func (cfg resolvedConfig) enabled() bool {
	return len(cfg.idTags) > 0
}

// resolve merges the station template's ATG settings over the fleet
// defaults. A template ATG block overrides any field it sets explicitly;
// zero-valued fields fall back to the fleet default.
func (r *Runner) resolve() resolvedConfig {
	cfg := resolvedConfig{
		minDelay:         r.defaults.MinDelay,
		maxDelay:         r.defaults.MaxDelay,
		minDuration:      r.defaults.MinDuration,
		maxDuration:      r.defaults.MaxDuration,
		startProbability: r.defaults.StartProbability,
		stopAfter:        r.defaults.StopAfter,
		idTags:           r.st.AuthorizationTags(),
	}

	tpl := r.st.ATGTemplate()
	if tpl == nil {
		if !r.defaults.Enabled {
			cfg.idTags = nil
		}
		return cfg
	}
	if !tpl.Enabled {
		cfg.idTags = nil
		return cfg
	}
	if tpl.MinDelaySeconds > 0 {
		cfg.minDelay = time.Duration(tpl.MinDelaySeconds) * time.Second
	}
	if tpl.MaxDelaySeconds > 0 {
		cfg.maxDelay = time.Duration(tpl.MaxDelaySeconds) * time.Second
	}
	if tpl.MinDurationSeconds > 0 {
		cfg.minDuration = time.Duration(tpl.MinDurationSeconds) * time.Second
	}
	if tpl.MaxDurationSeconds > 0 {
		cfg.maxDuration = time.Duration(tpl.MaxDurationSeconds) * time.Second
	}
	if tpl.StartProbability > 0 {
		cfg.startProbability = tpl.StartProbability
	}
	if tpl.StopAfterHours > 0 {
		cfg.stopAfter = time.Duration(tpl.StopAfterHours * float64(time.Hour))
	}
	if len(tpl.AuthorizedIdTags) > 0 {
		cfg.idTags = tpl.AuthorizedIdTags
	}
	return cfg
}

// runConnector alternates sleep/Authorize-Start/sleep/Stop for one
// connector until the global stop condition fires or the station stops.
func (r *Runner) runConnector(connectorID int, cfg resolvedConfig, deadline time.Time) {
	defer r.wg.Done()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(connectorID)<<32))

	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
		if !r.sleep(randomDuration(rng, cfg.minDelay, cfg.maxDelay)) {
			return
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}

		if cfg.startProbability < 1 && rng.Float64() > cfg.startProbability {
			atomic.AddInt64(&r.skipped, 1)
			continue
		}

		if !r.connectorReady(connectorID) {
			continue
		}

		// The station's own transaction flow issues the Authorize Call when
		// the template requires one and the tag is not locally authorized.
		idTag := cfg.idTags[rng.Intn(len(cfg.idTags))]

		r.st.StartTransaction(connectorID, idTag)
		if !r.waitForTransactionStart(connectorID) {
			continue
		}
		atomic.AddInt64(&r.started, 1)

		if !r.sleep(randomDuration(rng, cfg.minDuration, cfg.maxDuration)) {
			r.st.StopTransaction(connectorID, ocpp.ReasonOther)
			return
		}

		r.st.StopTransaction(connectorID, ocpp.ReasonLocal)
	}
}

// connectorReady reports whether connectorID is free to start a new
// transaction right now.
func (r *Runner) connectorReady(connectorID int) bool {
	for _, cs := range r.st.Snapshot() {
		if cs.ID == connectorID {
			return cs.Available && !cs.TransactionStarted
		}
	}
	return false
}

// waitForTransactionStart polls the connector snapshot until the
// StartTransaction exchange either succeeds or a bounded timeout elapses.
func (r *Runner) waitForTransactionStart(connectorID int) bool {
	deadline := time.Now().Add(15 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		for _, cs := range r.st.Snapshot() {
			if cs.ID == connectorID && cs.TransactionStarted {
				return true
			}
		}
		select {
		case <-ticker.C:
		case <-r.stopCh:
			return false
		case <-r.st.Done():
			return false
		}
	}
	return false
}

// sleep waits for d, returning false if the runner was asked to stop or
// the station stopped first.
func (r *Runner) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.stopCh:
		return false
	case <-r.st.Done():
		return false
	}
}

func randomDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}
