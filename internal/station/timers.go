package station

import (
	"context"
	"math/rand"
	"time"

	"github.com/evfleet/station-simulator/internal/ocpp"
)

// This file holds the station's timers: the
// heartbeat ticker and per-connector meter-values tickers. Both run as
// short-lived goroutines that only ever touch station state through
// Enqueue or the blocking Send API, never directly: the actor goroutine
// owns the authoritative heartbeatStop/connectorTimerStop bookkeeping.

// restartHeartbeatTimer stops any running heartbeat goroutine and starts a
// new one at the current heartbeatInterval. Must run on the actor
// goroutine. A zero interval leaves the timer disarmed.
func (s *Station) restartHeartbeatTimer() {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
	if s.heartbeatInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	s.heartbeatStop = stop
	go s.runHeartbeatTicker(s.heartbeatInterval, stop)
}

func (s *Station) runHeartbeatTicker(interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sendHeartbeat()
		case <-stop:
			return
		case <-s.stopped:
			return
		}
	}
}

// armMeterValuesTimer starts the per-connector meter-values goroutine for
// the duration of an active transaction. Must run on the actor goroutine.
func (s *Station) armMeterValuesTimer(connectorID int) {
	if _, exists := s.connectorTimerStop[connectorID]; exists {
		return
	}
	tpl := s.connectorTemplate(connectorID)
	interval := tpl.MeterValueSampleInterval
	if interval <= 0 {
		interval = 60
	}
	stop := make(chan struct{})
	s.connectorTimerStop[connectorID] = stop
	go s.runMeterValuesTicker(connectorID, time.Duration(interval)*time.Second, stop)
}

// disarmMeterValuesTimer stops the connector's meter-values goroutine, if
// any. Must run on the actor goroutine.
func (s *Station) disarmMeterValuesTimer(connectorID int) {
	if stop, ok := s.connectorTimerStop[connectorID]; ok {
		close(stop)
		delete(s.connectorTimerStop, connectorID)
	}
}

func (s *Station) runMeterValuesTicker(connectorID int, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(connectorID)))
	for {
		select {
		case <-ticker.C:
			s.Enqueue(func(st *Station) {
				st.emitMeterValue(connectorID, int(interval.Seconds()), rng)
			})
		case <-stop:
			return
		case <-s.stopped:
			return
		}
	}
}

// sendMeterValuesOnce emits a single out-of-band MeterValues sample,
// used by TriggerMessage. Must run on the actor goroutine.
func (s *Station) sendMeterValuesOnce(connectorID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	s.emitMeterValue(connectorID, 0, rng)
}

// emitMeterValue draws one sample, advances the connector's energy
// registers, and dispatches the MeterValues Call from a short-lived
// goroutine (the send itself must not block the actor). Must run on the
// actor goroutine.
func (s *Station) emitMeterValue(connectorID int, intervalSeconds int, rng *rand.Rand) {
	conn, ok := s.Connectors[connectorID]
	if !ok {
		return
	}
	tpl := s.connectorTemplate(connectorID)
	maxPower := s.getConnectorMaximumAvailablePower(connectorID)

	mv, incrementWh := GenerateMeterValue(conn, tpl, maxPower, s.Electrical.Voltage, conn.NumberOfPhases, intervalSeconds, rng, time.Now())
	conn.addEnergy(incrementWh)

	var transactionID *int
	if conn.TransactionStarted {
		id := conn.TransactionId
		transactionID = &id
	}

	req := ocpp.MeterValuesRequest{
		ConnectorId:   connectorID,
		TransactionId: transactionID,
		MeterValue:    []ocpp.MeterValue{mv},
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.runtime.PerSendTimeout+5*time.Second)
		defer cancel()
		if _, err := s.Send(ctx, ocpp.ActionMeterValues, req, sendOptions{}); err != nil {
			s.log.ErrorWithErr(err, "MeterValues failed")
		}
	}()
}
