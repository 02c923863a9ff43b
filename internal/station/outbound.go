package station

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/evfleet/station-simulator/internal/metrics"
	"github.com/evfleet/station-simulator/internal/ocpp"
)

// registrationLoop repeatedly sends BootNotification until the central
// system accepts, rejects, or retries are exhausted. It runs
// on its own goroutine, calling the blocking Send API like any other
// external caller. At most one loop runs at a time: a reconnect or a
// TriggerMessage(BootNotification) arriving while a loop is still retrying
// joins the running loop instead of starting a second one.
//
// Retries carry triggerMessage=true so a Pending response does not dead-end
// the loop: the admission policy only lets trigger-opted Calls through in
// Pending, and a boot retry the central system's interval explicitly asked
// for is exactly that.
func (s *Station) registrationLoop() {
	if !atomic.CompareAndSwapInt32(&s.registering, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&s.registering, 0)

	req := ocpp.BootNotificationRequest{
		ChargePointVendor:       s.Template.ChargePointVendor,
		ChargePointModel:        s.Template.ChargePointModel,
		ChargePointSerialNumber: s.Template.ChargePointSerialNumber,
		ChargeBoxSerialNumber:   s.Template.ChargeBoxSerialNumber,
		FirmwareVersion:         s.Template.FirmwareVersion,
		Iccid:                   s.Template.Iccid,
		Imsi:                    s.Template.Imsi,
		MeterType:               s.Template.MeterType,
		MeterSerialNumber:       s.Template.MeterSerialNumber,
	}

	attempt := 0
	interval := s.runtime.DefaultBootInterval
	for {
		select {
		case <-s.stopped:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.runtime.PerSendTimeout+5*time.Second)
		raw, err := s.Send(ctx, ocpp.ActionBootNotification, req, sendOptions{skipBufferingOnError: true, triggerMessage: true})
		cancel()
		attempt++

		if err != nil {
			s.log.ErrorWithErr(err, "BootNotification failed")
			metrics.BootNotificationRetriesTotal.Inc()
			if s.runtime.RegistrationMaxRetries >= 0 && attempt > s.runtime.RegistrationMaxRetries {
				s.Enqueue(func(st *Station) { st.state = Rejected })
				return
			}
			select {
			case <-time.After(interval):
			case <-s.stopped:
				return
			}
			continue
		}

		var resp ocpp.BootNotificationResponse
		if jsonErr := json.Unmarshal(raw, &resp); jsonErr != nil {
			s.log.ErrorWithErr(jsonErr, "malformed BootNotification response")
			continue
		}

		s.Enqueue(func(st *Station) {
			st.onBootNotificationResponse(resp)
		})

		if resp.Status == ocpp.RegistrationAccepted {
			return
		}
		if resp.Status == ocpp.RegistrationRejected {
			return
		}
		if resp.Interval > 0 {
			interval = time.Duration(resp.Interval) * time.Second
		}
		select {
		case <-time.After(interval):
		case <-s.stopped:
			return
		}
	}
}

func (s *Station) onBootNotificationResponse(resp ocpp.BootNotificationResponse) {
	s.state = FromRegistrationStatus(resp.Status)
	if resp.Interval > 0 {
		s.heartbeatInterval = time.Duration(resp.Interval) * time.Second
		s.ConfigStore.Seed("HeartbeatInterval", strconv.Itoa(resp.Interval), false)
	}
	if s.state == Accepted {
		s.restartHeartbeatTimer()
		s.flushBuffer()
	}
	kind := EventStarted
	if s.startedEmitted {
		kind = EventUpdated
	}
	s.startedEmitted = true
	s.emitStatusEvent(kind, &resp)
}

func (s *Station) emitStatusEvent(kind EventKind, bootResp *ocpp.BootNotificationResponse) {
	data := StatusEventData{
		StationInfo:              StationInfoSnapshot{StationId: s.ID, HashId: s.HashID},
		Connectors:               snapshotConnectors(s.Connectors),
		WSState:                  wsStateLabel(s.transport.IsOpen()),
		BootNotificationResponse: bootResp,
	}
	select {
	case s.Events <- Event{Kind: kind, StationId: s.ID, Data: data}:
	default:
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(kind)).Inc()
}

// sendHeartbeat sends a Heartbeat; the returned currentTime is discarded.
func (s *Station) sendHeartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runtime.PerSendTimeout+5*time.Second)
	defer cancel()
	_, err := s.Send(ctx, ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{}, sendOptions{})
	if err != nil {
		s.log.ErrorWithErr(err, "Heartbeat failed")
	}
}

// sendStatusNotification reports a connector's status, updating the
// connector's Status regardless of whether the table allows the transition
// to be admitted onto the wire. The simulator's internal state always
// reflects the most recent report.
func (s *Station) sendStatusNotification(connectorID int, status ocpp.ChargePointStatus, errorCode ocpp.ChargePointErrorCode, info string) {
	conn, ok := s.Connectors[connectorID]
	if !ok {
		return
	}
	if !isValidStatusTransition(conn.Status, status) {
		s.log.Warnf("connector %d: status transition %s -> %s is not in the allowed table, reporting anyway", connectorID, conn.Status, status)
	}
	conn.Status = status
	conn.ErrorCode = errorCode

	req := ocpp.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   errorCode,
		Info:        info,
		Status:      status,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.runtime.PerSendTimeout+5*time.Second)
		defer cancel()
		if _, err := s.Send(ctx, ocpp.ActionStatusNotification, req, sendOptions{}); err != nil {
			s.log.ErrorWithErr(err, "StatusNotification failed")
		}
	}()
}

// sendAuthorize checks idTag against the central system with an Authorize
// Call and records the returned status in the authorization cache, if one
// is configured. It does not consult the local list or cache itself.
func (s *Station) sendAuthorize(ctx context.Context, idTag string) (ocpp.IdTagInfo, error) {
	raw, err := s.Send(ctx, ocpp.ActionAuthorize, ocpp.AuthorizeRequest{IdTag: idTag}, sendOptions{})
	if err != nil {
		return ocpp.IdTagInfo{}, err
	}
	var resp ocpp.AuthorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ocpp.IdTagInfo{}, err
	}
	if s.authCache != nil {
		s.authCache.Set(idTag, string(resp.IdTagInfo.Status), 0)
	}
	return resp.IdTagInfo, nil
}

// startTransactionFlow runs the Authorize -> StartTransaction exchange and
// arms the connector's meter-values timer, driven from a short-lived
// goroutine, the same short-lived-helper model the ATG uses. The
// Authorize Call is only issued when the template requires it and the
// id-tag is not already locally authorized.
func (s *Station) startTransactionFlow(connectorID int, idTag string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.Template.ATG != nil && s.Template.ATG.RequireAuthorize && !s.isAuthorized(idTag) {
		info, err := s.sendAuthorize(ctx, idTag)
		if err != nil || info.Status != ocpp.AuthorizationAccepted {
			s.log.Warnf("authorize rejected for idTag %s on connector %d", idTag, connectorID)
			return
		}
	}

	meterCh := make(chan int64, 1)
	s.Enqueue(func(st *Station) {
		var m int64
		if conn, ok := st.Connectors[connectorID]; ok {
			m = conn.EnergyRegister
		}
		meterCh <- m
	})
	var meterStart int64
	select {
	case meterStart = <-meterCh:
	case <-s.stopped:
		return
	}

	req := ocpp.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  int(meterStart),
		Timestamp:   ocpp.NewDateTime(time.Now()),
	}
	raw, err := s.Send(ctx, ocpp.ActionStartTransaction, req, sendOptions{})
	if err != nil {
		s.log.ErrorWithErr(err, "StartTransaction failed")
		return
	}
	var resp ocpp.StartTransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.log.ErrorWithErr(err, "malformed StartTransaction response")
		return
	}
	if resp.IdTagInfo.Status != ocpp.AuthorizationAccepted {
		return
	}

	s.Enqueue(func(st *Station) {
		conn, ok := st.Connectors[connectorID]
		if !ok {
			return
		}
		conn.startTransaction(resp.TransactionId, idTag)
		st.sendStatusNotification(connectorID, ocpp.StatusCharging, ocpp.ErrorCodeNoError, "")
		metrics.TransactionsStartedTotal.Inc()
		metrics.TransactionsActive.Inc()
		st.armMeterValuesTimer(connectorID)
	})
}

// stopTransactionFlow ends a connector's active transaction. The snapshot
// of transaction id, tag, and meter reading is taken on the actor goroutine
// (which also disarms the meter-values timer, so no further sample can
// advance the register after the reading is captured) before the
// StopTransaction Call is sent.
func (s *Station) stopTransactionFlow(connectorID int, reason ocpp.Reason) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	type stopSnapshot struct {
		ok            bool
		transactionID int
		idTag         string
		meterStop     int64
	}
	snapCh := make(chan stopSnapshot, 1)
	s.Enqueue(func(st *Station) {
		conn, ok := st.Connectors[connectorID]
		if !ok || !conn.TransactionStarted {
			snapCh <- stopSnapshot{}
			return
		}
		st.disarmMeterValuesTimer(connectorID)
		snapCh <- stopSnapshot{
			ok:            true,
			transactionID: conn.TransactionId,
			idTag:         conn.IdTag,
			meterStop:     conn.EnergyRegister,
		}
	})

	var snap stopSnapshot
	select {
	case snap = <-snapCh:
	case <-s.stopped:
		return
	}
	if !snap.ok {
		return
	}

	req := ocpp.StopTransactionRequest{
		IdTag:         snap.idTag,
		MeterStop:     int(snap.meterStop),
		Timestamp:     ocpp.NewDateTime(time.Now()),
		TransactionId: snap.transactionID,
		Reason:        reason,
	}
	if _, err := s.Send(ctx, ocpp.ActionStopTransaction, req, sendOptions{}); err != nil {
		s.log.ErrorWithErr(err, "StopTransaction failed")
	}

	s.Enqueue(func(st *Station) {
		conn, ok := st.Connectors[connectorID]
		if !ok {
			return
		}
		conn.stopTransaction()
		st.sendStatusNotification(connectorID, ocpp.StatusFinishing, ocpp.ErrorCodeNoError, "")
		metrics.TransactionsActive.Dec()
	})
}

func (s *Station) simulateDiagnosticsUpload() {
	s.sendDiagnosticsStatus(ocpp.DiagnosticsUploading)
	time.Sleep(500 * time.Millisecond)
	s.sendDiagnosticsStatus(ocpp.DiagnosticsUploaded)
}

func (s *Station) sendDiagnosticsStatus(status ocpp.DiagnosticsStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runtime.PerSendTimeout+5*time.Second)
	defer cancel()
	req := ocpp.DiagnosticsStatusNotificationRequest{Status: status}
	if _, err := s.Send(ctx, ocpp.ActionDiagnosticsStatusNotification, req, sendOptions{}); err != nil {
		s.log.ErrorWithErr(err, "DiagnosticsStatusNotification failed")
	}
}

// sendTriggeredMessage sends the requested message type. The Heartbeat Call
// here and the BootNotification Calls of registrationLoop carry
// sendOptions.triggerMessage, so the Pending state admits them; triggered
// MeterValues, StatusNotification and DiagnosticsStatusNotification Calls
// are sent with default options and go through normal admission.
func (s *Station) sendTriggeredMessage(trigger ocpp.MessageTrigger, connectorID *int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.runtime.PerSendTimeout+5*time.Second)
	defer cancel()

	switch trigger {
	case ocpp.TriggerBootNotification:
		go s.registrationLoop()
	case ocpp.TriggerHeartbeat:
		_, _ = s.Send(ctx, ocpp.ActionHeartbeat, ocpp.HeartbeatRequest{}, sendOptions{triggerMessage: true})
	case ocpp.TriggerMeterValues:
		id := 1
		if connectorID != nil {
			id = *connectorID
		}
		s.Enqueue(func(st *Station) { st.sendMeterValuesOnce(id) })
	case ocpp.TriggerStatusNotification:
		id := 0
		if connectorID != nil {
			id = *connectorID
		}
		s.Enqueue(func(st *Station) {
			if conn, ok := st.Connectors[id]; ok {
				st.sendStatusNotification(id, conn.Status, conn.ErrorCode, "")
			}
		})
	case ocpp.TriggerDiagnosticsStatusNotif:
		s.sendDiagnosticsStatus(ocpp.DiagnosticsIdle)
	}
}
