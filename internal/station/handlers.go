package station

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/evfleet/station-simulator/internal/ocpp"
)

// This file holds the inbound Call handlers.
// Every handler runs on the station actor goroutine (invoked from
// dispatchCall) and so may freely read and mutate Connectors, ConfigStore,
// and cache/buffer without additional locking.

func init() {
	registerHandler(ocpp.ActionReset, handleReset)
	registerHandler(ocpp.ActionClearCache, handleClearCache)
	registerHandler(ocpp.ActionChangeAvailability, handleChangeAvailability)
	registerHandler(ocpp.ActionUnlockConnector, handleUnlockConnector)
	registerHandler(ocpp.ActionGetConfiguration, handleGetConfiguration)
	registerHandler(ocpp.ActionChangeConfiguration, handleChangeConfiguration)
	registerHandler(ocpp.ActionSetChargingProfile, handleSetChargingProfile)
	registerHandler(ocpp.ActionClearChargingProfile, handleClearChargingProfile)
	registerHandler(ocpp.ActionRemoteStartTransaction, handleRemoteStartTransaction)
	registerHandler(ocpp.ActionRemoteStopTransaction, handleRemoteStopTransaction)
	registerHandler(ocpp.ActionGetDiagnostics, handleGetDiagnostics)
	registerHandler(ocpp.ActionTriggerMessage, handleTriggerMessage)
}

func unmarshalPayload(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return ocpp.NewOCPPError(ocpp.ErrorFormationViolation, err.Error(), "")
	}
	return nil
}

// handleReset simulates a Soft/Hard reset: Accepted, then the station is
// stopped shortly after the response is flushed so the caller still
// receives it.
func handleReset(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.ResetRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}
	go func() {
		time.Sleep(200 * time.Millisecond)
		s.Stop()
	}()
	return ocpp.ResetResponse{Status: ocpp.RemoteStartStopAccepted}, nil
}

// handleClearCache clears the local id-tag authorization cache.
func handleClearCache(s *Station, raw json.RawMessage) (interface{}, error) {
	if s.authCache == nil {
		return ocpp.ClearCacheResponse{Status: ocpp.ClearCacheRejected}, nil
	}
	if clearer, ok := s.authCache.(interface{ Clear() }); ok {
		clearer.Clear()
	}
	return ocpp.ClearCacheResponse{Status: ocpp.ClearCacheAccepted}, nil
}

func handleChangeAvailability(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.ChangeAvailabilityRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}

	target := Operative
	if req.Type == ocpp.AvailabilityInoperative {
		target = Inoperative
	}

	if req.ConnectorId == 0 {
		for id, conn := range s.Connectors {
			s.applyAvailability(id, conn, target)
		}
		return ocpp.ChangeAvailabilityResponse{Status: ocpp.AvailabilityStatusAccepted}, nil
	}

	conn, ok := s.Connectors[req.ConnectorId]
	if !ok {
		return ocpp.ChangeAvailabilityResponse{Status: ocpp.AvailabilityStatusRejected}, nil
	}
	if conn.TransactionStarted {
		// Applied to our model immediately. No StatusNotification for the
		// new availability is sent, either now or when the running
		// transaction ends.
		conn.Availability = target
		return ocpp.ChangeAvailabilityResponse{Status: ocpp.AvailabilityStatusScheduled}, nil
	}
	s.applyAvailability(req.ConnectorId, conn, target)
	return ocpp.ChangeAvailabilityResponse{Status: ocpp.AvailabilityStatusAccepted}, nil
}

// applyAvailability updates a connector's availability and reports the
// resulting Available/Unavailable status change, if any.
func (s *Station) applyAvailability(id int, conn *Connector, target Availability) {
	changed := conn.Availability != target
	conn.Availability = target
	if !changed || conn.TransactionStarted {
		return
	}
	status := ocpp.StatusAvailable
	if target == Inoperative {
		status = ocpp.StatusUnavailable
	}
	if conn.Status != status {
		s.sendStatusNotification(id, status, ocpp.ErrorCodeNoError, "")
	}
}

func handleUnlockConnector(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.UnlockConnectorRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}
	conn, ok := s.Connectors[req.ConnectorId]
	if !ok {
		return ocpp.UnlockConnectorResponse{Status: ocpp.UnlockNotSupported}, nil
	}
	if conn.TransactionStarted {
		return ocpp.UnlockConnectorResponse{Status: ocpp.UnlockOngoingAuthorizedTransaction}, nil
	}
	return ocpp.UnlockConnectorResponse{Status: ocpp.UnlockUnlocked}, nil
}

func handleGetConfiguration(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.GetConfigurationRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}
	found, unknown := s.ConfigStore.GetAll(req.Key)
	return ocpp.GetConfigurationResponse{ConfigurationKey: found, UnknownKey: unknown}, nil
}

func handleChangeConfiguration(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.ChangeConfigurationRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}
	if err := s.ConfigStore.Set(req.Key, req.Value); err != nil {
		return ocpp.ChangeConfigurationResponse{Status: ocpp.ConfigurationNotSupported}, nil
	}
	if req.Key == "HeartbeatInterval" {
		s.applyHeartbeatIntervalLocked()
	}
	return ocpp.ChangeConfigurationResponse{Status: ocpp.ConfigurationAccepted}, nil
}

func handleSetChargingProfile(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.SetChargingProfileRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}
	conn, ok := s.Connectors[req.ConnectorId]
	if !ok {
		return ocpp.SetChargingProfileResponse{Status: ocpp.ConfigurationRejected}, nil
	}
	conn.ChargingProfiles = append(conn.ChargingProfiles, req.CsChargingProfiles)
	return ocpp.SetChargingProfileResponse{Status: ocpp.ConfigurationAccepted}, nil
}

func handleClearChargingProfile(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.ClearChargingProfileRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}

	cleared := false
	for id, conn := range s.Connectors {
		if req.ConnectorId != nil && *req.ConnectorId != id {
			continue
		}
		kept := conn.ChargingProfiles[:0]
		for _, p := range conn.ChargingProfiles {
			if chargingProfileMatches(p, req) {
				cleared = true
				continue
			}
			kept = append(kept, p)
		}
		conn.ChargingProfiles = kept
	}

	if !cleared {
		return ocpp.ClearChargingProfileResponse{Status: ocpp.ClearChargingProfileUnknown}, nil
	}
	return ocpp.ClearChargingProfileResponse{Status: ocpp.ClearChargingProfileAccepted}, nil
}

func chargingProfileMatches(p ocpp.ChargingProfile, req ocpp.ClearChargingProfileRequest) bool {
	if req.Id != nil && *req.Id != p.ChargingProfileId {
		return false
	}
	if req.ChargingProfilePurpose != nil && *req.ChargingProfilePurpose != p.ChargingProfilePurpose {
		return false
	}
	if req.StackLevel != nil && *req.StackLevel != p.StackLevel {
		return false
	}
	return true
}

func handleRemoteStartTransaction(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.RemoteStartTransactionRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}

	connID := 0
	if req.ConnectorId != nil {
		connID = *req.ConnectorId
	} else {
		connID = s.firstAvailableConnector()
	}
	conn, ok := s.Connectors[connID]
	if connID == 0 || !ok || conn.TransactionStarted || conn.Availability != Operative {
		return ocpp.RemoteStartTransactionResponse{Status: ocpp.RemoteStartStopRejected}, nil
	}
	if s.Template.AuthorizeRemoteTxRequests && !s.isAuthorized(req.IdTag) {
		return ocpp.RemoteStartTransactionResponse{Status: ocpp.RemoteStartStopRejected}, nil
	}
	if req.ChargingProfile != nil {
		conn.ChargingProfiles = append(conn.ChargingProfiles, *req.ChargingProfile)
	}

	go s.startTransactionFlow(connID, req.IdTag)
	return ocpp.RemoteStartTransactionResponse{Status: ocpp.RemoteStartStopAccepted}, nil
}

func handleRemoteStopTransaction(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.RemoteStopTransactionRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}
	for id, conn := range s.Connectors {
		if id == 0 || !conn.TransactionStarted || conn.TransactionId != req.TransactionId {
			continue
		}
		go s.stopTransactionFlow(id, ocpp.ReasonRemote)
		return ocpp.RemoteStopTransactionResponse{Status: ocpp.RemoteStartStopAccepted}, nil
	}
	return ocpp.RemoteStopTransactionResponse{Status: ocpp.RemoteStartStopRejected}, nil
}

// handleGetDiagnostics simulates an upload: Uploading -> Uploaded, each
// reported via DiagnosticsStatusNotification.
func handleGetDiagnostics(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.GetDiagnosticsRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}
	fileName := "diagnostics-" + s.HashID + ".zip"
	go s.simulateDiagnosticsUpload()
	return ocpp.GetDiagnosticsResponse{FileName: fileName}, nil
}

// handleTriggerMessage simulates the requested message via
// sendTriggeredMessage; only some triggered Calls bypass normal admission
// (see sendTriggeredMessage).
func handleTriggerMessage(s *Station, raw json.RawMessage) (interface{}, error) {
	var req ocpp.TriggerMessageRequest
	if err := unmarshalPayload(raw, &req); err != nil {
		return nil, err
	}

	switch req.RequestedMessage {
	case ocpp.TriggerBootNotification, ocpp.TriggerHeartbeat, ocpp.TriggerMeterValues, ocpp.TriggerStatusNotification, ocpp.TriggerDiagnosticsStatusNotif:
		go s.sendTriggeredMessage(req.RequestedMessage, req.ConnectorId)
		return ocpp.TriggerMessageResponse{Status: ocpp.TriggerAccepted}, nil
	default:
		return ocpp.TriggerMessageResponse{Status: ocpp.TriggerNotImplemented}, nil
	}
}

func (s *Station) firstAvailableConnector() int {
	for id, conn := range s.Connectors {
		if id != 0 && !conn.TransactionStarted && conn.Availability == Operative {
			return id
		}
	}
	return 0
}

func (s *Station) isAuthorized(idTag string) bool {
	if s.authCache != nil {
		if status, ok := s.authCache.Get(idTag); ok {
			return status == string(ocpp.AuthorizationAccepted)
		}
	}
	for _, tag := range s.AuthList {
		if tag == idTag {
			return true
		}
	}
	return len(s.AuthList) == 0
}

func (s *Station) applyHeartbeatIntervalLocked() {
	kv, ok := s.ConfigStore.Get("HeartbeatInterval")
	if !ok || kv.Value == nil {
		return
	}
	seconds, err := strconv.Atoi(*kv.Value)
	if err != nil || seconds <= 0 {
		return
	}
	s.heartbeatInterval = time.Duration(seconds) * time.Second
	s.restartHeartbeatTimer()
}
