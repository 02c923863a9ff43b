package station

import (
	"encoding/json"
	"testing"

	"github.com/evfleet/station-simulator/internal/ocpp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callHandler(t *testing.T, s *Station, action ocpp.Action, req interface{}) (json.RawMessage, error) {
	t.Helper()
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	h, ok := handlers[action]
	require.True(t, ok, "no handler registered for %s", action)
	resp, err := h(s, raw)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	return out, nil
}

func TestHandleUnlockConnectorRejectsOngoingTransaction(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())
	s.Connectors[1].startTransaction(1, "tag1")

	raw, err := callHandler(t, s, ocpp.ActionUnlockConnector, ocpp.UnlockConnectorRequest{ConnectorId: 1})
	require.NoError(t, err)
	var resp ocpp.UnlockConnectorResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp.UnlockOngoingAuthorizedTransaction, resp.Status)
}

func TestHandleUnlockConnectorUnlocksIdleConnector(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())

	raw, err := callHandler(t, s, ocpp.ActionUnlockConnector, ocpp.UnlockConnectorRequest{ConnectorId: 1})
	require.NoError(t, err)
	var resp ocpp.UnlockConnectorResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp.UnlockUnlocked, resp.Status)
}

func TestHandleGetConfigurationReturnsUnknownKeys(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())

	raw, err := callHandler(t, s, ocpp.ActionGetConfiguration, ocpp.GetConfigurationRequest{Key: []string{"NumberOfConnectors", "NoSuchKey"}})
	require.NoError(t, err)
	var resp ocpp.GetConfigurationResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Len(t, resp.ConfigurationKey, 1)
	assert.Equal(t, []string{"NoSuchKey"}, resp.UnknownKey)
}

func TestHandleChangeConfigurationRejectsReadonlyKey(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())

	raw, err := callHandler(t, s, ocpp.ActionChangeConfiguration, ocpp.ChangeConfigurationRequest{Key: "NumberOfConnectors", Value: "5"})
	require.NoError(t, err)
	var resp ocpp.ChangeConfigurationResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp.ConfigurationNotSupported, resp.Status)
}

func TestHandleChangeConfigurationAcceptsKnownKey(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())
	s.ConfigStore.Seed("MeterValueSampleInterval", "60", false)

	raw, err := callHandler(t, s, ocpp.ActionChangeConfiguration, ocpp.ChangeConfigurationRequest{Key: "MeterValueSampleInterval", Value: "30"})
	require.NoError(t, err)
	var resp ocpp.ChangeConfigurationResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp.ConfigurationAccepted, resp.Status)

	kv, ok := s.ConfigStore.Get("MeterValueSampleInterval")
	require.True(t, ok)
	assert.Equal(t, "30", *kv.Value)
}

func TestHandleSetAndClearChargingProfile(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())

	profile := ocpp.ChargingProfile{
		ChargingProfileId:      7,
		StackLevel:             1,
		ChargingProfilePurpose: ocpp.PurposeTxProfile,
		ChargingSchedule: ocpp.ChargingSchedule{
			ChargingRateUnit: ocpp.ChargingRateW,
			ChargingSchedulePeriod: []ocpp.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 5000},
			},
		},
	}
	_, err := callHandler(t, s, ocpp.ActionSetChargingProfile, ocpp.SetChargingProfileRequest{ConnectorId: 1, CsChargingProfiles: profile})
	require.NoError(t, err)
	require.Len(t, s.Connectors[1].ChargingProfiles, 1)

	id := 7
	raw, err := callHandler(t, s, ocpp.ActionClearChargingProfile, ocpp.ClearChargingProfileRequest{Id: &id})
	require.NoError(t, err)
	var resp ocpp.ClearChargingProfileResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp.ClearChargingProfileAccepted, resp.Status)
	assert.Empty(t, s.Connectors[1].ChargingProfiles)
}

func TestHandleClearChargingProfileReturnsUnknownWhenNoMatch(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())
	id := 99
	raw, err := callHandler(t, s, ocpp.ActionClearChargingProfile, ocpp.ClearChargingProfileRequest{Id: &id})
	require.NoError(t, err)
	var resp ocpp.ClearChargingProfileResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp.ClearChargingProfileUnknown, resp.Status)
}

func TestHandleChangeAvailabilityWholeStation(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())
	_, err := callHandler(t, s, ocpp.ActionChangeAvailability, ocpp.ChangeAvailabilityRequest{ConnectorId: 0, Type: ocpp.AvailabilityInoperative})
	require.NoError(t, err)
	for id, conn := range s.Connectors {
		if id == 0 {
			continue
		}
		assert.Equal(t, Inoperative, conn.Availability)
	}
}

func TestHandleChangeAvailabilityScheduledDuringTransaction(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())
	s.Connectors[1].startTransaction(5, "tag")

	raw, err := callHandler(t, s, ocpp.ActionChangeAvailability, ocpp.ChangeAvailabilityRequest{ConnectorId: 1, Type: ocpp.AvailabilityInoperative})
	require.NoError(t, err)
	var resp ocpp.ChangeAvailabilityResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp.AvailabilityStatusScheduled, resp.Status)
}

func TestHandleTriggerMessageNotImplementedForUnknownTrigger(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())
	raw, err := callHandler(t, s, ocpp.ActionTriggerMessage, ocpp.TriggerMessageRequest{RequestedMessage: ocpp.MessageTrigger("SomethingElse")})
	require.NoError(t, err)
	var resp ocpp.TriggerMessageResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp.TriggerNotImplemented, resp.Status)
}

func TestHandleClearCacheWithoutCacheRejects(t *testing.T) {
	s := newTestStation(t, testTemplate(), newFakeTransport())
	raw, err := callHandler(t, s, ocpp.ActionClearCache, ocpp.ClearCacheRequest{})
	require.NoError(t, err)
	var resp ocpp.ClearCacheResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, ocpp.ClearCacheRejected, resp.Status)
}
