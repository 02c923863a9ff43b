// Package ocpp holds the OCPP 1.6-J dialect: wire types, the frame codec,
// the error taxonomy, and the schema validator. It is intentionally
// dialect-scoped: a future 2.0.1 dialect would live in a sibling package
// behind the same Validate interface the station engine consumes.
package ocpp

import "time"

// Action identifies an OCPP command by name.
type Action string

const (
	ActionAuthorize                     Action = "Authorize"
	ActionBootNotification              Action = "BootNotification"
	ActionChangeAvailability            Action = "ChangeAvailability"
	ActionChangeConfiguration           Action = "ChangeConfiguration"
	ActionClearCache                    Action = "ClearCache"
	ActionClearChargingProfile          Action = "ClearChargingProfile"
	ActionDataTransfer                  Action = "DataTransfer"
	ActionDiagnosticsStatusNotification Action = "DiagnosticsStatusNotification"
	ActionGetConfiguration              Action = "GetConfiguration"
	ActionGetDiagnostics                Action = "GetDiagnostics"
	ActionHeartbeat                     Action = "Heartbeat"
	ActionMeterValues                   Action = "MeterValues"
	ActionRemoteStartTransaction        Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction         Action = "RemoteStopTransaction"
	ActionReset                         Action = "Reset"
	ActionSetChargingProfile            Action = "SetChargingProfile"
	ActionStartTransaction              Action = "StartTransaction"
	ActionStatusNotification            Action = "StatusNotification"
	ActionStopTransaction               Action = "StopTransaction"
	ActionTriggerMessage                Action = "TriggerMessage"
	ActionUnlockConnector               Action = "UnlockConnector"
)

// ChargePointStatus is the OCPP 1.6 connector status vocabulary.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

// ChargePointErrorCode is the OCPP 1.6 connector error-code vocabulary.
type ChargePointErrorCode string

const (
	ErrorCodeConnectorLockFailure ChargePointErrorCode = "ConnectorLockFailure"
	ErrorCodeEVCommunicationError ChargePointErrorCode = "EVCommunicationError"
	ErrorCodeGroundFailure        ChargePointErrorCode = "GroundFailure"
	ErrorCodeHighTemperature      ChargePointErrorCode = "HighTemperature"
	ErrorCodeInternalError        ChargePointErrorCode = "InternalError"
	ErrorCodeLocalListConflict    ChargePointErrorCode = "LocalListConflict"
	ErrorCodeNoError              ChargePointErrorCode = "NoError"
	ErrorCodeOtherError           ChargePointErrorCode = "OtherError"
	ErrorCodeOverCurrentFailure   ChargePointErrorCode = "OverCurrentFailure"
	ErrorCodeOverVoltage          ChargePointErrorCode = "OverVoltage"
	ErrorCodePowerMeterFailure    ChargePointErrorCode = "PowerMeterFailure"
	ErrorCodePowerSwitchFailure   ChargePointErrorCode = "PowerSwitchFailure"
	ErrorCodeReaderFailure        ChargePointErrorCode = "ReaderFailure"
	ErrorCodeResetFailure         ChargePointErrorCode = "ResetFailure"
	ErrorCodeUnderVoltage         ChargePointErrorCode = "UnderVoltage"
	ErrorCodeWeakSignal           ChargePointErrorCode = "WeakSignal"
)

// RegistrationStatus is the status carried by a BootNotification response.
type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

// AuthorizationStatus is the status carried in an IdTagInfo.
type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// ResetType distinguishes a soft vs hard Reset request.
type ResetType string

const (
	ResetHard ResetType = "Hard"
	ResetSoft ResetType = "Soft"
)

// AvailabilityType is the requested availability in ChangeAvailability.
type AvailabilityType string

const (
	AvailabilityInoperative AvailabilityType = "Inoperative"
	AvailabilityOperative   AvailabilityType = "Operative"
)

// AvailabilityStatus is the response status to ChangeAvailability.
type AvailabilityStatus string

const (
	AvailabilityStatusAccepted  AvailabilityStatus = "Accepted"
	AvailabilityStatusRejected  AvailabilityStatus = "Rejected"
	AvailabilityStatusScheduled AvailabilityStatus = "Scheduled"
)

// ConfigurationStatus is the response status to ChangeConfiguration.
type ConfigurationStatus string

const (
	ConfigurationAccepted       ConfigurationStatus = "Accepted"
	ConfigurationRejected       ConfigurationStatus = "Rejected"
	ConfigurationRebootRequired ConfigurationStatus = "RebootRequired"
	ConfigurationNotSupported   ConfigurationStatus = "NotSupported"
)

// ClearCacheStatus is the response status to ClearCache.
type ClearCacheStatus string

const (
	ClearCacheAccepted ClearCacheStatus = "Accepted"
	ClearCacheRejected ClearCacheStatus = "Rejected"
)

// UnlockStatus is the response status to UnlockConnector.
type UnlockStatus string

const (
	UnlockUnlocked                   UnlockStatus = "Unlocked"
	UnlockUnlockFailed               UnlockStatus = "UnlockFailed"
	UnlockNotSupported               UnlockStatus = "NotSupported"
	UnlockOngoingAuthorizedTransaction UnlockStatus = "OngoingAuthorizedTransaction"
)

// Reason is the StopTransaction.reason vocabulary.
type Reason string

const (
	ReasonEmergencyStop  Reason = "EmergencyStop"
	ReasonEVDisconnected Reason = "EVDisconnected"
	ReasonHardReset      Reason = "HardReset"
	ReasonLocal          Reason = "Local"
	ReasonOther          Reason = "Other"
	ReasonPowerLoss      Reason = "PowerLoss"
	ReasonReboot         Reason = "Reboot"
	ReasonRemote         Reason = "Remote"
	ReasonSoftReset      Reason = "SoftReset"
	ReasonUnlockCommand  Reason = "UnlockCommand"
	ReasonDeAuthorized   Reason = "DeAuthorized"
)

// RemoteStartStopStatus is the response status to RemoteStart/StopTransaction.
type RemoteStartStopStatus string

const (
	RemoteStartStopAccepted RemoteStartStopStatus = "Accepted"
	RemoteStartStopRejected RemoteStartStopStatus = "Rejected"
)

// TriggerMessageStatus is the response status to TriggerMessage.
type TriggerMessageStatus string

const (
	TriggerAccepted       TriggerMessageStatus = "Accepted"
	TriggerRejected       TriggerMessageStatus = "Rejected"
	TriggerNotImplemented TriggerMessageStatus = "NotImplemented"
)

// MessageTrigger names the command a TriggerMessage request asks for.
type MessageTrigger string

const (
	TriggerBootNotification       MessageTrigger = "BootNotification"
	TriggerDiagnosticsStatusNotif MessageTrigger = "DiagnosticsStatusNotification"
	TriggerHeartbeat              MessageTrigger = "Heartbeat"
	TriggerMeterValues            MessageTrigger = "MeterValues"
	TriggerStatusNotification     MessageTrigger = "StatusNotification"
)

// ChargingRateUnit is the unit a ChargingSchedule's limits are expressed in.
type ChargingRateUnit string

const (
	ChargingRateW ChargingRateUnit = "W"
	ChargingRateA ChargingRateUnit = "A"
)

// ChargingProfilePurpose names where in the stack a profile applies.
type ChargingProfilePurpose string

const (
	PurposeChargePointMaxProfile ChargingProfilePurpose = "ChargePointMaxProfile"
	PurposeTxDefaultProfile      ChargingProfilePurpose = "TxDefaultProfile"
	PurposeTxProfile             ChargingProfilePurpose = "TxProfile"
)

// DateTime marshals as RFC3339, matching OCPP-J's wire format for timestamps.
type DateTime struct {
	time.Time
}

// NewDateTime wraps a time.Time for OCPP wire marshaling.
func NewDateTime(t time.Time) DateTime { return DateTime{Time: t} }

// MarshalJSON implements json.Marshaler.
func (dt DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + dt.Time.UTC().Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (dt *DateTime) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" {
		return nil
	}
	if len(str) >= 2 {
		str = str[1 : len(str)-1]
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	dt.Time = t
	return nil
}

// IdTagInfo is the authorization verdict attached to several responses.
type IdTagInfo struct {
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag *string             `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	Status      AuthorizationStatus `json:"status" validate:"required,oneof=Accepted Blocked Expired Invalid ConcurrentTx"`
}

// KeyValue is one entry of a GetConfiguration response / ConfigurationKeyStore.
type KeyValue struct {
	Key      string  `json:"key" validate:"required,max=50"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty" validate:"omitempty,max=500"`
}

// ReadingContext qualifies why a SampledValue was produced.
type ReadingContext string

const (
	ContextInterruptionBegin ReadingContext = "Interruption.Begin"
	ContextInterruptionEnd   ReadingContext = "Interruption.End"
	ContextSampleClock       ReadingContext = "Sample.Clock"
	ContextSamplePeriodic    ReadingContext = "Sample.Periodic"
	ContextTransactionBegin  ReadingContext = "Transaction.Begin"
	ContextTransactionEnd    ReadingContext = "Transaction.End"
	ContextTrigger           ReadingContext = "Trigger"
	ContextOther             ReadingContext = "Other"
)

// ValueFormat is the encoding of a SampledValue.
type ValueFormat string

const (
	FormatRaw        ValueFormat = "Raw"
	FormatSignedData ValueFormat = "SignedData"
)

// Measurand names the physical quantity a SampledValue reports.
type Measurand string

const (
	MeasurandCurrentExport                Measurand = "Current.Export"
	MeasurandCurrentImport                Measurand = "Current.Import"
	MeasurandCurrentOffered               Measurand = "Current.Offered"
	MeasurandEnergyActiveExportRegister   Measurand = "Energy.Active.Export.Register"
	MeasurandEnergyActiveImportRegister   Measurand = "Energy.Active.Import.Register"
	MeasurandEnergyReactiveExportRegister Measurand = "Energy.Reactive.Export.Register"
	MeasurandEnergyReactiveImportRegister Measurand = "Energy.Reactive.Import.Register"
	MeasurandPowerActiveExport            Measurand = "Power.Active.Export"
	MeasurandPowerActiveImport            Measurand = "Power.Active.Import"
	MeasurandPowerOffered                 Measurand = "Power.Offered"
	MeasurandFrequency                    Measurand = "Frequency"
	MeasurandRPM                          Measurand = "RPM"
	MeasurandSoC                          Measurand = "SoC"
	MeasurandTemperature                  Measurand = "Temperature"
	MeasurandVoltage                      Measurand = "Voltage"
)

// Phase names an AC phase (or phase pair) a SampledValue was measured on.
type Phase string

const (
	PhaseL1   Phase = "L1"
	PhaseL2   Phase = "L2"
	PhaseL3   Phase = "L3"
	PhaseN    Phase = "N"
	PhaseL1N  Phase = "L1-N"
	PhaseL2N  Phase = "L2-N"
	PhaseL3N  Phase = "L3-N"
	PhaseL1L2 Phase = "L1-L2"
	PhaseL2L3 Phase = "L2-L3"
	PhaseL3L1 Phase = "L3-L1"
)

// Location names where on the charging circuit a SampledValue was measured.
type Location string

const (
	LocationBody   Location = "Body"
	LocationCable  Location = "Cable"
	LocationEV     Location = "EV"
	LocationInlet  Location = "Inlet"
	LocationOutlet Location = "Outlet"
)

// UnitOfMeasure is the physical unit of a SampledValue.
type UnitOfMeasure string

const (
	UnitWh      UnitOfMeasure = "Wh"
	UnitKWh     UnitOfMeasure = "kWh"
	UnitW       UnitOfMeasure = "W"
	UnitKW      UnitOfMeasure = "kW"
	UnitA       UnitOfMeasure = "A"
	UnitV       UnitOfMeasure = "V"
	UnitCelsius UnitOfMeasure = "Celsius"
	UnitPercent UnitOfMeasure = "Percent"
)

// SampledValue is one measurand reading inside a MeterValue.
type SampledValue struct {
	Value     string          `json:"value" validate:"required"`
	Context   *ReadingContext `json:"context,omitempty"`
	Format    *ValueFormat    `json:"format,omitempty"`
	Measurand *Measurand      `json:"measurand,omitempty"`
	Phase     *Phase          `json:"phase,omitempty"`
	Location  *Location       `json:"location,omitempty"`
	Unit      *UnitOfMeasure  `json:"unit,omitempty"`
}

// MeterValue is a timestamped group of SampledValue readings.
type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

// ChargingSchedulePeriod is one segment of a ChargingSchedule.
type ChargingSchedulePeriod struct {
	StartPeriod  int      `json:"startPeriod" validate:"min=0"`
	Limit        float64  `json:"limit" validate:"min=0"`
	NumberPhases *int     `json:"numberPhases,omitempty"`
}

// ChargingSchedule is a time-bounded sequence of power/current limits.
type ChargingSchedule struct {
	Duration              *int                     `json:"duration,omitempty"`
	StartSchedule         *DateTime                `json:"startSchedule,omitempty"`
	ChargingRateUnit      ChargingRateUnit         `json:"chargingRateUnit" validate:"required,oneof=W A"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1,dive"`
	MinChargingRate       *float64                 `json:"minChargingRate,omitempty"`
}

// ChargingProfile composes by StackLevel (higher wins) on a connector.
type ChargingProfile struct {
	ChargingProfileId      int                    `json:"chargingProfileId"`
	TransactionId          *int                   `json:"transactionId,omitempty"`
	StackLevel             int                    `json:"stackLevel"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose" validate:"required"`
	ChargingProfileKind    string                 `json:"chargingProfileKind"`
	RecurrencyKind         *string                `json:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime              `json:"validFrom,omitempty"`
	ValidTo                *DateTime              `json:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule       `json:"chargingSchedule"`
}
