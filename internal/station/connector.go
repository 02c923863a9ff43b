package station

import (
	"github.com/evfleet/station-simulator/internal/ocpp"
)

// Availability is a connector's operator-controlled availability
// (ChangeAvailability request/response vocabulary), distinct from its
// reported ChargePointStatus.
type Availability string

const (
	Operative   Availability = "Operative"
	Inoperative Availability = "Inoperative"
)

// Connector is one physical or logical charge point on a station; id 0
// denotes the station itself.
type Connector struct {
	ID           int
	Availability Availability
	Status       ocpp.ChargePointStatus
	ErrorCode    ocpp.ChargePointErrorCode

	TransactionStarted bool
	TransactionId      int
	IdTag              string

	EnergyRegister            int64 // cumulative, Wh
	TransactionEnergyRegister int64 // per-transaction, Wh

	NumberOfPhases   int
	PhaseRotation    string
	ChargingProfiles []ocpp.ChargingProfile

	meterValuesStop chan struct{}
}

// NewConnector builds a Connector in its initial Operative/Available state.
func NewConnector(id int, numberOfPhases int) *Connector {
	return &Connector{
		ID:               id,
		Availability:     Operative,
		Status:           ocpp.StatusAvailable,
		ErrorCode:        ocpp.ErrorCodeNoError,
		NumberOfPhases:   numberOfPhases,
		ChargingProfiles: []ocpp.ChargingProfile{},
	}
}

// startTransaction records a new active transaction, satisfying the
// invariant that TransactionStarted implies a non-zero TransactionId.
func (c *Connector) startTransaction(transactionId int, idTag string) {
	c.TransactionStarted = true
	c.TransactionId = transactionId
	c.IdTag = idTag
	c.TransactionEnergyRegister = 0
}

// stopTransaction clears the active transaction and zeros the
// per-transaction register.
func (c *Connector) stopTransaction() {
	c.TransactionStarted = false
	c.TransactionId = 0
	c.IdTag = ""
	c.TransactionEnergyRegister = 0
}

// addEnergy advances both energy registers by the given Wh increment. If
// either register is negative it is zeroed first.
func (c *Connector) addEnergy(deltaWh int64) {
	if c.EnergyRegister < 0 {
		c.EnergyRegister = 0
	}
	if c.TransactionEnergyRegister < 0 {
		c.TransactionEnergyRegister = 0
	}
	c.EnergyRegister += deltaWh
	c.TransactionEnergyRegister += deltaWh
}

// validStatusTransitions is the OCPP 1.6 connector status transition
// table. It governs the simulator's own status reporting, not a real
// charge controller's.
var validStatusTransitions = map[ocpp.ChargePointStatus]map[ocpp.ChargePointStatus]bool{
	ocpp.StatusAvailable: {
		ocpp.StatusPreparing:   true,
		ocpp.StatusCharging:    true,
		ocpp.StatusReserved:    true,
		ocpp.StatusUnavailable: true,
		ocpp.StatusFaulted:     true,
	},
	ocpp.StatusPreparing: {
		ocpp.StatusAvailable:   true,
		ocpp.StatusCharging:    true,
		ocpp.StatusFinishing:   true,
		ocpp.StatusUnavailable: true,
		ocpp.StatusFaulted:     true,
	},
	ocpp.StatusCharging: {
		ocpp.StatusSuspendedEVSE: true,
		ocpp.StatusSuspendedEV:   true,
		ocpp.StatusFinishing:     true,
		ocpp.StatusUnavailable:   true,
		ocpp.StatusFaulted:       true,
	},
	ocpp.StatusSuspendedEVSE: {
		ocpp.StatusCharging:    true,
		ocpp.StatusFinishing:   true,
		ocpp.StatusUnavailable: true,
		ocpp.StatusFaulted:     true,
	},
	ocpp.StatusSuspendedEV: {
		ocpp.StatusCharging:    true,
		ocpp.StatusFinishing:   true,
		ocpp.StatusUnavailable: true,
		ocpp.StatusFaulted:     true,
	},
	ocpp.StatusFinishing: {
		ocpp.StatusAvailable:   true,
		ocpp.StatusUnavailable: true,
		ocpp.StatusFaulted:     true,
	},
	ocpp.StatusReserved: {
		ocpp.StatusAvailable:   true,
		ocpp.StatusPreparing:   true,
		ocpp.StatusUnavailable: true,
		ocpp.StatusFaulted:     true,
	},
	ocpp.StatusUnavailable: {
		ocpp.StatusAvailable: true,
		ocpp.StatusFaulted:   true,
	},
	ocpp.StatusFaulted: {
		ocpp.StatusAvailable:   true,
		ocpp.StatusUnavailable: true,
	},
}

// isValidStatusTransition reports whether moving from -> to is allowed. The
// identity transition is always allowed (re-reporting the same status).
func isValidStatusTransition(from, to ocpp.ChargePointStatus) bool {
	if from == to {
		return true
	}
	if from == "" {
		return true
	}
	return validStatusTransitions[from][to]
}
