package station

import (
	"github.com/evfleet/station-simulator/internal/ocpp"
)

// RegistrationState is the station's view of its central-system
// registration. A BootNotification CallResult sets it; it is also reset to
// Unknown on each transport open, set to Accepted for autoRegister
// templates, and set to Rejected when BootNotification retries run out.
type RegistrationState int

const (
	Unknown RegistrationState = iota
	Pending
	Accepted
	Rejected
)

func (s RegistrationState) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Pending:
		return "Pending"
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	default:
		return "Invalid"
	}
}

// FromRegistrationStatus maps a BootNotificationResponse.Status to the state
// it drives the station into.
func FromRegistrationStatus(status ocpp.RegistrationStatus) RegistrationState {
	switch status {
	case ocpp.RegistrationAccepted:
		return Accepted
	case ocpp.RegistrationPending:
		return Pending
	default:
		return Rejected
	}
}

// sendOptions carries the per-Call options the outbound pipeline accepts.
type sendOptions struct {
	skipBufferingOnError bool
	triggerMessage       bool
}

// admit applies the registration-state admission policy to an outbound Call.
// isResponseFrame is true for CallResult/CallError frames answering an
// inbound Call, which are always admitted regardless of state.
// strictCompliance=false only disables schema validation; it does NOT
// widen this admission policy.
func admit(state RegistrationState, action ocpp.Action, isResponseFrame bool, opts sendOptions) bool {
	if isResponseFrame {
		return true
	}
	switch state {
	case Accepted:
		return true
	case Unknown:
		return action == ocpp.ActionBootNotification
	case Pending:
		return opts.triggerMessage
	case Rejected:
		return false
	default:
		return false
	}
}
