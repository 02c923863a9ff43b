package station

import (
	"encoding/json"

	"github.com/evfleet/station-simulator/internal/ocpp"
)

// This file is the public surface other packages (internal/atg,
// internal/supervisor, internal/notify) drive a Station through, instead
// of reaching into its actor-owned fields directly. Every call here is
// safe from any goroutine: reads are marshalled onto the actor loop via
// Enqueue, and the transaction helpers are the same ones
// RemoteStartTransaction/RemoteStopTransaction use.

// ConnectorState is a read-only snapshot of one connector, id 0 excluded.
type ConnectorState struct {
	ID                 int
	Available          bool
	TransactionStarted bool
	TransactionID      int
}

// Snapshot returns the current state of every non-zero connector. Blocks
// until the actor loop has processed the request, or the station has
// stopped (in which case it returns nil).
func (s *Station) Snapshot() []ConnectorState {
	ch := make(chan []ConnectorState, 1)
	s.Enqueue(func(st *Station) {
		out := make([]ConnectorState, 0, len(st.Connectors))
		for id, c := range st.Connectors {
			if id == 0 {
				continue
			}
			out = append(out, ConnectorState{
				ID:                 id,
				Available:          c.Availability == Operative,
				TransactionStarted: c.TransactionStarted,
				TransactionID:      c.TransactionId,
			})
		}
		ch <- out
	})
	select {
	case out := <-ch:
		return out
	case <-s.stopped:
		return nil
	}
}

// StartTransaction runs the Authorize -> StartTransaction exchange for
// connectorID, the same flow RemoteStartTransaction drives.
// It blocks until the exchange completes; callers (the ATG) run it from
// their own goroutine.
func (s *Station) StartTransaction(connectorID int, idTag string) {
	s.startTransactionFlow(connectorID, idTag)
}

// StopTransaction ends connectorID's active transaction, if any.
func (s *Station) StopTransaction(connectorID int, reason ocpp.Reason) {
	s.stopTransactionFlow(connectorID, reason)
}

// IsAuthorized reports whether idTag is usable without a fresh Authorize
// Call, per the local authorization list/cache.
func (s *Station) IsAuthorized(idTag string) bool {
	ch := make(chan bool, 1)
	s.Enqueue(func(st *Station) { ch <- st.isAuthorized(idTag) })
	select {
	case ok := <-ch:
		return ok
	case <-s.stopped:
		return false
	}
}

// ATGTemplate returns the station template's Automatic Transaction
// Generator settings, or nil if the template does not configure one.
func (s *Station) ATGTemplate() *ATGTemplate {
	ch := make(chan *ATGTemplate, 1)
	s.Enqueue(func(st *Station) { ch <- st.Template.ATG })
	select {
	case atg := <-ch:
		return atg
	case <-s.stopped:
		return nil
	}
}

// AuthorizationTags returns the station's local id-tag authorization list.
// The slice is fixed at construction time and safe to read from any
// goroutine without synchronization.
func (s *Station) AuthorizationTags() []string {
	return s.AuthList
}

// InjectCall routes action/payload through the same dispatch table an
// inbound wire Call would use, as though the central system had sent it.
// Used by internal/notify's remote-command bridge (RemoteStartTransaction,
// RemoteStopTransaction, TriggerMessage) so the supervisor never needs its
// own copy of the handler logic.
func (s *Station) InjectCall(action ocpp.Action, payload json.RawMessage) {
	s.Enqueue(func(st *Station) {
		st.dispatchCall(&ocpp.Frame{
			Type:      ocpp.Call,
			MessageId: ocpp.NewMessageId(),
			Action:    action,
			Payload:   payload,
		})
	})
}

// Done returns a channel closed once the station's actor loop has fully
// stopped, used by long-running external helpers (the ATG) to exit
// promptly on station shutdown.
func (s *Station) Done() <-chan struct{} {
	return s.stopped
}
