package station

import "context"

// TransportEventKind discriminates the events a Transport reports to its
// owning Station.
type TransportEventKind int

const (
	TransportOpened TransportEventKind = iota
	TransportClosed
	TransportMessage
)

// TransportEvent is one notification from the transport's connection
// lifecycle: an open, a close (with its wire
// close code), or an inbound frame.
type TransportEvent struct {
	Kind      TransportEventKind
	Data      []byte
	CloseCode int
}

// Transport is the WebSocket client connection a Station drives outbound
// frames through and receives lifecycle/inbound events from. Reconnect
// policy (bounded retries, optional exponential backoff) lives behind this
// interface; the station only reacts to Opened/Closed events.
// internal/transport/ws.Client implements this interface; the station
// engine depends only on the interface so it can be exercised against a
// fake in tests.
type Transport interface {
	// Start begins dialing (and, internally, reconnecting) in the
	// background. It returns immediately; lifecycle notifications arrive
	// on Events().
	Start(ctx context.Context)
	// IsOpen reports whether the connection can currently accept a Send.
	IsOpen() bool
	// Send writes one frame. It may return an error if the socket write
	// fails even though IsOpen() was true a moment earlier.
	Send(data []byte) error
	// Close closes the connection with the given WebSocket close code and
	// stops any further reconnect attempts.
	Close(code int, reason string) error
	// Events is the channel of lifecycle and inbound-message notifications.
	Events() <-chan TransportEvent
}
