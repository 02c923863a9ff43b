package station

import (
	"time"

	"github.com/evfleet/station-simulator/internal/ocpp"
)

// EventKind names a station->supervisor event, consumed by the supervisor's
// collectors and the external event bridge.
type EventKind string

const (
	EventStarted               EventKind = "started"
	EventStopped                EventKind = "stopped"
	EventUpdated                EventKind = "updated"
	EventPerformanceStatistics  EventKind = "performanceStatistics"
)

// ConnectorSnapshot is the read-only view of a Connector emitted in events.
type ConnectorSnapshot struct {
	ID                 int                     `json:"id"`
	Availability       Availability            `json:"availability"`
	Status             ocpp.ChargePointStatus  `json:"status"`
	TransactionStarted bool                    `json:"transactionStarted"`
	TransactionId      int                     `json:"transactionId,omitempty"`
	EnergyRegisterWh   int64                   `json:"energyRegisterWh"`
}

// StationInfoSnapshot is the read-only identity view emitted in events.
type StationInfoSnapshot struct {
	StationId string `json:"stationId"`
	HashId    string `json:"hashId"`
}

// StatusEventData is the payload of started/stopped/updated events.
type StatusEventData struct {
	StationInfo              StationInfoSnapshot                `json:"stationInfo"`
	Connectors               []ConnectorSnapshot                 `json:"connectors"`
	WSState                  string                               `json:"wsState"`
	BootNotificationResponse *ocpp.BootNotificationResponse       `json:"bootNotificationResponse,omitempty"`
}

// PerformanceStatisticsData is the payload of a performanceStatistics event.
type PerformanceStatisticsData struct {
	StationId          string    `json:"stationId"`
	MessagesSent       int64     `json:"messagesSent"`
	MessagesReceived   int64     `json:"messagesReceived"`
	TransactionsActive int       `json:"transactionsActive"`
	Timestamp          time.Time `json:"timestamp"`
}

// Event is one entry on a station's outbound event channel, consumed by the
// supervisor's event pump (registration/connection gauges) and the notify
// Kafka producer.
type Event struct {
	Kind      EventKind
	StationId string
	Data      interface{}
}

// snapshotConnectors builds the ConnectorSnapshot slice for event payloads.
func snapshotConnectors(connectors map[int]*Connector) []ConnectorSnapshot {
	out := make([]ConnectorSnapshot, 0, len(connectors))
	for id := 0; id < len(connectors)+1; id++ {
		c, ok := connectors[id]
		if !ok {
			continue
		}
		out = append(out, ConnectorSnapshot{
			ID:                 c.ID,
			Availability:       c.Availability,
			Status:             c.Status,
			TransactionStarted: c.TransactionStarted,
			TransactionId:      c.TransactionId,
			EnergyRegisterWh:   c.EnergyRegister,
		})
	}
	return out
}
