// Package events defines the notifications the charge point session
// publishes while it runs.
package events

import (
	"time"

	"github.com/evsim/cpsim/core/ocpp"
	"github.com/evsim/cpsim/internal/eventbus"
)

// ConnectionState is the reconnection supervisor's state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "Disconnected"
	StateConnecting   ConnectionState = "Connecting"
	StateConnected    ConnectionState = "Connected"
	StateGivenUp      ConnectionState = "GivenUp"
)

// ConnectionEvent reports a supervisor state change.
type ConnectionEvent struct {
	State   ConnectionState
	Attempt int
	Err     error
	At      time.Time
}

// BootEvent reports the BootNotification outcome.
type BootEvent struct {
	Status   ocpp.RegistrationStatus
	Interval int
	At       time.Time
}

// TransactionEvent reports a transaction start or stop.
type TransactionEvent struct {
	TransactionID int
	ConnectorID   int
	IdTag         string
	Started       bool
	MeterWh       int
	At            time.Time
}

// StatusEvent reports a connector status change.
type StatusEvent struct {
	ConnectorID int
	Status      ocpp.ChargePointStatus
	At          time.Time
}

// LimitEvent reports a recomputed effective charging limit.
type LimitEvent struct {
	ConnectorID int
	PowerW      *float64
	CurrentA    *float64
	At          time.Time
}

// SampleEvent carries one emitted MeterValues report.
type SampleEvent struct {
	ConnectorID   int
	TransactionID *int
	Values        []ocpp.SampledValue
	At            time.Time
}

// Event is any of the types above.
type Event any

// Bus carries session events to subscribers.
type Bus = eventbus.Bus[Event]

// NewBus creates an event bus with the default buffer.
func NewBus() *Bus { return eventbus.New[Event](0) }
