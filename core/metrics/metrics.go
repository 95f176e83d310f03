// Package metrics defines the observability events of the simulator
// and the sink interfaces that record them.
package metrics

import "time"

// Sample is one emitted meter reading.
type Sample struct {
	ConnectorID int
	Measurand   string
	Phase       string
	Value       float64
	Unit        string
	Time        time.Time
}

// LimitUpdate is a recomputed effective charging limit.
type LimitUpdate struct {
	ConnectorID int
	PowerW      *float64
	CurrentA    *float64
	Time        time.Time
}

// ConnectionUpdate is a supervisor state transition.
type ConnectionUpdate struct {
	State   string
	Attempt int
	Time    time.Time
}

// Sink records meter samples.
type Sink interface {
	RecordSamples(samples []Sample) error
}

// LimitRecorder optionally records limit changes.
type LimitRecorder interface {
	RecordLimit(u LimitUpdate) error
}

// ConnectionRecorder optionally records connection transitions.
type ConnectionRecorder interface {
	RecordConnection(u ConnectionUpdate) error
}

// NopSink drops everything.
type NopSink struct{}

func (NopSink) RecordSamples([]Sample) error            { return nil }
func (NopSink) RecordLimit(LimitUpdate) error           { return nil }
func (NopSink) RecordConnection(ConnectionUpdate) error { return nil }
