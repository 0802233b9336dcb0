// Package chain contains the trigger chain core: a periodic timer arms a
// window-mode threshold comparator whose edges drive an indicator pair and
// whose output level gates a transmitter.
//
// This package has NO I/O of its own. Hardware is simulated by calling the
// raise side of System (Advance, Evaluate) and interrupts are serviced by the
// handler side (ServiceTimer, ServiceComparator, ServicePending). Time is
// always injectable: clock ticks for the chain, time.Time for heartbeats.
package chain

import "time"

// Peripheral identifies a trigger source or destination.
type Peripheral string

const (
	Timer0       Peripheral = "TIMER0_CH0"
	Comparator0  Peripheral = "CMP0"
	Transmitter0 Peripheral = "TX0"
)

// Level is the comparator output level.
type Level string

const (
	LevelUnknown Level = ""
	LevelAbove   Level = "ABOVE"
	LevelBelow   Level = "BELOW"
)

// EventType represents an event observed by an interrupt handler.
type EventType string

const (
	EventTimeout     EventType = "TIMEOUT"
	EventRisingEdge  EventType = "RISING_EDGE"
	EventFallingEdge EventType = "FALLING_EDGE"
	EventMissed      EventType = "MISSED_EVENT"
)

// Event is delivered to the Observer after the handler that produced it
// has returned.
type Event struct {
	Tick    uint64
	Type    EventType
	Source  Peripheral
	Level   Level
	InputMV int
	// Dropped is the kind of occurrence that was coalesced (EventMissed only).
	Dropped EventType
}

// EventCounts tracks the number of each event kind since the last reset.
type EventCounts struct {
	Timeouts       int
	Rising         int
	Falling        int
	MissedTimeouts int
	MissedRising   int
	MissedFalling  int
	Transmitted    int
	Dropped        int
}

// Missed returns the total number of coalesced occurrences.
func (c EventCounts) Missed() int {
	return c.MissedTimeouts + c.MissedRising + c.MissedFalling
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
