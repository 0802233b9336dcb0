// Package mqtt publishes chain events and carries the gated status line,
// with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/trigger-chain/internal/chain"
)

// Topic is the MQTT topic for comparator edge and timer events.
const Topic = "devices/trigger-chain/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "devices/trigger-chain/system"

// TopicTx is the MQTT topic the gated transmitter writes to.
const TopicTx = "devices/trigger-chain/tx"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a chain event observed at the given time.
	// Returns error if publishing fails (should not crash the process).
	Publish(event chain.Event, at time.Time) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	BootID     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Chain ChainPayload `json:"chain"`
}

// ChainPayload contains the chain event details.
type ChainPayload struct {
	Timestamp string `json:"timestamp"`
	Tick      uint64 `json:"tick"`
	Event     string `json:"event"`
	Source    string `json:"source"`
	Level     string `json:"level"`
	InputMV   int    `json:"input_mv"`
	Dropped   string `json:"dropped,omitempty"`
}

// FormatPayload creates the JSON payload for a chain event.
func FormatPayload(event chain.Event, at time.Time) ([]byte, error) {
	level := string(event.Level)
	if level == "" {
		level = "UNKNOWN"
	}
	payload := Payload{
		Chain: ChainPayload{
			Timestamp: at.UTC().Format(time.RFC3339),
			Tick:      event.Tick,
			Event:     string(event.Type),
			Source:    string(event.Source),
			Level:     level,
			InputMV:   event.InputMV,
			Dropped:   string(event.Dropped),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	BootID    string `json:"boot_id,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
		BootID: event.BootID,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// willPayload is registered with the broker and published by it if the
// connection drops without a clean disconnect.
func willPayload(bootID string) []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "connection lost", BootID: bootID})
	return data
}
