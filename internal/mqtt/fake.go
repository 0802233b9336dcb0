package mqtt

import (
	"time"

	"github.com/sweeney/trigger-chain/internal/chain"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	// Events contains all chain events that were published.
	Events []chain.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Lines contains every transmitted status line.
	Lines [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// TransmitError, if set, will be returned by Transmit.
	TransmitError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the chain event.
func (f *FakePublisher) Publish(event chain.Event, at time.Time) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event, at)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Transmit records the status line.
func (f *FakePublisher) Transmit(line []byte) error {
	if f.TransmitError != nil {
		return f.TransmitError
	}
	f.Lines = append(f.Lines, append([]byte(nil), line...))
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	*f = FakePublisher{}
}
