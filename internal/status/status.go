// Package status provides a thread-safe status tracker for the trigger-chain
// daemon. It is read by the HTTP handlers and by system event publishing.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sweeney/trigger-chain/internal/chain"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PeriodMs     int64
	TickUs       int64
	ThresholdMV  int
	Window       string
	PollMs       int64
	TxIntervalMs int64
	HeartbeatMs  int64
	Input        string
	Transmitter  string
	Broker       string
	HTTPAddr     string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	BootID        uuid.UUID
	Chain         chain.State
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker for one boot with the given start time and config.
func NewTracker(bootID uuid.UUID, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update stores a copy of the chain state.
func (t *Tracker) Update(st chain.State) {
	t.mu.Lock()
	t.snap.Chain = st
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Chain.Links = append([]chain.TriggerLink(nil), s.Chain.Links...)
	s.Now = t.now()
	return s
}
