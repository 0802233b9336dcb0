package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/trigger-chain/internal/chain"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	Level         string       `json:"level"`
	Indicator     string       `json:"indicator"`
	GateOpen      bool         `json:"gate_open"`
	Armed         bool         `json:"sample_enabled"`
	InputMV       int          `json:"input_mv"`
	Tick          uint64       `json:"tick"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Links         []LinkJSON   `json:"links"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Timeouts       int `json:"timeouts"`
	Rising         int `json:"rising"`
	Falling        int `json:"falling"`
	MissedTimeouts int `json:"missed_timeouts"`
	MissedRising   int `json:"missed_rising"`
	MissedFalling  int `json:"missed_falling"`
	Transmitted    int `json:"transmitted"`
	Dropped        int `json:"dropped"`
}

// LinkJSON is the JSON representation of a trigger link.
type LinkJSON struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Locked      bool   `json:"locked"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PeriodMs     int64  `json:"period_ms"`
	TickUs       int64  `json:"tick_us"`
	ThresholdMV  int    `json:"threshold_mv"`
	Window       string `json:"window"`
	PollMs       int64  `json:"poll_ms"`
	TxIntervalMs int64  `json:"tx_interval_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	Input        string `json:"input"`
	Transmitter  string `json:"transmitter"`
	Broker       string `json:"broker,omitempty"`
	HTTPAddr     string `json:"http_addr"`
}

// LevelString returns the comparator level, or UNKNOWN before the first evaluation.
func LevelString(l chain.Level) string {
	if l == chain.LevelUnknown {
		return "UNKNOWN"
	}
	return string(l)
}

// IndicatorString names the lit indicator: ABOVE, BELOW or OFF.
func IndicatorString(st chain.State) string {
	switch {
	case st.Above:
		return "ABOVE"
	case st.Below:
		return "BELOW"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.Chain
	links := make([]LinkJSON, 0, len(st.Links))
	for _, l := range st.Links {
		links = append(links, LinkJSON{Source: string(l.Source), Destination: string(l.Destination), Locked: l.Locked})
	}

	inner := StatusInner{
		BootID:        snap.BootID.String(),
		Level:         LevelString(st.Level),
		Indicator:     IndicatorString(st),
		GateOpen:      st.GateOpen,
		Armed:         st.SampleEnabled,
		InputMV:       st.InputMV,
		Tick:          st.Tick,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Timeouts:       st.Counts.Timeouts,
			Rising:         st.Counts.Rising,
			Falling:        st.Counts.Falling,
			MissedTimeouts: st.Counts.MissedTimeouts,
			MissedRising:   st.Counts.MissedRising,
			MissedFalling:  st.Counts.MissedFalling,
			Transmitted:    st.Counts.Transmitted,
			Dropped:        st.Counts.Dropped,
		},
		Links: links,
		Config: ConfigJSON{
			PeriodMs:     snap.Config.PeriodMs,
			TickUs:       snap.Config.TickUs,
			ThresholdMV:  snap.Config.ThresholdMV,
			Window:       snap.Config.Window,
			PollMs:       snap.Config.PollMs,
			TxIntervalMs: snap.Config.TxIntervalMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Input:        snap.Config.Input,
			Transmitter:  snap.Config.Transmitter,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
