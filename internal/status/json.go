package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/button-monitor/internal/attr"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Active        bool         `json:"active"`
	Button        ButtonJSON   `json:"button"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ButtonJSON is the JSON representation of the monitor view.
type ButtonJSON struct {
	Group         string `json:"group"`
	PressCount    uint32 `json:"press_count"`
	LEDOn         bool   `json:"led_on"`
	LastTime      string `json:"last_time"`
	LastInterval  string `json:"last_interval"`
	Polarity      string `json:"polarity"`
	WriteFailures uint64 `json:"write_failures"`
	DroppedEvents uint64 `json:"dropped_events"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
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
	Chip       string `json:"chip"`
	InputLine  int    `json:"input_line"`
	OutputLine int    `json:"output_line"`
	Polarity   string `json:"polarity"`
	DebounceMs int64  `json:"debounce_ms"`
	Heartbeat  string `json:"heartbeat,omitempty"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	v := snap.Monitor
	return StatusInner{
		Active: snap.Active,
		Button: ButtonJSON{
			Group:         snap.Config.Group,
			PressCount:    v.PressCount,
			LEDOn:         v.LEDOn,
			LastTime:      formatTime(v.LastEvent),
			LastInterval:  attr.FormatDuration(v.LastInterval),
			Polarity:      snap.Config.Polarity,
			WriteFailures: v.WriteFailures,
			DroppedEvents: v.DroppedEvents,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Chip:       snap.Config.Chip,
			InputLine:  snap.Config.InputLine,
			OutputLine: snap.Config.OutputLine,
			Polarity:   snap.Config.Polarity,
			DebounceMs: snap.Config.DebounceMs,
			Heartbeat:  snap.Config.Heartbeat,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
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
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
