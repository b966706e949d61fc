// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/button-monitor/internal/attr"
	"github.com/sweeney/button-monitor/internal/history"
)

// EventPress is the event name carried by press payloads.
const EventPress = "PRESS"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a press to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(entry history.Entry) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Writer applies attribute writes received on command topics.
// *attr.Surface implements it.
type Writer interface {
	Write(name, value string) error
}

// Topics are the topics for one attribute group.
type Topics struct {
	Events string
	System string
	prefix string
	group  string
}

// NewTopics builds <prefix>/<group>/events and <prefix>/system.
func NewTopics(prefix, group string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return Topics{
		Events: prefix + "/" + group + "/events",
		System: prefix + "/system",
		prefix: prefix,
		group:  group,
	}
}

// CommandFilter is the subscription filter for attribute writes.
func (t Topics) CommandFilter() string {
	return t.prefix + "/" + t.group + "/+/set"
}

// Command returns the set topic for one attribute.
func (t Topics) Command(name string) string {
	return t.prefix + "/" + t.group + "/" + name + "/set"
}

// ParseCommand extracts the attribute name from a set topic.
func (t Topics) ParseCommand(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/"+t.group+"/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/set")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// ErrBadCommandTopic is returned for messages outside the command topics.
var ErrBadCommandTopic = errors.New("mqtt: not a command topic")

// HandleCommand routes a set message to w.
func HandleCommand(w Writer, t Topics, topic string, payload []byte) error {
	name, ok := t.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadCommandTopic, topic)
	}
	return w.Write(name, string(payload))
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Button ButtonPayload `json:"button"`
}

// ButtonPayload contains the press details.
type ButtonPayload struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	PressCount uint32 `json:"press_count"`
	LEDOn      bool   `json:"led_on"`
	Interval   string `json:"interval"`
	WriteError string `json:"write_error,omitempty"`
}

// FormatPayload creates the JSON payload for a press.
func FormatPayload(entry history.Entry) ([]byte, error) {
	payload := Payload{
		Button: ButtonPayload{
			ID:         entry.ID,
			Timestamp:  entry.Time.UTC().Format(time.RFC3339Nano),
			Event:      EventPress,
			PressCount: entry.PressCount,
			LEDOn:      entry.LEDOn,
			Interval:   attr.FormatDuration(entry.Interval),
			WriteError: entry.WriteError,
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
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
