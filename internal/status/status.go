// Package status provides a thread-safe status tracker for the button-monitor daemon.
// It is read by HTTP handlers and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/button-monitor/internal/monitor"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
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
	Group      string
	Chip       string
	InputLine  int
	OutputLine int
	Polarity   string
	DebounceMs int64
	Heartbeat  string
	Broker     string
	HTTPAddr   string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Monitor       monitor.View
	Active        bool
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

// ViewSource supplies live monitor state. *monitor.Monitor implements it.
type ViewSource interface {
	Snapshot() (monitor.View, error)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	src  ViewSource
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetSource makes Snapshot read the monitor view from src. While src
// fails, the last recorded view is reported as inactive.
func (t *Tracker) SetSource(src ViewSource) {
	t.mu.Lock()
	t.src = src
	t.mu.Unlock()
}

// Update records the latest monitor view.
func (t *Tracker) Update(view monitor.View) {
	t.mu.Lock()
	t.snap.Monitor = view
	t.snap.Active = true
	t.mu.Unlock()
}

// SetInactive marks the monitor as torn down, keeping the last view.
func (t *Tracker) SetInactive() {
	t.mu.Lock()
	t.snap.Active = false
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
	src := t.src
	t.mu.RUnlock()
	if src != nil {
		if v, err := src.Snapshot(); err == nil {
			s.Monitor = v
			s.Active = true
		} else {
			s.Active = false
		}
	}
	s.Now = t.now()
	return s
}
