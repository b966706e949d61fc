package monitor

import (
	"errors"
	"time"

	"github.com/sweeney/button-monitor/internal/gpio"
)

var (
	// ErrLineUnavailable is returned by New when a line cannot be claimed.
	ErrLineUnavailable = errors.New("monitor: line unavailable")

	// ErrRegistrationFailed is returned by New when the edge handler cannot
	// be registered on the input line.
	ErrRegistrationFailed = errors.New("monitor: edge registration failed")

	// ErrInactive is returned by operations on a monitor that has been closed.
	ErrInactive = errors.New("monitor: inactive")
)

// DefaultEventBuffer is the capacity of the event channel.
const DefaultEventBuffer = 64

// Config selects the coupled lines. It is fixed for the monitor's lifetime.
type Config struct {
	InputLine  int
	OutputLine int
	Polarity   gpio.Edge
}

// DefaultConfig returns the button on line 115, LED on line 49, rising edge.
func DefaultConfig() Config {
	return Config{
		InputLine:  gpio.DefaultInputLine,
		OutputLine: gpio.DefaultOutputLine,
		Polarity:   gpio.RisingEdge,
	}
}

// View is a point-in-time copy of the monitor state.
// All fields come from the same critical section.
type View struct {
	PressCount   uint32
	LEDOn        bool
	LastEvent    time.Time
	LastInterval time.Duration
	Polarity     gpio.Edge

	// WriteFailures counts output writes that failed during edge processing.
	WriteFailures uint64

	// DroppedEvents counts notifications discarded because the event
	// channel was full.
	DroppedEvents uint64
}

// Event describes one processed edge.
type Event struct {
	PressCount uint32
	LEDOn      bool
	Time       time.Time
	Interval   time.Duration

	// WriteErr is the error from driving the output line, if any.
	WriteErr error
}
