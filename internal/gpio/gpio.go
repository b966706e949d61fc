// Package gpio provides the line capabilities the edge monitor needs from the
// host platform. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// Consumer is the label attached to lines requested by this process.
const Consumer = "button-monitor"

// Default line offsets.
const (
	DefaultInputLine  = 115 // button
	DefaultOutputLine = 49  // LED
)

// Edge selects which input transition triggers an event.
type Edge int

const (
	RisingEdge Edge = iota
	FallingEdge
)

func (e Edge) String() string {
	switch e {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	}
	return fmt.Sprintf("Edge(%d)", int(e))
}

// ParseEdge converts "rising" or "falling" to an Edge.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising":
		return RisingEdge, nil
	case "falling":
		return FallingEdge, nil
	}
	return 0, fmt.Errorf("unknown edge %q", s)
}

var (
	// ErrLineBusy is returned when a line is already owned by another claimant.
	ErrLineBusy = errors.New("gpio: line busy")

	// ErrClosed is returned by operations on a released line.
	ErrClosed = errors.New("gpio: line closed")

	// ErrAlreadyWatched is returned when Watch is called on a watched input.
	ErrAlreadyWatched = errors.New("gpio: input already watched")
)

// EdgeEvent describes a single detected edge.
type EdgeEvent struct {
	Offset int
	Edge   Edge
	// Timestamp is the platform event time, from an arbitrary monotonic origin.
	Timestamp time.Duration
}

// EdgeHandler receives edge events. Invocations for a single input are
// serialised by the platform.
type EdgeHandler func(EdgeEvent)

// Chip hands out exclusive ownership of lines.
type Chip interface {
	// RequestOutput claims a line as an output driven to level.
	RequestOutput(offset int, level bool) (Output, error)

	// RequestInput claims a line as an input.
	RequestInput(offset int) (Input, error)

	// Close releases the chip. Lines must be closed independently.
	Close() error
}

// Output is an owned output line.
type Output interface {
	Offset() int

	// SetLevel drives the line to the logical level.
	SetLevel(level bool) error

	// Close releases ownership of the line.
	Close() error
}

// Input is an owned input line.
type Input interface {
	Offset() int

	// Value returns the current logical level.
	Value() (bool, error)

	// Watch registers handler for edges of the given kind.
	Watch(edge Edge, handler EdgeHandler) error

	// Unwatch removes the handler. It blocks until any running invocation
	// of the handler has returned, so must not be called from the handler.
	Unwatch() error

	// Close releases ownership of the line, unwatching it first if needed.
	Close() error
}
