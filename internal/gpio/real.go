//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// RealChip hands out lines from a Linux GPIO character device.
type RealChip struct {
	chip     *gpiocdev.Chip
	debounce time.Duration
}

// RealOption configures a RealChip.
type RealOption func(*RealChip)

// WithDebounce applies a kernel debounce period to requested inputs.
// A zero period leaves debouncing disabled.
func WithDebounce(period time.Duration) RealOption {
	return func(c *RealChip) {
		c.debounce = period
	}
}

// NewRealChip opens the named GPIO chip, e.g. "gpiochip0".
func NewRealChip(name string, opts ...RealOption) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	c := &RealChip{chip: chip}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RequestOutput claims offset as an output driven to level.
func (c *RealChip) RequestOutput(offset int, level bool) (Output, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(levelToValue(level)))
	if err != nil {
		return nil, requestError("output", offset, err)
	}
	return &realOutput{line: line}, nil
}

// RequestInput claims offset as an input. Edge detection stays disabled
// until Watch is called.
func (c *RealChip) RequestInput(offset int) (Input, error) {
	in := &realInput{}
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithEventHandler(in.dispatch),
	}
	if c.debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(c.debounce))
	}
	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, requestError("input", offset, err)
	}
	in.line = line
	return in, nil
}

// Close releases the chip.
func (c *RealChip) Close() error {
	return c.chip.Close()
}

func requestError(kind string, offset int, err error) error {
	if errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("%w: request %s line %d: %w", ErrLineBusy, kind, offset, err)
	}
	return fmt.Errorf("request %s line %d: %w", kind, offset, err)
}

func levelToValue(level bool) int {
	if level {
		return 1
	}
	return 0
}

type realOutput struct {
	line *gpiocdev.Line
}

func (o *realOutput) Offset() int {
	return o.line.Offset()
}

func (o *realOutput) SetLevel(level bool) error {
	return o.line.SetValue(levelToValue(level))
}

func (o *realOutput) Close() error {
	return o.line.Close()
}

// realInput serialises handler invocations behind mu so Unwatch can wait
// for a running handler before returning.
type realInput struct {
	line *gpiocdev.Line

	mu      sync.Mutex
	handler EdgeHandler
	edge    Edge
	closed  bool
}

func (i *realInput) Offset() int {
	return i.line.Offset()
}

func (i *realInput) Value() (bool, error) {
	v, err := i.line.Value()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (i *realInput) Watch(edge Edge, handler EdgeHandler) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrClosed
	}
	if i.handler != nil {
		i.mu.Unlock()
		return ErrAlreadyWatched
	}
	i.handler = handler
	i.edge = edge
	i.mu.Unlock()

	var opt gpiocdev.LineConfigOption = gpiocdev.WithRisingEdge
	if edge == FallingEdge {
		opt = gpiocdev.WithFallingEdge
	}
	if err := i.line.Reconfigure(opt); err != nil {
		i.mu.Lock()
		i.handler = nil
		i.mu.Unlock()
		return fmt.Errorf("enable %s edge detection on line %d: %w", edge, i.line.Offset(), err)
	}
	return nil
}

func (i *realInput) Unwatch() error {
	i.mu.Lock()
	watched := i.handler != nil && !i.closed
	i.mu.Unlock()
	if !watched {
		return nil
	}

	err := i.line.Reconfigure(gpiocdev.WithoutEdges)

	// Waits for a running dispatch to return.
	i.mu.Lock()
	i.handler = nil
	i.mu.Unlock()

	if err != nil {
		return fmt.Errorf("disable edge detection on line %d: %w", i.line.Offset(), err)
	}
	return nil
}

func (i *realInput) Close() error {
	uerr := i.Unwatch()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrClosed
	}
	i.closed = true
	i.mu.Unlock()

	// Close waits for the gpiocdev watcher goroutine to exit.
	return errors.Join(uerr, i.line.Close())
}

func (i *realInput) dispatch(evt gpiocdev.LineEvent) {
	edge := RisingEdge
	if evt.Type == gpiocdev.LineEventFallingEdge {
		edge = FallingEdge
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.handler == nil || edge != i.edge {
		return
	}
	i.handler(EdgeEvent{
		Offset:    evt.Offset,
		Edge:      edge,
		Timestamp: evt.Timestamp,
	})
}
