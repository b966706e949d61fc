package gpio

import (
	"fmt"
	"sync"
	"time"
)

// FakeChip is a test double that tracks line ownership in memory.
// It is safe for concurrent use.
type FakeChip struct {
	// RequestOutputError, if set, is returned by RequestOutput.
	RequestOutputError error

	// RequestInputError, if set, is returned by RequestInput.
	RequestInputError error

	// WatchError, if set, is returned by Watch on inputs from this chip.
	WatchError error

	mu      sync.Mutex
	owned   map[int]string
	outputs map[int]*FakeOutput
	inputs  map[int]*FakeInput
	closed  bool
	origin  time.Time
}

// NewFakeChip creates a FakeChip with every line free.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		owned:   make(map[int]string),
		outputs: make(map[int]*FakeOutput),
		inputs:  make(map[int]*FakeInput),
		origin:  time.Now(),
	}
}

// Hold marks offset as owned by another consumer.
func (c *FakeChip) Hold(offset int, consumer string) {
	c.mu.Lock()
	c.owned[offset] = consumer
	c.mu.Unlock()
}

// Owned reports whether offset is currently claimed.
func (c *FakeChip) Owned(offset int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.owned[offset]
	return ok
}

// Output returns the most recent output requested on offset, or nil.
func (c *FakeChip) Output(offset int) *FakeOutput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputs[offset]
}

// Input returns the most recent input requested on offset, or nil.
func (c *FakeChip) Input(offset int) *FakeInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inputs[offset]
}

// Closed reports whether Close was called.
func (c *FakeChip) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeChip) claim(offset int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if owner, ok := c.owned[offset]; ok {
		return fmt.Errorf("%w: line %d held by %s", ErrLineBusy, offset, owner)
	}
	c.owned[offset] = Consumer
	return nil
}

func (c *FakeChip) release(offset int) {
	c.mu.Lock()
	delete(c.owned, offset)
	c.mu.Unlock()
}

// RequestOutput claims offset as an output driven to level.
func (c *FakeChip) RequestOutput(offset int, level bool) (Output, error) {
	if c.RequestOutputError != nil {
		return nil, c.RequestOutputError
	}
	if err := c.claim(offset); err != nil {
		return nil, err
	}
	o := &FakeOutput{chip: c, offset: offset, levels: []bool{level}}
	c.mu.Lock()
	c.outputs[offset] = o
	c.mu.Unlock()
	return o, nil
}

// RequestInput claims offset as an input.
func (c *FakeChip) RequestInput(offset int) (Input, error) {
	if c.RequestInputError != nil {
		return nil, c.RequestInputError
	}
	if err := c.claim(offset); err != nil {
		return nil, err
	}
	in := &FakeInput{chip: c, offset: offset, watchErr: c.WatchError}
	c.mu.Lock()
	c.inputs[offset] = in
	c.mu.Unlock()
	return in, nil
}

// Close marks the chip as closed.
func (c *FakeChip) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// FakeOutput records every level driven onto it.
type FakeOutput struct {
	chip   *FakeChip
	offset int

	mu       sync.Mutex
	levels   []bool
	writeErr error
	closed   bool
}

// Offset returns the line offset.
func (o *FakeOutput) Offset() int {
	return o.offset
}

// SetLevel records level. If FailWrites was called the level is not applied
// and the configured error is returned.
func (o *FakeOutput) SetLevel(level bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.writeErr != nil {
		return o.writeErr
	}
	o.levels = append(o.levels, level)
	return nil
}

// FailWrites makes subsequent SetLevel calls return err. A nil err restores
// normal behaviour.
func (o *FakeOutput) FailWrites(err error) {
	o.mu.Lock()
	o.writeErr = err
	o.mu.Unlock()
}

// Level returns the level the line is currently driven to.
func (o *FakeOutput) Level() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.levels[len(o.levels)-1]
}

// Levels returns a copy of every level driven, starting with the initial one.
func (o *FakeOutput) Levels() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.levels...)
}

// Closed reports whether the line was released.
func (o *FakeOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close releases the line.
func (o *FakeOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.closed = true
	o.mu.Unlock()
	o.chip.release(o.offset)
	return nil
}

// FakeInput delivers scripted edges to its handler. Deliveries are
// serialised, as they are on real hardware.
type FakeInput struct {
	chip     *FakeChip
	offset   int
	watchErr error

	mu      sync.Mutex
	level   bool
	handler EdgeHandler
	edge    Edge
	closed  bool
}

// Offset returns the line offset.
func (i *FakeInput) Offset() int {
	return i.offset
}

// Value returns the current simulated level.
func (i *FakeInput) Value() (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false, ErrClosed
	}
	return i.level, nil
}

// Watch registers handler for edges of the given kind.
func (i *FakeInput) Watch(edge Edge, handler EdgeHandler) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	if i.watchErr != nil {
		return i.watchErr
	}
	if i.handler != nil {
		return ErrAlreadyWatched
	}
	i.handler = handler
	i.edge = edge
	return nil
}

// Unwatch removes the handler, waiting for a running delivery to finish.
func (i *FakeInput) Unwatch() error {
	i.mu.Lock()
	i.handler = nil
	i.mu.Unlock()
	return nil
}

// Watched reports whether a handler is registered.
func (i *FakeInput) Watched() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.handler != nil
}

// Closed reports whether the line was released.
func (i *FakeInput) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Trigger simulates an edge of the given kind. The handler is called only
// if one is registered for that kind. Returns whether it was called.
func (i *FakeInput) Trigger(edge Edge) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.level = edge == RisingEdge
	if i.closed || i.handler == nil || edge != i.edge {
		return false
	}
	i.handler(EdgeEvent{
		Offset:    i.offset,
		Edge:      edge,
		Timestamp: time.Since(i.chip.origin),
	})
	return true
}

// Close releases the line.
func (i *FakeInput) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrClosed
	}
	i.handler = nil
	i.closed = true
	i.mu.Unlock()
	i.chip.release(i.offset)
	return nil
}
