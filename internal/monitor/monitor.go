// Package monitor couples an input line to an output line: every configured
// edge on the input toggles the output and updates press statistics.
//
// The edge handler runs on the platform's event goroutine while readers call
// Snapshot and OverrideCount from arbitrary goroutines. A single mutex guards
// the whole state, and every critical section is short and non-blocking.
package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/button-monitor/internal/gpio"
)

// Monitor is a live handle on the coupled lines and their state.
type Monitor struct {
	cfg Config
	in  gpio.Input
	out gpio.Output
	now func() time.Time

	eventBuffer int

	mu     sync.Mutex
	state  state
	active bool
	events chan Event

	closeMu sync.Mutex
}

type state struct {
	pressCount    uint32
	ledOn         bool
	last          time.Time
	interval      time.Duration
	writeFailures uint64
	dropped       uint64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now. The clock must be monotonic.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithEventBuffer sets the event channel capacity. Zero disables events.
func WithEventBuffer(n int) Option {
	return func(m *Monitor) {
		m.eventBuffer = n
	}
}

// New claims the output line (driven on) and the input line from chip, then
// registers for cfg.Polarity edges on the input. On failure no line remains
// claimed.
func New(chip gpio.Chip, cfg Config, opts ...Option) (*Monitor, error) {
	if cfg.InputLine == cfg.OutputLine {
		return nil, fmt.Errorf("%w: input and output are both line %d", ErrLineUnavailable, cfg.InputLine)
	}

	m := &Monitor{
		cfg:         cfg,
		now:         time.Now,
		eventBuffer: DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}

	out, err := chip.RequestOutput(cfg.OutputLine, true)
	if err != nil {
		return nil, fmt.Errorf("%w: output line %d: %w", ErrLineUnavailable, cfg.OutputLine, err)
	}
	in, err := chip.RequestInput(cfg.InputLine)
	if err != nil {
		releaseOutput(out)
		return nil, fmt.Errorf("%w: input line %d: %w", ErrLineUnavailable, cfg.InputLine, err)
	}

	m.in = in
	m.out = out
	m.state = state{ledOn: true, last: m.now()}
	if m.eventBuffer > 0 {
		m.events = make(chan Event, m.eventBuffer)
	}
	// Active before Watch: an edge may be delivered as soon as Watch returns.
	m.active = true

	if err := in.Watch(cfg.Polarity, m.handleEdge); err != nil {
		m.active = false
		in.Close()
		releaseOutput(out)
		return nil, fmt.Errorf("%w: %s edge on line %d: %w", ErrRegistrationFailed, cfg.Polarity, cfg.InputLine, err)
	}
	return m, nil
}

// releaseOutput drives the line off before giving it up.
func releaseOutput(out gpio.Output) {
	out.SetLevel(false)
	out.Close()
}

// handleEdge is invoked by the platform for each configured edge.
// The output write is fire-and-forget: a failure is counted, not retried.
func (m *Monitor) handleEdge(gpio.EdgeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}

	s := &m.state
	s.ledOn = !s.ledOn
	werr := m.out.SetLevel(s.ledOn)
	if werr != nil {
		s.writeFailures++
	}

	now := m.now()
	s.interval = now.Sub(s.last)
	if s.interval < 0 {
		s.interval = 0
	}
	s.last = now
	s.pressCount++

	if m.events == nil {
		return
	}
	select {
	case m.events <- Event{
		PressCount: s.pressCount,
		LEDOn:      s.ledOn,
		Time:       now,
		Interval:   s.interval,
		WriteErr:   werr,
	}:
	default:
		s.dropped++
	}
}

// Config returns the line configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Events returns the channel of processed edges. It is closed by Close, and
// nil if events were disabled with WithEventBuffer(0).
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Snapshot returns a consistent copy of the state.
func (m *Monitor) Snapshot() (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return View{}, ErrInactive
	}
	return View{
		PressCount:    m.state.pressCount,
		LEDOn:         m.state.ledOn,
		LastEvent:     m.state.last,
		LastInterval:  m.state.interval,
		Polarity:      m.cfg.Polarity,
		WriteFailures: m.state.writeFailures,
		DroppedEvents: m.state.dropped,
	}, nil
}

// OverrideCount sets the press count. Against a concurrent edge, whichever
// update takes the lock last wins.
func (m *Monitor) OverrideCount(n uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return ErrInactive
	}
	m.state.pressCount = n
	return nil
}

// InputLevel reads the current level of the input line.
func (m *Monitor) InputLevel() (bool, error) {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if !active {
		return false, ErrInactive
	}
	return m.in.Value()
}

// Close unregisters the edge handler, waiting for a running invocation to
// return, then drives the output off and releases both lines. The output
// reaches its safe level before release hands the line to another owner.
//
// Close must not be called from the edge handler.
func (m *Monitor) Close() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if !active {
		return ErrInactive
	}

	var errs []error
	if err := m.in.Unwatch(); err != nil {
		errs = append(errs, fmt.Errorf("unwatch input line %d: %w", m.cfg.InputLine, err))
	}

	m.mu.Lock()
	m.active = false
	if m.events != nil {
		close(m.events)
	}
	m.mu.Unlock()

	if err := m.out.SetLevel(false); err != nil {
		errs = append(errs, fmt.Errorf("drive output line %d off: %w", m.cfg.OutputLine, err))
	}
	if err := m.out.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release output line %d: %w", m.cfg.OutputLine, err))
	}
	if err := m.in.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release input line %d: %w", m.cfg.InputLine, err))
	}
	return errors.Join(errs...)
}
