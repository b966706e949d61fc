// Package attr exposes monitor state as a group of named, text-encoded
// attributes. Reads take one consistent snapshot; the only writable
// attribute is the press count.
package attr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/sweeney/button-monitor/internal/monitor"
)

// Attribute names.
const (
	PressCount = "pressCount"
	LEDOn      = "ledOn"
	LastTime   = "lastTime"
	DiffTime   = "diffTime"
)

var (
	// ErrUnknownAttribute is returned for names outside the table.
	ErrUnknownAttribute = errors.New("attr: unknown attribute")

	// ErrReadOnly is returned when writing a read-only attribute.
	ErrReadOnly = errors.New("attr: read-only attribute")

	// ErrRateLimited is returned when writes arrive faster than allowed.
	ErrRateLimited = errors.New("attr: write rate exceeded")
)

// ValidationError reports a write payload that does not parse.
type ValidationError struct {
	Attribute string
	Value     string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("attr: invalid value %q for %s: %v", e.Value, e.Attribute, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Source is the monitor state the surface translates.
type Source interface {
	Snapshot() (monitor.View, error)
	OverrideCount(n uint32) error
}

// Info describes one attribute.
type Info struct {
	Name     string `json:"name"`
	Writable bool   `json:"writable"`
}

// attribute is one table row. Writable rows set both parse and store.
type attribute struct {
	name  string
	show  func(monitor.View) string
	parse func(string) (uint32, error)
	store func(Source, uint32) error
}

var table = []attribute{
	{name: PressCount, show: showPressCount, parse: parsePressCount, store: Source.OverrideCount},
	{name: LEDOn, show: showLEDOn},
	{name: LastTime, show: showLastTime},
	{name: DiffTime, show: showDiffTime},
}

// GroupName returns the attribute group for an input line, e.g. "gpio115".
func GroupName(line int) string {
	return "gpio" + strconv.Itoa(line)
}

// Surface is the attribute group for one monitored input line.
type Surface struct {
	group   string
	src     Source
	limiter *rate.Limiter
}

// Option configures a Surface.
type Option func(*Surface)

// WithWriteLimit allows at most perSecond writes per second with the given
// burst. A non-positive rate leaves writes unlimited.
func WithWriteLimit(perSecond float64, burst int) Option {
	return func(s *Surface) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// New creates the surface for group backed by src.
func New(group string, src Source, opts ...Option) *Surface {
	s := &Surface{group: group, src: src}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Group returns the group name.
func (s *Surface) Group() string {
	return s.group
}

// Attributes lists the table in display order.
func (s *Surface) Attributes() []Info {
	infos := make([]Info, len(table))
	for i, a := range table {
		infos[i] = Info{Name: a.name, Writable: a.store != nil}
	}
	return infos
}

func lookup(name string) (attribute, error) {
	for _, a := range table {
		if a.name == name {
			return a, nil
		}
	}
	return attribute{}, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
}

// Read returns the encoded value of one attribute.
func (s *Surface) Read(name string) (string, error) {
	a, err := lookup(name)
	if err != nil {
		return "", err
	}
	view, err := s.src.Snapshot()
	if err != nil {
		return "", err
	}
	return a.show(view), nil
}

// ReadAll encodes every attribute from a single snapshot.
func (s *Surface) ReadAll() (map[string]string, error) {
	view, err := s.src.Snapshot()
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(table))
	for _, a := range table {
		values[a.name] = a.show(view)
	}
	return values, nil
}

// Write parses value and applies it. State is unchanged on any error.
// Only well-formed writes count against the rate limit.
func (s *Surface) Write(name, value string) error {
	a, err := lookup(name)
	if err != nil {
		return err
	}
	if a.store == nil {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	n, err := a.parse(value)
	if err != nil {
		return &ValidationError{Attribute: name, Value: value, Err: err}
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return ErrRateLimited
	}
	return a.store(s.src, n)
}

func parsePressCount(value string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	return uint32(n), err
}
