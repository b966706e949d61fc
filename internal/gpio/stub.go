//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// RealOption configures a RealChip.
type RealOption func(*RealChip)

// WithDebounce is accepted for API parity and ignored.
func WithDebounce(period time.Duration) RealOption {
	return func(*RealChip) {}
}

// NewRealChip returns an error on non-Linux platforms.
func NewRealChip(name string, opts ...RealOption) (*RealChip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// RequestOutput is not implemented on non-Linux platforms.
func (c *RealChip) RequestOutput(offset int, level bool) (Output, error) {
	return nil, errors.New("gpio: not supported")
}

// RequestInput is not implemented on non-Linux platforms.
func (c *RealChip) RequestInput(offset int) (Input, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}
