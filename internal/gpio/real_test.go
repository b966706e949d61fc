//go:build linux

package gpio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/go-gpiosim"
)

// newSimChip opens a RealChip on a gpio-sim chip, skipping the test when the
// simulator is unavailable (it needs configfs and root).
func newSimChip(t *testing.T, lines int, opts ...RealOption) (*gpiosim.Simpleton, *RealChip) {
	t.Helper()
	s, err := gpiosim.NewSimpleton(lines)
	if err != nil {
		t.Skipf("gpio-sim unavailable: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c, err := NewRealChip(s.ChipName(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return s, c
}

func TestRealOutputDrivesLine(t *testing.T) {
	s, c := newSimChip(t, 4)

	out, err := c.RequestOutput(1, true)
	require.NoError(t, err)

	v, err := s.Level(1)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, out.SetLevel(false))
	v, err = s.Level(1)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, out.Close())
}

func TestRealRequestBusy(t *testing.T) {
	_, c := newSimChip(t, 4)

	out, err := c.RequestOutput(2, false)
	require.NoError(t, err)
	defer out.Close()

	_, err = c.RequestInput(2)
	assert.ErrorIs(t, err, ErrLineBusy)
}

func TestRealInputWatch(t *testing.T) {
	s, c := newSimChip(t, 4)
	require.NoError(t, s.SetPull(0, 0))

	in, err := c.RequestInput(0)
	require.NoError(t, err)
	defer in.Close()

	events := make(chan EdgeEvent, 4)
	require.NoError(t, in.Watch(RisingEdge, func(evt EdgeEvent) {
		events <- evt
	}))

	require.NoError(t, s.SetPull(0, 1))
	select {
	case evt := <-events:
		assert.Equal(t, 0, evt.Offset)
		assert.Equal(t, RisingEdge, evt.Edge)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for rising edge")
	}

	// Falling edges are not delivered to a rising watcher.
	require.NoError(t, s.SetPull(0, 0))
	select {
	case evt := <-events:
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}

	v, err := in.Value()
	require.NoError(t, err)
	assert.False(t, v)

	require.NoError(t, in.Unwatch())
	require.NoError(t, s.SetPull(0, 1))
	select {
	case evt := <-events:
		t.Fatalf("unexpected event after unwatch %+v", evt)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRealInputDebounce(t *testing.T) {
	s, c := newSimChip(t, 4, WithDebounce(100*time.Millisecond))
	require.NoError(t, s.SetPull(0, 0))

	in, err := c.RequestInput(0)
	require.NoError(t, err)
	defer in.Close()

	events := make(chan EdgeEvent, 4)
	require.NoError(t, in.Watch(RisingEdge, func(evt EdgeEvent) {
		events <- evt
	}))

	// A bounce shorter than the debounce period yields a single edge.
	require.NoError(t, s.SetPull(0, 1))
	require.NoError(t, s.SetPull(0, 0))
	require.NoError(t, s.SetPull(0, 1))

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced edge")
	}
	select {
	case evt := <-events:
		t.Fatalf("bounce delivered a second edge %+v", evt)
	case <-time.After(300 * time.Millisecond):
	}
}
