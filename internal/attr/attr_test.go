package attr

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-monitor/internal/gpio"
	"github.com/sweeney/button-monitor/internal/monitor"
)

type fakeSource struct {
	view        monitor.View
	snapshotErr error
	overrides   []uint32
}

func (f *fakeSource) Snapshot() (monitor.View, error) {
	if f.snapshotErr != nil {
		return monitor.View{}, f.snapshotErr
	}
	return f.view, nil
}

func (f *fakeSource) OverrideCount(n uint32) error {
	f.overrides = append(f.overrides, n)
	f.view.PressCount = n
	return nil
}

func TestGroupName(t *testing.T) {
	assert.Equal(t, "gpio115", GroupName(115))
	assert.Equal(t, "gpio7", GroupName(7))
}

func TestAttributes(t *testing.T) {
	s := New("gpio115", &fakeSource{})
	assert.Equal(t, "gpio115", s.Group())
	assert.Equal(t, []Info{
		{Name: "pressCount", Writable: true},
		{Name: "ledOn", Writable: false},
		{Name: "lastTime", Writable: false},
		{Name: "diffTime", Writable: false},
	}, s.Attributes())
}

func TestReadEncodings(t *testing.T) {
	src := &fakeSource{view: monitor.View{
		PressCount:   17,
		LEDOn:        true,
		LastEvent:    time.Date(2026, 3, 4, 13, 5, 9, 123456789, time.UTC),
		LastInterval: 1500 * time.Millisecond,
	}}
	s := New("gpio115", src)

	tests := []struct {
		name string
		want string
	}{
		{PressCount, "17\n"},
		{LEDOn, "1\n"},
		{LastTime, "13:05:09:123456789 \n"},
		{DiffTime, "1.500000000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Read(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadLEDOff(t *testing.T) {
	s := New("gpio115", &fakeSource{})
	got, err := s.Read(LEDOn)
	require.NoError(t, err)
	assert.Equal(t, "0\n", got)
}

func TestLastTimeUsesUTCTimeOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	src := &fakeSource{view: monitor.View{
		LastEvent: time.Date(2026, 3, 4, 1, 0, 0, 5, loc),
	}}
	got, err := New("gpio115", src).Read(LastTime)
	require.NoError(t, err)
	assert.Equal(t, "23:00:00:000000005 \n", got)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.000000000", FormatDuration(0))
	assert.Equal(t, "0.100000000", FormatDuration(100*time.Millisecond))
	assert.Equal(t, "61.000000042", FormatDuration(61*time.Second+42))
}

func TestReadUnknown(t *testing.T) {
	s := New("gpio115", &fakeSource{})
	_, err := s.Read("numberPresses")
	assert.ErrorIs(t, err, ErrUnknownAttribute)
}

func TestReadInactive(t *testing.T) {
	s := New("gpio115", &fakeSource{snapshotErr: monitor.ErrInactive})
	_, err := s.Read(PressCount)
	assert.ErrorIs(t, err, monitor.ErrInactive)
	_, err = s.ReadAll()
	assert.ErrorIs(t, err, monitor.ErrInactive)
}

func TestReadAll(t *testing.T) {
	src := &fakeSource{view: monitor.View{PressCount: 3, LEDOn: false}}
	values, err := New("gpio115", src).ReadAll()
	require.NoError(t, err)
	assert.Len(t, values, 4)
	assert.Equal(t, "3\n", values[PressCount])
	assert.Equal(t, "0\n", values[LEDOn])
}

func TestWritePressCount(t *testing.T) {
	src := &fakeSource{}
	s := New("gpio115", src)

	require.NoError(t, s.Write(PressCount, "42"))
	require.NoError(t, s.Write(PressCount, " 7\n"))
	assert.Equal(t, []uint32{42, 7}, src.overrides)

	got, err := s.Read(PressCount)
	require.NoError(t, err)
	assert.Equal(t, "7\n", got)
}

func TestWriteValidation(t *testing.T) {
	src := &fakeSource{view: monitor.View{PressCount: 9}}
	s := New("gpio115", src)

	for _, value := range []string{"", "abc", "12abc", "-1", "1.5"} {
		err := s.Write(PressCount, value)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "value %q", value)
		assert.Equal(t, PressCount, verr.Attribute)
		assert.Equal(t, value, verr.Value)
		assert.ErrorIs(t, err, strconv.ErrSyntax, "value %q", value)
	}
	assert.Empty(t, src.overrides)
	assert.Equal(t, uint32(9), src.view.PressCount)
}

func TestWriteValidationRange(t *testing.T) {
	err := New("gpio115", &fakeSource{}).Write(PressCount, "4294967296")
	assert.ErrorIs(t, err, strconv.ErrRange)
}

func TestWriteReadOnly(t *testing.T) {
	s := New("gpio115", &fakeSource{})
	for _, name := range []string{LEDOn, LastTime, DiffTime} {
		assert.ErrorIs(t, s.Write(name, "1"), ErrReadOnly)
	}
	assert.ErrorIs(t, s.Write("bogus", "1"), ErrUnknownAttribute)
}

func TestWriteRateLimited(t *testing.T) {
	src := &fakeSource{}
	s := New("gpio115", src, WithWriteLimit(0.001, 2))

	require.NoError(t, s.Write(PressCount, "1"))
	require.NoError(t, s.Write(PressCount, "2"))
	assert.ErrorIs(t, s.Write(PressCount, "3"), ErrRateLimited)
	assert.Equal(t, []uint32{1, 2}, src.overrides)

	// Reads are never limited.
	_, err := s.Read(PressCount)
	assert.NoError(t, err)
}

func TestMalformedWritesDoNotSpendLimit(t *testing.T) {
	src := &fakeSource{}
	s := New("gpio115", src, WithWriteLimit(0.001, 1))

	for _, v := range []string{"abc", "-1", "4294967296", ""} {
		err := s.Write(PressCount, v)
		assert.True(t, errors.As(err, new(*ValidationError)), "value %q: %v", v, err)
	}
	require.NoError(t, s.Write(PressCount, "7"))
	assert.ErrorIs(t, s.Write(PressCount, "8"), ErrRateLimited)
	assert.Equal(t, []uint32{7}, src.overrides)
}

func TestWriteUnlimitedByDefault(t *testing.T) {
	src := &fakeSource{}
	s := New("gpio115", src, WithWriteLimit(0, 0))
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Write(PressCount, strconv.Itoa(i)))
	}
}

func TestSurfaceOverMonitor(t *testing.T) {
	chip := gpio.NewFakeChip()
	m, err := monitor.New(chip, monitor.DefaultConfig())
	require.NoError(t, err)
	defer m.Close()

	s := New(GroupName(m.Config().InputLine), m)
	assert.Equal(t, "gpio115", s.Group())

	chip.Input(gpio.DefaultInputLine).Trigger(gpio.RisingEdge)
	values, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "1\n", values[PressCount])
	assert.Equal(t, "0\n", values[LEDOn])

	require.NoError(t, s.Write(PressCount, "42"))
	chip.Input(gpio.DefaultInputLine).Trigger(gpio.RisingEdge)
	got, err := s.Read(PressCount)
	require.NoError(t, err)
	assert.Equal(t, "43\n", got)

	err = s.Write(PressCount, "forty")
	assert.True(t, errors.As(err, new(*ValidationError)))
	got, err = s.Read(PressCount)
	require.NoError(t, err)
	assert.Equal(t, "43\n", got)
}
