package attr

import (
	"fmt"
	"time"

	"github.com/sweeney/button-monitor/internal/monitor"
)

const secondsPerDay = 24 * 60 * 60

func showPressCount(v monitor.View) string {
	return fmt.Sprintf("%d\n", v.PressCount)
}

func showLEDOn(v monitor.View) string {
	if v.LEDOn {
		return "1\n"
	}
	return "0\n"
}

// showLastTime renders the time of day, in UTC, of the last edge. The
// trailing space before the newline is part of the format.
func showLastTime(v monitor.View) string {
	sec := v.LastEvent.Unix() % secondsPerDay
	if sec < 0 {
		sec += secondsPerDay
	}
	return fmt.Sprintf("%02d:%02d:%02d:%09d \n",
		sec/3600, (sec/60)%60, sec%60, v.LastEvent.Nanosecond())
}

func showDiffTime(v monitor.View) string {
	return FormatDuration(v.LastInterval) + "\n"
}

// FormatDuration renders d as seconds and zero-padded nanoseconds,
// e.g. "0.100000000".
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%d.%09d", int64(d/time.Second), int64(d%time.Second))
}
