package internal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/button-monitor/internal/attr"
	"github.com/sweeney/button-monitor/internal/gpio"
	"github.com/sweeney/button-monitor/internal/history"
	"github.com/sweeney/button-monitor/internal/monitor"
	"github.com/sweeney/button-monitor/internal/mqtt"
	"github.com/sweeney/button-monitor/internal/status"
)

// stepClock yields start, start+step, ... on successive calls.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

type pipeline struct {
	chip    *gpio.FakeChip
	mon     *monitor.Monitor
	surface *attr.Surface
	store   *history.Store
	pub     *mqtt.FakePublisher
	topics  mqtt.Topics
}

func newPipeline(t *testing.T, cfg monitor.Config) *pipeline {
	t.Helper()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	chip := gpio.NewFakeChip()
	mon, err := monitor.New(chip, cfg, monitor.WithClock(stepClock(start, 250*time.Millisecond)))
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}
	t.Cleanup(func() { mon.Close() })

	store, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	group := attr.GroupName(cfg.InputLine)
	return &pipeline{
		chip:    chip,
		mon:     mon,
		surface: attr.New(group, mon),
		store:   store,
		pub:     mqtt.NewFakePublisher(),
		topics:  mqtt.NewTopics("home/button", group),
	}
}

// drain records and publishes every queued event, as the daemon loop does.
func (p *pipeline) drain(t *testing.T) {
	t.Helper()
	for {
		select {
		case ev := <-p.mon.Events():
			entry := history.NewEntry(ev)
			if err := p.store.Record(context.Background(), entry); err != nil {
				t.Fatalf("record: %v", err)
			}
			if err := p.pub.Publish(entry); err != nil {
				t.Fatalf("publish: %v", err)
			}
		default:
			return
		}
	}
}

// TestIntegrationFullFlow drives presses from the GPIO fake through the
// monitor to the attribute surface, press log and MQTT payloads.
func TestIntegrationFullFlow(t *testing.T) {
	p := newPipeline(t, monitor.DefaultConfig())
	in := p.chip.Input(gpio.DefaultInputLine)
	out := p.chip.Output(gpio.DefaultOutputLine)

	// Falling edges are ignored with rising polarity.
	if in.Trigger(gpio.FallingEdge) {
		t.Fatal("falling edge should not be delivered")
	}
	for i := 0; i < 3; i++ {
		in.Trigger(gpio.RisingEdge)
	}
	p.drain(t)

	// LED: on at start, then off, on, off.
	wantLevels := []bool{true, false, true, false}
	levels := out.Levels()
	if len(levels) != len(wantLevels) {
		t.Fatalf("levels: got %v, want %v", levels, wantLevels)
	}
	for i := range wantLevels {
		if levels[i] != wantLevels[i] {
			t.Errorf("level %d: got %v, want %v", i, levels[i], wantLevels[i])
		}
	}

	reads := map[string]string{
		"pressCount": "3\n",
		"ledOn":      "0\n",
		"diffTime":   "0.250000000\n",
		"lastTime":   "12:00:00:750000000 \n",
	}
	for name, want := range reads {
		got, err := p.surface.Read(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if got != want {
			t.Errorf("%s: got %q, want %q", name, got, want)
		}
	}

	entries, err := p.store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("history: got %d entries, want 3", len(entries))
	}
	if entries[0].PressCount != 3 || entries[2].PressCount != 1 {
		t.Errorf("history should be newest first, got counts %d..%d", entries[0].PressCount, entries[2].PressCount)
	}

	if len(p.pub.Payloads) != 3 {
		t.Fatalf("published %d payloads, want 3", len(p.pub.Payloads))
	}
	var payload mqtt.Payload
	if err := json.Unmarshal(p.pub.Payloads[2], &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Button.Event != mqtt.EventPress || payload.Button.PressCount != 3 || payload.Button.LEDOn {
		t.Errorf("unexpected payload: %+v", payload.Button)
	}
	if payload.Button.ID != entries[0].ID {
		t.Errorf("payload id %q does not match history id %q", payload.Button.ID, entries[0].ID)
	}
}

// TestIntegrationOverrideViaMQTTCommand writes pressCount through the command
// topic and checks the next press continues from the new value.
func TestIntegrationOverrideViaMQTTCommand(t *testing.T) {
	p := newPipeline(t, monitor.DefaultConfig())

	topic := p.topics.Command("pressCount")
	if err := mqtt.HandleCommand(p.surface, p.topics, topic, []byte("100\n")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	p.chip.Input(gpio.DefaultInputLine).Trigger(gpio.RisingEdge)
	p.drain(t)

	if got, _ := p.surface.Read("pressCount"); got != "101\n" {
		t.Errorf("pressCount: got %q, want %q", got, "101\n")
	}

	err := mqtt.HandleCommand(p.surface, p.topics, p.topics.Command("ledOn"), []byte("1"))
	if !errors.Is(err, attr.ErrReadOnly) {
		t.Errorf("ledOn command: got %v, want ErrReadOnly", err)
	}
	err = mqtt.HandleCommand(p.surface, p.topics, p.topics.Command("pressCount"), []byte("-3"))
	var verr *attr.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("negative count: got %v, want ValidationError", err)
	}
	if got, _ := p.surface.Read("pressCount"); got != "101\n" {
		t.Errorf("rejected command changed pressCount to %q", got)
	}
}

// TestIntegrationFallingPolarity uses custom lines with falling edges.
func TestIntegrationFallingPolarity(t *testing.T) {
	p := newPipeline(t, monitor.Config{InputLine: 17, OutputLine: 27, Polarity: gpio.FallingEdge})
	in := p.chip.Input(17)

	in.Trigger(gpio.RisingEdge)
	in.Trigger(gpio.FallingEdge)
	p.drain(t)

	if p.surface.Group() != "gpio17" {
		t.Errorf("group: got %q, want gpio17", p.surface.Group())
	}
	if got, _ := p.surface.Read("pressCount"); got != "1\n" {
		t.Errorf("pressCount: got %q, want 1", got)
	}
	if p.chip.Output(27).Level() {
		t.Error("LED on line 27 should be off after one press")
	}
}

// TestIntegrationTeardown checks the LED is left off, the lines are released
// and the tracker keeps reporting the last view as inactive.
func TestIntegrationTeardown(t *testing.T) {
	p := newPipeline(t, monitor.DefaultConfig())
	tracker := status.NewTracker(time.Now(), status.Config{Group: "gpio115"})
	tracker.SetSource(p.mon)

	p.chip.Input(gpio.DefaultInputLine).Trigger(gpio.RisingEdge)
	p.chip.Input(gpio.DefaultInputLine).Trigger(gpio.RisingEdge)
	p.drain(t)

	view, err := p.mon.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	tracker.Update(view)

	if err := p.mon.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if p.chip.Owned(gpio.DefaultInputLine) || p.chip.Owned(gpio.DefaultOutputLine) {
		t.Error("lines should be released after teardown")
	}
	if p.chip.Output(gpio.DefaultOutputLine).Level() {
		t.Error("LED should be off after teardown")
	}

	snap := tracker.Snapshot()
	if snap.Active {
		t.Error("tracker should report inactive")
	}
	if snap.Monitor.PressCount != 2 {
		t.Errorf("tracker press count: got %d, want 2", snap.Monitor.PressCount)
	}

	if _, err := p.surface.Read("pressCount"); !errors.Is(err, monitor.ErrInactive) {
		t.Errorf("read after teardown: got %v, want ErrInactive", err)
	}
	if in := p.chip.Input(gpio.DefaultInputLine); in.Trigger(gpio.RisingEdge) {
		t.Error("no edge should be delivered after teardown")
	}

	// A second monitor can claim the released lines.
	again, err := monitor.New(p.chip, monitor.DefaultConfig())
	if err != nil {
		t.Fatalf("re-initialise: %v", err)
	}
	again.Close()
}
