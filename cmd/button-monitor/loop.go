package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/button-monitor/internal/attr"
	"github.com/sweeney/button-monitor/internal/history"
	"github.com/sweeney/button-monitor/internal/monitor"
	"github.com/sweeney/button-monitor/internal/mqtt"
	"github.com/sweeney/button-monitor/internal/status"
)

type recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// loop consumes monitor events and owns the daemon lifecycle messages.
type loop struct {
	mon        *monitor.Monitor
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // optional
	store      recorder              // optional
	tracker    *status.Tracker
	log        *zap.SugaredLogger
	now        func() time.Time
}

// run handles events and heartbeats until a signal arrives or ctx is done,
// then tears the monitor down and publishes SHUTDOWN.
func (l *loop) run(ctx context.Context, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	events := l.mon.Events()
	for {
		select {
		case s := <-sig:
			l.log.Infof("received %v, shutting down", s)
			l.shutdown(signalName(s))
			return nil

		case <-ctx.Done():
			l.log.Infof("context cancelled, shutting down")
			l.shutdown("CANCELLED")
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			l.handle(ctx, ev)

		case <-heartbeat:
			l.refreshNetwork()
			snap := l.tracker.Snapshot()
			l.log.Infof("heartbeat: uptime=%v presses=%d led=%v",
				snap.Uptime().Truncate(time.Second), snap.Monitor.PressCount, snap.Monitor.LEDOn)
			l.publishStatus("HEARTBEAT", "")
		}
	}
}

func (l *loop) handle(ctx context.Context, ev monitor.Event) {
	entry := history.NewEntry(ev)
	if ev.WriteErr != nil {
		l.log.Warnf("press %d: drive output: %v", ev.PressCount, ev.WriteErr)
	}
	l.log.Infof("press: count=%d led=%v interval=%s",
		ev.PressCount, ev.LEDOn, attr.FormatDuration(ev.Interval))

	if l.store != nil {
		if err := l.store.Record(ctx, entry); err != nil {
			l.log.Errorf("history: %v", err)
		}
	}
	if err := l.publisher.Publish(entry); err != nil {
		// Don't crash on publish failure
		l.log.Errorf("publish error: %v", err)
	}
}

// shutdown tears the monitor down, drains the events it had already
// queued and records the final view as inactive.
func (l *loop) shutdown(reason string) {
	view, viewErr := l.mon.Snapshot()
	if err := l.mon.Close(); err != nil {
		l.log.Warnf("monitor teardown: %v", err)
	}
	if events := l.mon.Events(); events != nil {
		for ev := range events {
			l.handle(context.Background(), ev)
			if viewErr == nil && ev.Time.After(view.LastEvent) {
				view.PressCount = ev.PressCount
				view.LEDOn = ev.LEDOn
				view.LastEvent = ev.Time
				view.LastInterval = ev.Interval
			}
		}
	}
	if viewErr == nil {
		l.tracker.Update(view)
		l.log.Infof("final press count %d", view.PressCount)
	}
	l.tracker.SetInactive()
	l.publishStatus("SHUTDOWN", reason)
}

// refreshNetwork re-reads network info from the pi-helper env vars.
func (l *loop) refreshNetwork() {
	if net := readNetworkInfo(); net != nil {
		l.tracker.SetNetwork(net)
	}
}

// publishStatus sends a system event carrying the full status snapshot.
// Only heartbeats are not retained.
func (l *loop) publishStatus(event, reason string) {
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	snap := l.tracker.Snapshot()
	se := mqtt.SystemEvent{
		Timestamp:  l.now(),
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := l.publisher.PublishSystem(se); err != nil {
		l.log.Errorf("failed to publish %s event: %v", event, err)
		return
	}
	l.log.Debugf("published %s event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
