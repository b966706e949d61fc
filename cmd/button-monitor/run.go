package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/button-monitor/internal/attr"
	"github.com/sweeney/button-monitor/internal/config"
	"github.com/sweeney/button-monitor/internal/gpio"
	"github.com/sweeney/button-monitor/internal/history"
	"github.com/sweeney/button-monitor/internal/monitor"
	"github.com/sweeney/button-monitor/internal/mqtt"
	"github.com/sweeney/button-monitor/internal/status"
	"github.com/sweeney/button-monitor/internal/web"
)

func run(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) error {
	edge, err := cfg.Edge()
	if err != nil {
		return err
	}

	chip, err := gpio.NewRealChip(cfg.Chip, gpio.WithDebounce(cfg.Debounce))
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	mon, err := monitor.New(chip, monitor.Config{
		InputLine:  cfg.InputLine,
		OutputLine: cfg.OutputLine,
		Polarity:   edge,
	})
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}
	// The loop closes the monitor on shutdown; this covers early returns.
	defer func() {
		if err := mon.Close(); err != nil && !errors.Is(err, monitor.ErrInactive) {
			log.Warnf("monitor teardown: %v", err)
		}
	}()

	if high, err := mon.InputLevel(); err != nil {
		log.Warnf("read input line %d: %v", cfg.InputLine, err)
	} else {
		log.Infof("input line %d level=%s", cfg.InputLine, levelString(high))
	}

	group := attr.GroupName(cfg.InputLine)
	surface := attr.New(group, mon, attr.WithWriteLimit(cfg.Writes.PerSecond, cfg.Writes.Burst))

	tracker := status.NewTracker(time.Now(), status.Config{
		Group:      group,
		Chip:       cfg.Chip,
		InputLine:  cfg.InputLine,
		OutputLine: cfg.OutputLine,
		Polarity:   edge.String(),
		DebounceMs: cfg.Debounce.Milliseconds(),
		Heartbeat:  cfg.Heartbeat,
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
	})
	tracker.SetSource(mon)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	l := &loop{
		mon:       mon,
		publisher: nopPublisher{},
		tracker:   tracker,
		log:       log,
		now:       time.Now,
	}

	var hist web.History
	if cfg.History != "" {
		store, err := history.Open(cfg.History)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		l.store = store
		hist = store
		log.Infof("press history at %s", cfg.History)
	}

	if cfg.MQTT.Broker != "" {
		publisher := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Topics:     mqtt.NewTopics(cfg.MQTT.TopicPrefix, group),
			BufferSize: cfg.MQTT.BufferSize,
			Commands:   surface,
			Logger:     log,
		})
		defer publisher.Close()
		l.publisher = publisher
		l.mqttStatus = publisher
	}

	// Publish startup event with full status snapshot
	l.publishStatus("STARTUP", "")

	heartbeat, stopHeartbeat, err := startHeartbeat(cfg.Heartbeat)
	if err != nil {
		return err
	}
	defer stopHeartbeat()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	log.Infof("started: chip=%s input=%d output=%d polarity=%s debounce=%v broker=%q heartbeat=%q",
		cfg.Chip, cfg.InputLine, cfg.OutputLine, edge, cfg.Debounce, cfg.MQTT.Broker, cfg.Heartbeat)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Addr != "" {
		srv := web.New(web.Options{
			Tracker:    tracker,
			Attributes: surface,
			History:    hist,
			Version:    version,
			Logger:     log,
		})
		g.Go(func() error {
			log.Infof("http control plane listening on %s", cfg.HTTP.Addr)
			if err := srv.Listen(cfg.HTTP.Addr); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Shutdown(context.Background())
		})

		if cfg.HTTP.MDNS {
			port, err := web.PortFromAddr(cfg.HTTP.Addr)
			if err != nil {
				log.Warnf("mdns disabled: %v", err)
			} else {
				g.Go(func() error {
					txt := []string{"group=" + group, "version=" + version}
					if err := web.Advertise(gctx, "button-monitor "+group, port, txt, log); err != nil {
						log.Warnf("%v", err)
					}
					return nil
				})
			}
		}
	}

	g.Go(func() error {
		defer cancel()
		return l.run(gctx, heartbeat, sigCh)
	})
	return g.Wait()
}

// startHeartbeat ticks the returned channel on the cron schedule. An empty
// spec yields a nil channel, which never fires.
func startHeartbeat(spec string) (<-chan time.Time, func(), error) {
	if spec == "" {
		return nil, func() {}, nil
	}
	ch := make(chan time.Time, 1)
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		select {
		case ch <- time.Now():
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("heartbeat schedule %q: %w", spec, err)
	}
	c.Start()
	return ch, func() { <-c.Stop().Done() }, nil
}

// nopPublisher stands in when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(history.Entry) error { return nil }

func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }

func (nopPublisher) Close() error { return nil }
