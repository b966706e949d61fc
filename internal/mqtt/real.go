package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/button-monitor/internal/history"
)

// DefaultBufferSize is the number of messages held while disconnected.
const DefaultBufferSize = 100

const publishTimeout = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int

	// Commands receives writes from the command topics. Nil disables the
	// subscription.
	Commands Writer

	Logger *zap.SugaredLogger
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topics Topics
	out    *outbox
	log    *zap.SugaredLogger
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is made in the background and retried until it succeeds; messages
// published before then are buffered.
func NewRealPublisher(o Options) *RealPublisher {
	log := o.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	size := o.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &RealPublisher{topics: o.Topics, log: log}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetCleanSession(true).
		SetBinaryWill(o.Topics.System, will, 1, true).
		SetOnConnectHandler(func(c paho.Client) {
			log.Infof("mqtt: connected to %s", o.Broker)
			// Replay on its own goroutine so the subscribe wait below
			// does not hold back buffered messages.
			go p.flush()
			if o.Commands != nil {
				p.subscribe(c, o.Commands)
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.out = newOutbox(size, breakerTimeout, p.send, p.client.IsConnectionOpen, log)
	p.client.Connect()
	return p
}

func (p *RealPublisher) subscribe(c paho.Client, w Writer) {
	filter := p.topics.CommandFilter()
	token := c.Subscribe(filter, 1, func(_ paho.Client, msg paho.Message) {
		if msg.Retained() {
			// Stale commands must not rewrite state on every reconnect.
			return
		}
		if err := HandleCommand(w, p.topics, msg.Topic(), msg.Payload()); err != nil {
			p.log.Warnf("mqtt: command on %s rejected: %v", msg.Topic(), err)
			return
		}
		p.log.Infof("mqtt: applied command on %s", msg.Topic())
	})
	if !token.WaitTimeout(publishTimeout) {
		p.log.Errorf("mqtt: subscribe %s: timeout", filter)
		return
	}
	if err := token.Error(); err != nil {
		p.log.Errorf("mqtt: subscribe %s: %v", filter, err)
	}
}

func (p *RealPublisher) flush() {
	n, err := p.out.flush()
	if n > 0 {
		p.log.Infof("mqtt: replayed %d buffered messages", n)
	}
	if err != nil {
		p.log.Warnf("mqtt: replay stopped: %v", err)
	}
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	return token.Error()
}

// Publish sends a press to the MQTT broker.
func (p *RealPublisher) Publish(entry history.Entry) error {
	payload, err := FormatPayload(entry)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.out.publish(bufferedMsg{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	return p.out.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Pending returns the number of buffered messages.
func (p *RealPublisher) Pending() int {
	return p.out.pending()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.out.pending(); n > 0 {
		p.log.Warnf("mqtt: closing with %d unsent messages", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
