package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Circuit breaker settings for the publish path.
const (
	breakerMaxFailures uint32 = 3
	breakerTimeout            = 30 * time.Second
	breakerInterval           = 60 * time.Second
)

// outbox sends messages through a circuit breaker and holds them in a ring
// buffer while the broker is unreachable or the breaker is open.
type outbox struct {
	send      func(bufferedMsg) error
	connected func() bool
	log       *zap.SugaredLogger

	breaker *gobreaker.CircuitBreaker[struct{}]

	mu  sync.Mutex
	buf *ringBuffer
}

// newOutbox builds an outbox whose breaker stays open for timeout before
// letting a trial send through.
func newOutbox(capacity int, timeout time.Duration, send func(bufferedMsg) error, connected func() bool, log *zap.SugaredLogger) *outbox {
	o := &outbox{
		send:      send,
		connected: connected,
		log:       log,
		buf:       newRingBuffer(capacity),
	}
	o.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "mqtt",
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("mqtt: circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return o
}

// publish sends msg now if possible, otherwise buffers it. A buffered
// message is not an error unless the send itself failed. While connected,
// anything already buffered is sent first so order is kept.
func (o *outbox) publish(msg bufferedMsg) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.connected() {
		o.push(msg)
		return nil
	}
	if o.buf.len() > 0 {
		o.push(msg)
		if _, err := o.replay(); err != nil {
			return fmt.Errorf("publish to %s (buffered): %w", msg.topic, err)
		}
		return nil
	}
	if err := o.execute(msg); err != nil {
		o.push(msg)
		return fmt.Errorf("publish to %s (buffered): %w", msg.topic, err)
	}
	return nil
}

// flush replays buffered messages in order. On the first failure the
// unsent remainder goes back into the buffer.
func (o *outbox) flush() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.replay()
}

// replay sends the buffer in order. The caller holds mu.
func (o *outbox) replay() (int, error) {
	msgs := o.buf.drainAll()
	for i, msg := range msgs {
		if err := o.execute(msg); err != nil {
			for _, m := range msgs[i:] {
				o.push(m)
			}
			return i, fmt.Errorf("replay to %s: %w", msg.topic, err)
		}
	}
	return len(msgs), nil
}

func (o *outbox) execute(msg bufferedMsg) error {
	_, err := o.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, o.send(msg)
	})
	return err
}

func (o *outbox) push(msg bufferedMsg) {
	if o.buf.push(msg) {
		o.log.Warnf("mqtt: buffer full (%d messages), dropping oldest", o.buf.capacity)
	}
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.len()
}

func (o *outbox) state() gobreaker.State {
	return o.breaker.State()
}
