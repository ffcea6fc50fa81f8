// internal/bus/bus.go
//
// Message-bus abstraction used by the game core.
// Responsibilities:
//   - Publish(topic, payload) with best-effort semantics.
//   - Subscribe(topic) returning a Subscription: a typed channel plus a
//     cancellation handle. Transport callbacks only ever push onto that
//     channel; the core reads from it on its own goroutine.
//
// Implementations: MQTT (paho) for the installation, Memory for tests and
// offline runs.

package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

const subscriptionBuffer = 64

// Message is one payload received on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher sends payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Bus is a Publisher that can also be subscribed to.
type Bus interface {
	Publisher
	Subscribe(topic string) (*Subscription, error)
	Close() error
}

// Subscription delivers the messages of one topic until Unsubscribe.
type Subscription struct {
	topic  string
	ch     chan Message
	mu     sync.Mutex
	closed bool
	cancel func(*Subscription)
	once   sync.Once
}

func newSubscription(topic string, cancel func(*Subscription)) *Subscription {
	return &Subscription{topic: topic, ch: make(chan Message, subscriptionBuffer), cancel: cancel}
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// C is closed after Unsubscribe.
func (s *Subscription) C() <-chan Message { return s.ch }

// Unsubscribe stops delivery and closes C. It is idempotent.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel(s)
		}
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// deliver never blocks the transport; a full subscriber loses the message.
func (s *Subscription) deliver(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- m:
	default:
		log.Warn().Str("topic", m.Topic).Msg("subscriber backlog full, dropping message")
	}
}
