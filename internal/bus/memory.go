package bus

import (
	"context"
	"sync"
)

// Memory is an in-process Bus. Every subscriber of a topic receives a copy
// of each payload published on it.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	closed bool
}

// NewMemory constructs an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]*Subscription)}
}

func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for _, s := range m.subs[topic] {
		cp := append([]byte(nil), payload...)
		s.deliver(Message{Topic: topic, Payload: cp})
	}
	return nil
}

func (m *Memory) Subscribe(topic string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	s := newSubscription(topic, m.remove)
	m.subs[topic] = append(m.subs[topic], s)
	return s, nil
}

func (m *Memory) remove(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[s.topic]
	for i, x := range list {
		if x == s {
			m.subs[s.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Close unsubscribes everyone; later publishes fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var all []*Subscription
	for _, list := range m.subs {
		all = append(all, list...)
	}
	m.subs = make(map[string][]*Subscription)
	m.mu.Unlock()

	for _, s := range all {
		s.Unsubscribe()
	}
	return nil
}
