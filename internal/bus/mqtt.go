package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string // tcp://host:1883
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration // connect and publish wait
}

// MQTT is a Bus backed by an MQTT broker. Reconnection is left to paho;
// subscriptions are re-issued on every (re)connect.
type MQTT struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration

	mu     sync.Mutex
	subs   map[string][]*Subscription
	closed bool
}

// DialMQTT connects to the broker. When the broker is not reachable within
// the timeout the client keeps retrying in the background and DialMQTT
// returns without error, so the game can start before the broker does.
func DialMQTT(ctx context.Context, o MQTTOptions) (*MQTT, error) {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	m := &MQTT{qos: o.QoS, timeout: o.Timeout, subs: make(map[string][]*Subscription)}

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(10 * time.Second).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", o.Broker).Msg("mqtt connection lost")
		})
	if o.Username != "" {
		opts.SetUsername(o.Username).SetPassword(o.Password)
	}
	m.client = mqtt.NewClient(opts)

	token := m.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("mqtt connect %s: %w", o.Broker, err)
		}
	case <-time.After(o.Timeout):
		log.Warn().Str("broker", o.Broker).Msg("mqtt broker not reachable yet, retrying in background")
	case <-ctx.Done():
		m.client.Disconnect(0)
		return nil, ctx.Err()
	}
	return m, nil
}

func (m *MQTT) onConnect(c mqtt.Client) {
	m.mu.Lock()
	topics := make([]string, 0, len(m.subs))
	for t := range m.subs {
		topics = append(topics, t)
	}
	m.mu.Unlock()

	log.Info().Strs("topics", topics).Msg("mqtt connected")
	for _, t := range topics {
		m.subscribeRemote(t)
	}
}

func (m *MQTT) subscribeRemote(topic string) {
	token := m.client.Subscribe(topic, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		m.dispatch(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(m.timeout) {
			log.Warn().Str("topic", topic).Msg("mqtt subscribe not acknowledged")
			return
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("mqtt subscribe failed")
		}
	}()
}

func (m *MQTT) dispatch(topic string, payload []byte) {
	m.mu.Lock()
	list := append([]*Subscription(nil), m.subs[topic]...)
	m.mu.Unlock()
	for _, s := range list {
		cp := append([]byte(nil), payload...)
		s.deliver(Message{Topic: topic, Payload: cp})
	}
}

// Publish waits for the broker acknowledgement up to the configured timeout.
func (m *MQTT) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	token := m.client.Publish(topic, m.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(m.timeout):
		return fmt.Errorf("mqtt publish %s: timed out after %s", topic, m.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) Subscribe(topic string) (*Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	s := newSubscription(topic, m.remove)
	first := len(m.subs[topic]) == 0
	m.subs[topic] = append(m.subs[topic], s)
	m.mu.Unlock()

	if first && m.client.IsConnectionOpen() {
		m.subscribeRemote(topic)
	}
	return s, nil
}

func (m *MQTT) remove(s *Subscription) {
	m.mu.Lock()
	list := m.subs[s.topic]
	for i, x := range list {
		if x == s {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	last := len(list) == 0
	if last {
		delete(m.subs, s.topic)
	} else {
		m.subs[s.topic] = list
	}
	closed := m.closed
	m.mu.Unlock()

	if last && !closed && m.client.IsConnectionOpen() {
		m.client.Unsubscribe(s.topic)
	}
}

// Close unsubscribes everyone and disconnects from the broker.
func (m *MQTT) Close() error {
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
	m.mu.Unlock()

	for _, s := range all {
		s.Unsubscribe()
	}
	m.client.Disconnect(250)
	return nil
}
