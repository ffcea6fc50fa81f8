// internal/input/sensor.go
//
// SensorInput: socket.io v4 client for the floor sensor position stream.
//
// Responsibilities:
//   - Dial /socket.io/?EIO=4&transport=websocket and join the default
//     namespace ("0{...}" open, "40" connect).
//   - Answer engine.io pings ("2" → "3").
//   - Map "step" samples (x, y) through the zone layout into the debouncer.
//   - Open the input gate on "objects-update" and whenever the stream drops,
//     so a lost sensor never leaves a round waiting on a closed gate.
//   - Reconnect with a bounded number of attempts.

package input

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/simon-floor/internal/game"
)

var (
	ErrHandshake   = errors.New("sensor handshake failed")
	ErrUnreachable = errors.New("sensor unreachable")
)

type SensorOptions struct {
	URL              string        // http://host:port of the sensor gateway
	Attempts         int           // dial attempts per (re)connect
	Delay            time.Duration // pause between attempts
	HandshakeTimeout time.Duration
	Zones            game.Zones
}

func (o *SensorOptions) defaults() {
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.Delay <= 0 {
		o.Delay = time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.Zones == (game.Zones{}) {
		o.Zones = game.DefaultZones
	}
}

// open is the engine.io handshake payload.
type open struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"` // ms
	PingTimeout  int    `json:"pingTimeout"`  // ms
}

func (o open) readWindow() time.Duration {
	iv, to := o.PingInterval, o.PingTimeout
	if iv <= 0 {
		iv = 25000
	}
	if to <= 0 {
		to = 20000
	}
	return time.Duration(iv+to) * time.Millisecond
}

type Sensor struct {
	opts     SensorOptions
	endpoint string
	dialer   *websocket.Dialer
	debounce *game.Debouncer
	queue    *game.Queue
	log      zerolog.Logger

	connected atomic.Bool
	steps     atomic.Uint64

	mu      sync.Mutex
	conn    *websocket.Conn
	session open
}

// NewSensor validates the URL; it does not dial.
func NewSensor(o SensorOptions, d *game.Debouncer, q *game.Queue) (*Sensor, error) {
	o.defaults()
	ep, err := Endpoint(o.URL)
	if err != nil {
		return nil, err
	}
	return &Sensor{
		opts:     o,
		endpoint: ep,
		dialer:   &websocket.Dialer{HandshakeTimeout: o.HandshakeTimeout},
		debounce: d,
		queue:    q,
		log:      log.With().Str("component", "sensor").Str("url", ep).Logger(),
	}, nil
}

// Endpoint turns the gateway URL into its socket.io websocket endpoint.
func Endpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("sensor url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("sensor url %q: unsupported scheme", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("sensor url %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connected reports whether the stream is currently up.
func (s *Sensor) Connected() bool { return s.connected.Load() }

// Steps is the number of step samples received.
func (s *Sensor) Steps() uint64 { return s.steps.Load() }

// Dial establishes the first connection. Run reuses it.
func (s *Sensor) Dial(ctx context.Context) error {
	conn, hello, err := s.dial(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn, s.session = conn, hello
	s.mu.Unlock()
	return nil
}

// Run reads the stream until ctx is cancelled, reconnecting after drops.
// It returns ErrUnreachable once a reconnect runs out of attempts.
func (s *Sensor) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		conn, hello := s.conn, s.session
		s.conn = nil
		s.mu.Unlock()

		if conn == nil {
			var err error
			if conn, hello, err = s.dial(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}

		err := s.serve(ctx, conn, hello)
		if ctx.Err() != nil {
			return nil
		}
		s.disconnected(err)
	}
}

// Close drops an idle pre-dialed connection.
func (s *Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *Sensor) dial(ctx context.Context) (*websocket.Conn, open, error) {
	var last error
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		conn, hello, err := s.connectOnce(ctx)
		if err == nil {
			s.log.Info().Str("sid", hello.SID).Int("attempt", attempt).Msg("sensor connected")
			return conn, hello, nil
		}
		last = err
		s.log.Warn().Err(err).Int("attempt", attempt).Int("of", s.opts.Attempts).Msg("sensor dial failed")
		if attempt == s.opts.Attempts {
			break
		}
		t := time.NewTimer(s.opts.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, open{}, ctx.Err()
		case <-t.C:
		}
	}
	return nil, open{}, fmt.Errorf("%w after %d attempts: %w", ErrUnreachable, s.opts.Attempts, last)
}

func (s *Sensor) connectOnce(ctx context.Context) (*websocket.Conn, open, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return nil, open{}, err
	}
	fail := func(err error) (*websocket.Conn, open, error) {
		conn.Close()
		return nil, open{}, err
	}

	conn.SetReadDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrHandshake, err))
	}
	if len(msg) == 0 || msg[0] != '0' {
		return fail(fmt.Errorf("%w: unexpected packet %q", ErrHandshake, msg))
	}
	var hello open
	if err := json.Unmarshal(msg[1:], &hello); err != nil {
		return fail(fmt.Errorf("%w: open payload: %w", ErrHandshake, err))
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("40")); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrHandshake, err))
	}
	return conn, hello, nil
}

func (s *Sensor) serve(ctx context.Context, conn *websocket.Conn, hello open) error {
	s.connected.Store(true)
	defer s.connected.Store(false)

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	window := hello.readWindow()
	for {
		conn.SetReadDeadline(time.Now().Add(window))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handle(conn, msg); err != nil {
			return err
		}
	}
}

func (s *Sensor) handle(conn *websocket.Conn, msg []byte) error {
	p := string(msg)
	switch {
	case p == "2":
		return conn.WriteMessage(websocket.TextMessage, []byte("3"))
	case p == "1":
		return errors.New("engine.io close")
	case strings.HasPrefix(p, "40"):
		s.log.Debug().Msg("namespace joined")
	case strings.HasPrefix(p, "41"):
		return errors.New("socket.io disconnect")
	case strings.HasPrefix(p, "44"):
		return fmt.Errorf("socket.io connect error: %s", p[2:])
	case strings.HasPrefix(p, "42"):
		s.event(msg[2:])
	}
	return nil
}

func (s *Sensor) event(payload []byte) {
	var args []json.RawMessage
	if err := json.Unmarshal(payload, &args); err != nil || len(args) == 0 {
		s.log.Debug().Bytes("payload", payload).Msg("bad event")
		return
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return
	}

	switch name {
	case "step":
		if len(args) < 3 {
			s.log.Debug().Int("args", len(args)).Msg("step without coordinates")
			return
		}
		x, errX := coordinate(args[1])
		y, errY := coordinate(args[2])
		if errX != nil || errY != nil {
			s.log.Debug().AnErr("x", errX).AnErr("y", errY).Msg("bad step coordinates")
			return
		}
		s.step(x, y)
	case "objects-update":
		var objects []json.RawMessage
		if len(args) > 1 && json.Unmarshal(args[1], &objects) == nil {
			s.queue.Enable()
		}
	}
}

func (s *Sensor) step(x, y float64) {
	s.steps.Add(1)
	sym := s.opts.Zones.Map(x, y)
	if sym == game.Unknown {
		s.log.Debug().Float64("x", x).Float64("y", y).Msg("step outside zones")
		return
	}
	if s.debounce.Offer(sym) {
		s.log.Debug().Str("color", sym.String()).Msg("step accepted")
	}
}

func (s *Sensor) disconnected(err error) {
	s.queue.Enable()
	s.log.Warn().Err(err).Msg("sensor disconnected, input gate forced open")
}

// coordinate accepts a JSON number or a numeric string.
func coordinate(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(str), 64)
}
