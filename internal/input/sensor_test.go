package input

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/simon-floor/internal/game"
)

// gateway emulates the sensor's socket.io server. Only the first
// connection is upgraded; later ones get 503.
type gateway struct {
	t      *testing.T
	frames []string
	hold   bool // keep the connection open after sending frames
	pong   chan string
	conns  atomic.Int32
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.conns.Add(1) > 1 {
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	assert.Equal(g.t, "4", r.URL.Query().Get("EIO"))
	assert.Equal(g.t, "websocket", r.URL.Query().Get("transport"))

	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`))
	_, msg, err := conn.ReadMessage()
	if err != nil || string(msg) != "40" {
		return
	}
	conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"ns"}`))
	for _, f := range g.frames {
		conn.WriteMessage(websocket.TextMessage, []byte(f))
	}
	if !g.hold {
		return
	}
	conn.WriteMessage(websocket.TextMessage, []byte("2"))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if g.pong != nil {
			g.pong <- string(msg)
		}
	}
}

func newSensor(t *testing.T, url string, gap time.Duration) (*Sensor, *game.Queue) {
	t.Helper()
	q := game.NewQueue(16)
	s, err := NewSensor(SensorOptions{URL: url, Attempts: 1, Delay: time.Millisecond, HandshakeTimeout: time.Second},
		game.NewDebouncer(q, gap), q)
	require.NoError(t, err)
	return s, q
}

func nextEvent(t *testing.T, q *game.Queue) game.Event {
	t.Helper()
	select {
	case e := <-q.C():
		return e
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no event")
	}
	return game.Event{}
}

func TestEndpoint(t *testing.T) {
	cases := map[string]string{
		"http://192.168.5.5:8000":       "ws://192.168.5.5:8000/socket.io/?EIO=4&transport=websocket",
		"https://floor.local/":          "wss://floor.local/socket.io/?EIO=4&transport=websocket",
		"ws://floor.local/custom/path/": "ws://floor.local/custom/path/?EIO=4&transport=websocket",
	}
	for in, want := range cases {
		got, err := Endpoint(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"ftp://x", "http://", "::"} {
		_, err := Endpoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestSensorStreamsSteps(t *testing.T) {
	g := &gateway{t: t, hold: true, pong: make(chan string, 4), frames: []string{
		`42["step",0.2,1.2]`,
		`42["step",0.2,1.25]`,
		`42["step",0.2,3.5]`,
		`42["step",0.8,0.3]`,
		`42["step","0.9","1.3"]`,
		`42["step",0.1]`,
		`42["unknown-event",1]`,
	}}
	srv := httptest.NewServer(g)
	defer srv.Close()

	s, q := newSensor(t, srv.URL, 0)
	q.Enable()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Equal(t, game.Green, nextEvent(t, q).Symbol)
	assert.Equal(t, game.Blue, nextEvent(t, q).Symbol, "duplicate and out-of-zone steps are dropped")
	assert.Equal(t, game.Yellow, nextEvent(t, q).Symbol)

	select {
	case p := <-g.pong:
		assert.Equal(t, "3", p)
	case <-time.After(2 * time.Second):
		t.Fatal("ping not answered")
	}
	assert.True(t, s.Connected())
	assert.Equal(t, uint64(5), s.Steps())

	cancel()
	assert.NoError(t, <-done)
}

func TestSensorClosedGateDropsSteps(t *testing.T) {
	g := &gateway{t: t, hold: true, frames: []string{`42["step",0.2,1.2]`}}
	srv := httptest.NewServer(g)
	defer srv.Close()

	s, q := newSensor(t, srv.URL, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return s.Steps() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, q.Drain())
}

func TestSensorObjectsUpdateOpensGate(t *testing.T) {
	g := &gateway{t: t, hold: true, frames: []string{`42["objects-update",[{"id":1}]]`}}
	srv := httptest.NewServer(g)
	defer srv.Close()

	s, q := newSensor(t, srv.URL, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, q.Enabled, 2*time.Second, 5*time.Millisecond)
}

func TestSensorDisconnectForcesGateOpen(t *testing.T) {
	g := &gateway{t: t}
	srv := httptest.NewServer(g)
	defer srv.Close()

	s, q := newSensor(t, srv.URL, 0)
	require.NoError(t, s.Dial(context.Background()))

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable, "reconnect is bounded")
	assert.True(t, q.Enabled())
	assert.False(t, s.Connected())
}

func TestSensorDialUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, _ := newSensor(t, url, 0)
	err := s.Dial(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestSensorRejectsBadHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.ReadMessage()
	}))
	defer srv.Close()

	s, _ := newSensor(t, srv.URL, 0)
	err := s.Dial(context.Background())
	assert.ErrorIs(t, err, ErrHandshake)
}
