package input

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/simon-floor/internal/bus"
	"github.com/robalobadob/simon-floor/internal/game"
	"github.com/robalobadob/simon-floor/internal/session"
)

func TestDecodeKey(t *testing.T) {
	cases := []struct {
		key    tcell.Key
		r      rune
		action Action
		sym    game.Symbol
	}{
		{tcell.KeyRune, '0', ActionSymbol, game.Green},
		{tcell.KeyRune, '1', ActionSymbol, game.Red},
		{tcell.KeyRune, '2', ActionSymbol, game.Blue},
		{tcell.KeyRune, '3', ActionSymbol, game.Yellow},
		{tcell.KeyRune, '4', ActionNone, game.Unknown},
		{tcell.KeyRune, 'q', ActionAbort, game.Unknown},
		{tcell.KeyRune, 's', ActionStart, game.Unknown},
		{tcell.KeyRune, 'x', ActionNone, game.Unknown},
		{tcell.KeyCtrlC, 0, ActionShutdown, game.Unknown},
		{tcell.KeyEnter, 0, ActionStart, game.Unknown},
		{tcell.KeyTab, 0, ActionNone, game.Unknown},
	}
	for _, tc := range cases {
		action, sym := DecodeKey(tcell.NewEventKey(tc.key, tc.r, tcell.ModNone))
		assert.Equal(t, tc.action, action, "key %v rune %q", tc.key, tc.r)
		assert.Equal(t, tc.sym, sym, "key %v rune %q", tc.key, tc.r)
	}
}

type keyboardRig struct {
	screen   tcell.SimulationScreen
	queue    *game.Queue
	starts   atomic.Int32
	aborts   atomic.Int32
	shutdown atomic.Int32
	cancel   context.CancelFunc
	done     chan error
}

func startKeyboard(t *testing.T) *keyboardRig {
	t.Helper()
	rig := &keyboardRig{
		screen: tcell.NewSimulationScreen("UTF-8"),
		queue:  game.NewQueue(8),
		done:   make(chan error, 1),
	}
	k, err := NewKeyboard(KeyboardOptions{
		Screen:   rig.screen,
		Input:    game.NewDebouncer(rig.queue, 0),
		Start:    func() error { rig.starts.Add(1); return nil },
		Abort:    func() error { rig.aborts.Add(1); return nil },
		Shutdown: func() { rig.shutdown.Add(1) },
		Status:   func() string { return "round 3" },
		Refresh:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	rig.screen.SetSize(120, 5)

	ctx, cancel := context.WithCancel(context.Background())
	rig.cancel = cancel
	go func() { rig.done <- k.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-rig.done
	})
	return rig
}

func (r *keyboardRig) firstRow() string {
	cells, w, _ := r.screen.GetContents()
	var b strings.Builder
	for i := 0; i < w && i < len(cells); i++ {
		if len(cells[i].Runes) > 0 {
			b.WriteRune(cells[i].Runes[0])
		}
	}
	return b.String()
}

func TestKeyboardPushesWhenGateOpen(t *testing.T) {
	rig := startKeyboard(t)

	rig.screen.InjectKey(tcell.KeyRune, '1', tcell.ModNone)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, rig.queue.Drain(), "closed gate ignores keys")

	rig.queue.Arm()
	rig.screen.InjectKey(tcell.KeyRune, '2', tcell.ModNone)
	rig.screen.InjectKey(tcell.KeyRune, '0', tcell.ModNone)

	var got []game.Symbol
	for len(got) < 2 {
		select {
		case e := <-rig.queue.C():
			got = append(got, e.Symbol)
		case <-time.After(time.Second):
			t.Fatalf("got %v", got)
		}
	}
	assert.Equal(t, []game.Symbol{game.Blue, game.Green}, got)
}

func TestKeyboardDoublePressCountsOnce(t *testing.T) {
	rig := startKeyboard(t)
	v := &game.Validator{Queue: rig.queue, PollInterval: 5 * time.Millisecond}

	go func() {
		for !rig.queue.Enabled() {
			time.Sleep(time.Millisecond)
		}
		for _, r := range "112" {
			rig.screen.InjectKey(tcell.KeyRune, r, tcell.ModNone)
		}
	}()
	got, err := v.Validate(context.Background(), []game.Symbol{game.Red, game.Blue}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []game.Symbol{game.Red, game.Blue}, got)
}

func TestKeyboardStartKeys(t *testing.T) {
	rig := startKeyboard(t)

	rig.screen.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)
	rig.screen.InjectKey(tcell.KeyRune, 's', tcell.ModNone)
	require.Eventually(t, func() bool { return rig.starts.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestKeyboardAbortAndShutdown(t *testing.T) {
	rig := startKeyboard(t)

	rig.screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	rig.screen.InjectKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)
	require.Eventually(t, func() bool {
		return rig.aborts.Load() == 1 && rig.shutdown.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestKeyboardStatusLine(t *testing.T) {
	rig := startKeyboard(t)
	require.Eventually(t, func() bool {
		return strings.HasPrefix(rig.firstRow(), "round 3  |  keys: 0 green")
	}, time.Second, 10*time.Millisecond)
}

func TestKeyboardStartsGameAndChoosesDifficulty(t *testing.T) {
	b := bus.NewMemory()
	sess := session.New(b, session.Options{DifficultyTimeout: 5 * time.Second, PollInterval: 5 * time.Millisecond})
	screen := tcell.NewSimulationScreen("UTF-8")
	k, err := NewKeyboard(KeyboardOptions{
		Screen:  screen,
		Input:   game.NewDebouncer(sess.Queue(), 0),
		Start:   sess.Start,
		Abort:   sess.Abort,
		Refresh: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		sess.Stop()
		b.Close()
	})

	screen.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)
	require.Eventually(t, func() bool {
		return sess.Phase() == session.AwaitingDifficulty && sess.Queue().Enabled()
	}, time.Second, 5*time.Millisecond)

	screen.InjectKey(tcell.KeyRune, '2', tcell.ModNone)
	require.Eventually(t, func() bool {
		st := sess.Status()
		return st.Phase == "running" && st.Difficulty == "hard"
	}, time.Second, 5*time.Millisecond)
}
