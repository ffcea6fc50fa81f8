// internal/input/keyboard.go
//
// KeyboardInput: terminal fallback when no floor sensor is available.
//
// Keys 0-3 feed the matching color through a debouncer into the event
// queue, like floor steps: while a game waits for its difficulty, 0/1/2
// choose easy/medium/hard. Enter or s starts a game, q aborts the running
// one and Ctrl-C / Esc request process shutdown. A one-line status is
// redrawn on the first row.

package input

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/simon-floor/internal/game"
)

// Action is what a key press means to the game.
type Action int

const (
	ActionNone Action = iota
	ActionSymbol
	ActionStart
	ActionAbort
	ActionShutdown
)

// DecodeKey maps a key event to an action. Only ActionSymbol carries a
// symbol.
func DecodeKey(ev *tcell.EventKey) (Action, game.Symbol) {
	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyEscape:
		return ActionShutdown, game.Unknown
	case tcell.KeyEnter:
		return ActionStart, game.Unknown
	case tcell.KeyRune:
	default:
		return ActionNone, game.Unknown
	}
	switch r := ev.Rune(); {
	case r >= '0' && r <= '3':
		return ActionSymbol, game.Symbol(r - '0')
	case r == 's' || r == 'S':
		return ActionStart, game.Unknown
	case r == 'q' || r == 'Q':
		return ActionAbort, game.Unknown
	}
	return ActionNone, game.Unknown
}

type KeyboardOptions struct {
	Screen   tcell.Screen    // nil opens the real terminal
	Input    *game.Debouncer // symbol keys are offered here
	Start    func() error
	Abort    func() error
	Shutdown func()
	Status   func() string // status line text
	Refresh  time.Duration
}

type Keyboard struct {
	opts   KeyboardOptions
	screen tcell.Screen
	log    zerolog.Logger
	events chan tcell.Event
}

// NewKeyboard initialises the screen.
func NewKeyboard(o KeyboardOptions) (*Keyboard, error) {
	if o.Refresh <= 0 {
		o.Refresh = 200 * time.Millisecond
	}
	screen := o.Screen
	if screen == nil {
		var err error
		if screen, err = tcell.NewScreen(); err != nil {
			return nil, err
		}
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	return &Keyboard{
		opts:   o,
		screen: screen,
		log:    log.With().Str("component", "keyboard").Logger(),
		events: make(chan tcell.Event, 16),
	}, nil
}

// Run processes key presses until ctx is cancelled, then restores the
// terminal.
func (k *Keyboard) Run(ctx context.Context) error {
	defer k.screen.Fini()
	done := make(chan struct{})
	defer close(done)
	go k.poll(done)

	refresh := time.NewTicker(k.opts.Refresh)
	defer refresh.Stop()
	k.draw()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refresh.C:
			k.draw()
		case ev := <-k.events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				k.screen.Sync()
				k.draw()
			case *tcell.EventKey:
				k.key(ev)
			}
		}
	}
}

func (k *Keyboard) poll(done <-chan struct{}) {
	for {
		ev := k.screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case k.events <- ev:
		case <-done:
			return
		}
	}
}

func (k *Keyboard) key(ev *tcell.EventKey) {
	action, sym := DecodeKey(ev)
	switch action {
	case ActionSymbol:
		if k.opts.Input.OfferAt(sym, ev.When()) {
			k.log.Debug().Str("color", sym.String()).Msg("key accepted")
		} else {
			k.log.Debug().Str("color", sym.String()).Msg("key ignored")
		}
	case ActionStart:
		if k.opts.Start == nil {
			return
		}
		if err := k.opts.Start(); err != nil {
			k.log.Info().Err(err).Msg("start ignored")
		}
	case ActionAbort:
		if k.opts.Abort == nil {
			return
		}
		if err := k.opts.Abort(); err != nil {
			k.log.Info().Err(err).Msg("abort ignored")
		}
	case ActionShutdown:
		if k.opts.Shutdown != nil {
			k.opts.Shutdown()
		}
	}
}

func (k *Keyboard) draw() {
	line := "keys: 0 green  1 red  2 blue  3 yellow  s start  q quit game  Ctrl-C exit"
	if k.opts.Status != nil {
		line = k.opts.Status() + "  |  " + line
	}
	w, _ := k.screen.Size()
	style := tcell.StyleDefault
	col := 0
	for _, r := range line {
		if col >= w {
			break
		}
		k.screen.SetContent(col, 0, r, nil, style)
		col++
	}
	for ; col < w; col++ {
		k.screen.SetContent(col, 0, ' ', nil, style)
	}
	k.screen.Show()
}
