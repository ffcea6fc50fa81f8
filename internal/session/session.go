// internal/session/session.go
//
// GameSession: the per-game state machine.
//
//   NotStarted → AwaitingDifficulty → Running(round N) → Ended → NotStarted
//
// Responsibilities:
//   - Own GameState (sequence, score, pending-event queue, debouncer).
//   - Wait for a difficulty (bounded, with reminders, default Easy).
//   - Run rounds: generate → broadcast → wait for the cue → validate → score.
//   - On any failure: error cue, final score, persistence, reset.
//
// Concurrency:
//   - The round loop runs on its own goroutine; only it writes GameState.
//   - Bus listeners and the HTTP surface call Start/SelectDifficulty/Abort,
//     which only touch the atomic phase, the pending selection under mu, and
//     the event queue.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/simon-floor/internal/bus"
	"github.com/robalobadob/simon-floor/internal/game"
)

var (
	ErrAlreadyRunning = errors.New("a game is already running")
	ErrGameInProgress = errors.New("difficulty cannot change while a game is running")
	ErrNotRunning     = errors.New("no game is running")
	ErrStopped        = errors.New("session stopped")
)

// Phase is the session-level state.
type Phase int32

const (
	NotStarted Phase = iota
	AwaitingDifficulty
	Running
	Ended
)

func (p Phase) String() string {
	switch p {
	case AwaitingDifficulty:
		return "awaiting_difficulty"
	case Running:
		return "running"
	case Ended:
		return "ended"
	}
	return "not_started"
}

// Result describes one finished game.
type Result struct {
	SessionID  string
	Score      int
	Difficulty game.Difficulty
	Rounds     int
	Reason     string // mismatch | timeout | aborted | error
	EndedAt    time.Time
}

// ScoreRecorder persists finished games.
type ScoreRecorder interface {
	Record(ctx context.Context, r Result) error
}

// Options tunes the session. Zero values fall back to defaults.
type Options struct {
	Topics            Topics
	Presets           map[game.Difficulty]game.Config
	DifficultyTimeout time.Duration // wait for a selection, then Easy
	ReminderInterval  time.Duration
	MinInterArrival   time.Duration // debounce gap
	PollInterval      time.Duration // validator clock re-check
	ErrorCueDelay     time.Duration // pause before the error cue
	CueDwell          time.Duration // base audio dwell, used to wait for the cue
	QueueSize         int
	Generator         *game.Generator
	Recorder          ScoreRecorder
}

func (o *Options) defaults() {
	if o.Topics == (Topics{}) {
		o.Topics = DefaultTopics
	}
	if o.Presets == nil {
		o.Presets = game.Presets
	}
	if o.DifficultyTimeout <= 0 {
		o.DifficultyTimeout = 30 * time.Second
	}
	if o.ReminderInterval <= 0 {
		o.ReminderInterval = 5 * time.Second
	}
	if o.MinInterArrival == 0 {
		o.MinInterArrival = game.DefaultMinInterArrival
	}
	if o.PollInterval <= 0 {
		o.PollInterval = game.DefaultPollInterval
	}
	if o.Generator == nil {
		o.Generator = game.NewGenerator(nil)
	}
}

// Status is a read-only snapshot for operators.
type Status struct {
	Phase       string        `json:"phase"`
	SessionID   string        `json:"sessionId,omitempty"`
	Difficulty  string        `json:"difficulty,omitempty"`
	Round       int           `json:"round"`
	Length      int           `json:"sequenceLength"`
	Score       int           `json:"score"`
	Remaining   time.Duration `json:"-"`
	RemainingMs int64         `json:"remainingMs"`
}

// Session orchestrates games. One Session lives for the whole process.
type Session struct {
	opts     Options
	pub      bus.Publisher
	queue    *game.Queue
	debounce *game.Debouncer
	log      zerolog.Logger

	phase    atomic.Int32
	stopped  atomic.Bool
	selected chan struct{}

	mu        sync.Mutex
	pending   *game.Difficulty
	status    Status
	abortGame context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an idle Session publishing on pub.
func New(pub bus.Publisher, opts Options) *Session {
	opts.defaults()
	q := game.NewQueue(opts.QueueSize)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:     opts,
		pub:      pub,
		queue:    q,
		debounce: game.NewDebouncer(q, opts.MinInterArrival),
		log:      log.With().Str("component", "session").Logger(),
		selected: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.status.Phase = NotStarted.String()
	return s
}

// Queue is the pending-event queue input sources feed.
func (s *Session) Queue() *game.Queue { return s.queue }

// Debouncer is the producer-side filter for raw sensor colors.
func (s *Session) Debouncer() *game.Debouncer { return s.debounce }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Status returns a snapshot of the current game.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Phase = s.Phase().String()
	st.RemainingMs = st.Remaining.Milliseconds()
	return st
}

// Start begins a new game unless one is already in progress. A request
// while a game runs is rejected, not queued.
func (s *Session) Start() error {
	if s.stopped.Load() {
		return ErrStopped
	}
	if !s.phase.CompareAndSwap(int32(NotStarted), int32(AwaitingDifficulty)) {
		s.log.Info().Str("phase", s.Phase().String()).Msg("start ignored, game already running")
		return ErrAlreadyRunning
	}
	s.wg.Add(1)
	go s.run(s.ctx)
	return nil
}

// SelectDifficulty records the difficulty for the current or next game.
func (s *Session) SelectDifficulty(code int) (game.Difficulty, error) {
	d, err := game.ParseDifficulty(code)
	if err != nil {
		return d, malformed("%v", err)
	}
	// The phase only leaves AwaitingDifficulty under mu, so a selection is
	// either applied to the waiting game or rejected, never carried over.
	s.mu.Lock()
	switch s.Phase() {
	case Running, Ended:
		s.mu.Unlock()
		return d, ErrGameInProgress
	}
	s.pending = &d
	s.mu.Unlock()
	select {
	case s.selected <- struct{}{}:
	default:
	}
	s.log.Info().Str("difficulty", d.String()).Msg("difficulty selected")
	return d, nil
}

// Abort ends the running game as if the player had quit. The request
// survives the queue drain between rounds.
func (s *Session) Abort() error {
	if s.Phase() != Running {
		return ErrNotRunning
	}
	s.mu.Lock()
	cancel := s.abortGame
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Stop halts the round loop and closes the input gate. It blocks until the
// loop has published its final score and is idempotent.
func (s *Session) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.queue.Disable()
	s.queue.Drain()
	s.log.Info().Msg("session stopped")
}

func (s *Session) takePending() (game.Difficulty, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return game.Easy, false
	}
	d := *s.pending
	s.pending = nil
	return d, true
}

func (s *Session) run(parent context.Context) {
	defer s.wg.Done()

	id := uuid.NewString()
	logger := s.log.With().Str("session", id).Logger()
	s.resetState(id)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	s.mu.Lock()
	s.abortGame = cancel
	s.mu.Unlock()

	d := s.commitDifficulty(s.awaitDifficulty(ctx, logger))
	cfg := s.opts.Presets[d]
	logger.Info().Str("difficulty", d.String()).Int("perRound", cfg.SymbolsPerRound).
		Dur("perSymbolTimeout", cfg.PerSymbolTimeout).Msg("game started")

	score, rounds, err := s.playSafely(ctx, cfg)

	s.phase.Store(int32(Ended))
	s.end(ctx, logger, Result{
		SessionID:  id,
		Score:      score,
		Difficulty: d,
		Rounds:     rounds,
		Reason:     reason(err),
		EndedAt:    time.Now().UTC(),
	}, err)

	s.resetState("")
	s.phase.Store(int32(NotStarted))
}

func (s *Session) resetState(id string) {
	s.queue.Disable()
	s.queue.Drain()
	s.debounce.Reset()
	s.mu.Lock()
	s.status = Status{SessionID: id}
	s.abortGame = nil
	s.mu.Unlock()
}

// commitDifficulty moves the session to Running. A selection that arrived
// after the wait ended was already confirmed to its sender, so it wins.
func (s *Session) commitDifficulty(d game.Difficulty) game.Difficulty {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		d = *s.pending
		s.pending = nil
	}
	s.status.Difficulty = d.String()
	s.phase.Store(int32(Running))
	return d
}

// floorDifficulty maps a color stepped on during the wait to a difficulty.
// Yellow selects nothing.
var floorDifficulty = map[game.Symbol]game.Difficulty{
	game.Green: game.Easy,
	game.Red:   game.Medium,
	game.Blue:  game.Hard,
}

// awaitDifficulty waits for a selection from the bus, the HTTP surface or
// the floor. The input gate is open while waiting so a step on a color
// chooses the matching difficulty.
func (s *Session) awaitDifficulty(ctx context.Context, logger zerolog.Logger) game.Difficulty {
	if d, ok := s.takePending(); ok {
		return d
	}
	logger.Info().Dur("timeout", s.opts.DifficultyTimeout).Msg("waiting for difficulty")
	s.publishJSON(ctx, s.opts.Topics.Difficulty, newReminder(time.Now()))

	s.queue.Arm()
	defer func() {
		s.queue.Disable()
		s.queue.Drain()
	}()

	timeout := time.NewTimer(s.opts.DifficultyTimeout)
	defer timeout.Stop()
	reminders := time.NewTicker(s.opts.ReminderInterval)
	defer reminders.Stop()

	for {
		select {
		case <-s.selected:
			if d, ok := s.takePending(); ok {
				return d
			}
		case ev := <-s.queue.C():
			d, ok := floorDifficulty[ev.Symbol]
			if !ok {
				continue
			}
			logger.Info().Str("color", ev.Symbol.String()).Str("difficulty", d.String()).Msg("difficulty chosen on the floor")
			s.publishJSON(ctx, s.opts.Topics.Sequence, SequenceMessage{Colors: []int{ev.Symbol.Code()}})
			s.confirmDifficulty(ctx, int(d), d)
			return d
		case <-reminders.C:
			s.publishJSON(ctx, s.opts.Topics.Difficulty, newReminder(time.Now()))
		case <-timeout.C:
			logger.Info().Msg("no difficulty received, defaulting to easy")
			return game.Easy
		case <-ctx.Done():
			return game.Easy
		}
	}
}

// playSafely runs the round loop and turns a panic into an ended game.
func (s *Session) playSafely(ctx context.Context, cfg game.Config) (score, rounds int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("round loop panic: %v", r)
		}
	}()
	return s.play(ctx, cfg)
}

func (s *Session) play(ctx context.Context, cfg game.Config) (score, rounds int, err error) {
	v := &game.Validator{
		Queue:        s.queue,
		PollInterval: s.opts.PollInterval,
		OnAccept: func(sym game.Symbol, pos int) {
			s.publishJSON(ctx, s.opts.Topics.Sequence, SequenceMessage{Colors: []int{sym.Code()}})
		},
		OnTick: func(remaining time.Duration) {
			s.mu.Lock()
			s.status.Remaining = remaining
			s.mu.Unlock()
		},
	}

	var seq []game.Symbol
	for {
		if ctx.Err() != nil {
			return score, rounds, fmt.Errorf("%w: %w", game.ErrAborted, ctx.Err())
		}
		s.queue.Disable()
		s.queue.Drain()

		seq = s.opts.Generator.Next(seq, cfg.SymbolsPerRound)
		rounds++
		budget := cfg.TurnBudget(len(seq))
		s.mu.Lock()
		s.status.Round, s.status.Length, s.status.Remaining = rounds, len(seq), budget
		s.mu.Unlock()

		s.log.Info().Int("round", rounds).Ints("sequence", game.Codes(seq)).Msg("new sequence")
		s.publishJSON(ctx, s.opts.Topics.Sequence, SequenceMessage{Colors: game.Codes(seq), Terminal: true})

		// The cue is framed by a turn marker on both ends.
		wait := cfg.Pacing.Total(s.opts.CueDwell, len(seq)+2) + cfg.InterRoundDelay
		if err := sleep(ctx, wait); err != nil {
			return score, rounds, fmt.Errorf("%w: %w", game.ErrAborted, err)
		}

		if _, err := v.Validate(ctx, seq, budget); err != nil {
			return score, rounds, err
		}
		score = len(seq)
		s.mu.Lock()
		s.status.Score = score
		s.mu.Unlock()
		s.log.Info().Int("round", rounds).Int("score", score).Msg("round complete")
	}
}

func (s *Session) end(ctx context.Context, logger zerolog.Logger, r Result, cause error) {
	ev := logger.Info()
	if r.Reason == "error" {
		ev = logger.Error()
	}
	ev.Err(cause).Str("reason", r.Reason).Int("score", r.Score).Int("rounds", r.Rounds).Msg("game over")

	// The session context may already be cancelled; final messages still go out.
	out, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if ctx.Err() == nil {
		_ = sleep(ctx, s.opts.ErrorCueDelay)
	}
	s.publishJSON(out, s.opts.Topics.Sequence, SequenceMessage{Colors: []int{game.ErrorMarker.Code()}})
	s.publishJSON(out, s.opts.Topics.Score, ScoreMessage{
		Score:          r.Score,
		Difficulty:     r.Difficulty.String(),
		Timestamp:      timestamp(r.EndedAt),
		EndedWithError: r.Reason == "error",
	})

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.Record(out, r); err != nil {
			logger.Warn().Err(err).Msg("record score")
		}
	}
}

// publishJSON is best-effort: failures are logged and never retried.
func (s *Session) publishJSON(ctx context.Context, topic string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Str("topic", topic).Msg("encode message")
		return
	}
	if err := s.pub.Publish(ctx, topic, b); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
		return
	}
	s.log.Debug().Str("topic", topic).RawJSON("payload", b).Msg("published")
}

func reason(err error) string {
	var mm *game.MismatchError
	switch {
	case errors.As(err, &mm):
		return "mismatch"
	case errors.Is(err, game.ErrTimeout):
		return "timeout"
	case errors.Is(err, game.ErrAborted):
		return "aborted"
	}
	return "error"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
