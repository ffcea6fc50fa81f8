package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robalobadob/simon-floor/internal/bus"
	"github.com/robalobadob/simon-floor/internal/game"
)

// Listen subscribes to the difficulty and start topics and dispatches
// inbound commands until ctx is cancelled or the bus closes.
func (s *Session) Listen(ctx context.Context, b bus.Bus) error {
	dif, err := b.Subscribe(s.opts.Topics.Difficulty)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.opts.Topics.Difficulty, err)
	}
	defer dif.Unsubscribe()
	start, err := b.Subscribe(s.opts.Topics.Start)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.opts.Topics.Start, err)
	}
	defer start.Unsubscribe()

	s.log.Info().Str("difficulty", s.opts.Topics.Difficulty).Str("start", s.opts.Topics.Start).Msg("listening for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-dif.C():
			if !ok {
				return nil
			}
			s.HandleDifficulty(ctx, m.Payload)
		case m, ok := <-start.C():
			if !ok {
				return nil
			}
			s.HandleStart(m.Payload)
		}
	}
}

// HandleDifficulty applies an inbound difficulty payload and publishes the
// confirmation or a structured error. Malformed input never changes state.
func (s *Session) HandleDifficulty(ctx context.Context, payload []byte) {
	code, ignore, err := parseDifficulty(payload)
	if ignore {
		return
	}
	if err == nil {
		d, serr := s.SelectDifficulty(code)
		if serr == nil {
			s.confirmDifficulty(ctx, code, d)
			return
		}
		err = serr
	}

	var mm *MalformedMessageError
	if errors.As(err, &mm) {
		s.log.Warn().Str("payload", string(payload)).Str("reason", mm.Reason).Msg("malformed difficulty message")
	} else {
		s.log.Info().Err(err).Msg("difficulty rejected")
	}
	s.publishJSON(ctx, s.opts.Topics.Difficulty, DifficultyReply{
		Status:         "error",
		Message:        err.Error(),
		ExpectedFormat: expectedDifficultyFormat,
		Timestamp:      timestamp(time.Now()),
	})
}

// confirmDifficulty publishes the "ok" reply the web page and the audio
// sequencer follow.
func (s *Session) confirmDifficulty(ctx context.Context, code int, d game.Difficulty) {
	s.publishJSON(ctx, s.opts.Topics.Difficulty, DifficultyReply{
		Status:            "ok",
		ReceivedDif:       &code,
		AppliedDifficulty: d.String(),
		Timestamp:         timestamp(time.Now()),
	})
}

// HandleStart starts a game on a literal "true"; anything else is ignored.
func (s *Session) HandleStart(payload []byte) {
	if !isStart(payload) {
		s.log.Debug().Str("payload", string(payload)).Msg("start payload ignored")
		return
	}
	if err := s.Start(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		s.log.Warn().Err(err).Msg("start failed")
	}
}
