// internal/audio/sequencer.go
//
// AudioSequencer: plays queued cue sequences on a dedicated worker.
//
// Responsibilities:
//   - Enqueue never blocks; cues are played FIFO, one id at a time.
//   - Each id stays audible for the pacing-adjusted dwell; the next id
//     stops it before starting.
//   - A failed id is logged and skipped.
//   - Listen feeds the queue from the sequence topic and follows the
//     applied difficulty's pacing from confirmation messages.

package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/simon-floor/internal/bus"
	"github.com/robalobadob/simon-floor/internal/game"
	"github.com/robalobadob/simon-floor/internal/session"
)

// DefaultDwell is the base time one sound stays audible.
const DefaultDwell = 2 * time.Second

type Sequencer struct {
	player Player
	base   time.Duration
	pacing atomic.Int32
	log    zerolog.Logger

	mu      sync.Mutex
	pending [][]int
	signal  chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSequencer starts the worker. base <= 0 selects DefaultDwell.
func NewSequencer(p Player, base time.Duration, pacing game.Pacing) *Sequencer {
	if base <= 0 {
		base = DefaultDwell
	}
	s := &Sequencer{
		player: p,
		base:   base,
		log:    log.With().Str("component", "audio").Logger(),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.pacing.Store(int32(pacing))
	s.wg.Add(1)
	go s.worker()
	return s
}

// Enqueue appends one cue sequence. Safe from any goroutine.
func (s *Sequencer) Enqueue(ids ...int) {
	if len(ids) == 0 {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	cue := append([]int(nil), ids...)
	s.mu.Lock()
	s.pending = append(s.pending, cue)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of cues waiting to be played.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Sequencer) SetPacing(p game.Pacing) {
	if game.Pacing(s.pacing.Swap(int32(p))) != p {
		s.log.Info().Str("pacing", p.String()).Msg("pacing changed")
	}
}

func (s *Sequencer) Pacing() game.Pacing { return game.Pacing(s.pacing.Load()) }

// Stop halts the worker, drops queued cues and closes the player.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		s.player.Stop()
		if err := s.player.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close audio player")
		}
	})
}

func (s *Sequencer) pop() ([]int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, false
	}
	cue := s.pending[0]
	s.pending = s.pending[1:]
	return cue, true
}

func (s *Sequencer) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			cue, ok := s.pop()
			if !ok {
				break
			}
			if !s.play(cue) {
				return
			}
		}
	}
}

// play returns false once the sequencer is stopped.
func (s *Sequencer) play(cue []int) bool {
	pacing := s.Pacing()
	for i, id := range cue {
		s.player.Stop()
		if err := s.player.Play(id); err != nil {
			s.log.Warn().Err(err).Int("id", id).Msg("play sound")
			continue
		}
		t := time.NewTimer(pacing.Dwell(s.base, i))
		select {
		case <-t.C:
		case <-s.done:
			t.Stop()
			return false
		}
	}
	return true
}

// Listen enqueues cues published on the sequence topic until ctx ends or
// the bus closes. A terminal sequence is framed by turn markers.
func (s *Sequencer) Listen(ctx context.Context, b bus.Bus, topics session.Topics) error {
	seq, err := b.Subscribe(topics.Sequence)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topics.Sequence, err)
	}
	defer seq.Unsubscribe()
	dif, err := b.Subscribe(topics.Difficulty)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topics.Difficulty, err)
	}
	defer dif.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-seq.C():
			if !ok {
				return nil
			}
			s.handleSequence(m.Payload)
		case m, ok := <-dif.C():
			if !ok {
				return nil
			}
			s.handleDifficulty(m.Payload)
		}
	}
}

func (s *Sequencer) handleSequence(payload []byte) {
	var msg session.SequenceMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Debug().Err(err).Msg("ignoring sequence payload")
		return
	}
	if !msg.Terminal {
		s.Enqueue(msg.Colors...)
		return
	}
	marker := game.TurnMarker.Code()
	cue := make([]int, 0, len(msg.Colors)+2)
	cue = append(cue, marker)
	cue = append(cue, msg.Colors...)
	s.Enqueue(append(cue, marker)...)
}

func (s *Sequencer) handleDifficulty(payload []byte) {
	var reply session.DifficultyReply
	if err := json.Unmarshal(payload, &reply); err != nil || reply.Status != "ok" {
		return
	}
	for d, cfg := range game.Presets {
		if d.String() == reply.AppliedDifficulty {
			s.SetPacing(cfg.Pacing)
			return
		}
	}
}
