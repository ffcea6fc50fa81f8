// internal/game/queue.go
//
// Pending-event queue shared by the input sources and the TurnValidator.
// Characteristics:
//   - FIFO, bounded, safe for concurrent producers.
//   - A gate (inputEnabled) decides whether symbol events are accepted.
//   - Arm drains stale events, bumps the arm epoch and opens the gate.
//   - PushEpoch rejects events observed before the latest Arm.

package game

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one validated input event.
type Event struct {
	Symbol Symbol
	At     time.Time
}

// Queue holds validated events awaiting consumption.
type Queue struct {
	// mu orders pushes against Arm so no event crosses an epoch.
	mu      sync.Mutex
	ch      chan Event
	enabled atomic.Bool
	epoch   atomic.Uint64
	dropped atomic.Uint64
}

// NewQueue returns a closed-gate queue buffering up to size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{ch: make(chan Event, size)}
}

// Push enqueues a symbol event into the current input phase. It reports
// false when the gate is closed or the buffer is full; it never blocks.
func (q *Queue) Push(s Symbol, at time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.push(s, at)
}

// PushEpoch is Push for an event observed during input phase epoch. It
// reports false once the queue has been re-armed since.
func (q *Queue) PushEpoch(s Symbol, at time.Time, epoch uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.epoch.Load() != epoch {
		return false
	}
	return q.push(s, at)
}

func (q *Queue) push(s Symbol, at time.Time) bool {
	if !q.enabled.Load() {
		return false
	}
	e := Event{Symbol: s, At: at}
	select {
	case q.ch <- e:
		return true
	default:
		n := q.dropped.Add(1)
		log.Warn().Uint64("dropped", n).Str("symbol", e.Symbol.String()).Msg("event queue full, dropping")
		return false
	}
}

// C exposes the receive side for the validator.
func (q *Queue) C() <-chan Event { return q.ch }

// Drain discards every buffered event and returns how many were dropped.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Arm prepares the queue for a new input phase.
func (q *Queue) Arm() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Drain()
	q.epoch.Add(1)
	q.enabled.Store(true)
}

// Epoch increments on every Arm.
func (q *Queue) Epoch() uint64 { return q.epoch.Load() }

func (q *Queue) Enable()       { q.enabled.Store(true) }
func (q *Queue) Disable()      { q.enabled.Store(false) }
func (q *Queue) Enabled() bool { return q.enabled.Load() }
