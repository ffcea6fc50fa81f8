// internal/game/validator.go
//
// TurnValidator: checks one reproduction of the round sequence.
// State per round:
//   Idle → Armed (gate open, queue drained) → Collecting → Success | Mismatch | Timeout | Aborted
//
// Rules:
//   - The budget covers the whole sequence and starts when the queue is armed.
//   - The first wrong symbol fails immediately with *MismatchError.
//   - A cancelled context fails with ErrAborted.
//   - Waiting is blocking with a bounded re-check interval, never a hot spin.

package game

import (
	"context"
	"fmt"
	"time"
)

// DefaultPollInterval bounds how long the validator waits between clock checks.
const DefaultPollInterval = 100 * time.Millisecond

// Validator consumes events from Queue against an expected sequence.
type Validator struct {
	Queue        *Queue
	PollInterval time.Duration

	// OnAccept, when set, is called for every consumed symbol (including a
	// wrong one) before it is judged, with its position in the sequence.
	OnAccept func(s Symbol, position int)
	// OnTick, when set, is called at every poll with the remaining budget.
	OnTick func(remaining time.Duration)
}

// Validate arms the queue and collects len(expected) events within budget.
// On success it returns the accepted symbols, equal to expected. The gate
// is closed again when Validate returns.
func (v *Validator) Validate(ctx context.Context, expected []Symbol, budget time.Duration) ([]Symbol, error) {
	v.Queue.Arm()
	defer v.Queue.Disable()

	accepted := make([]Symbol, 0, len(expected))
	if len(expected) == 0 {
		return accepted, nil
	}

	poll := v.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	deadline := time.Now().Add(budget)
	timer := time.NewTimer(budget)
	defer timer.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for len(accepted) < len(expected) {
		select {
		case <-ctx.Done():
			return accepted, fmt.Errorf("%w: %w", ErrAborted, ctx.Err())

		case <-timer.C:
			return accepted, ErrTimeout

		case now := <-ticker.C:
			remaining := deadline.Sub(now)
			if remaining <= 0 {
				return accepted, ErrTimeout
			}
			if v.OnTick != nil {
				v.OnTick(remaining)
			}

		case ev := <-v.Queue.C():
			pos := len(accepted)
			if v.OnAccept != nil {
				v.OnAccept(ev.Symbol, pos)
			}
			if ev.Symbol != expected[pos] {
				return accepted, &MismatchError{Expected: expected[pos], Received: ev.Symbol, Position: pos}
			}
			accepted = append(accepted, ev.Symbol)
		}
	}
	return accepted, nil
}
