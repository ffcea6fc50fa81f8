package game

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMinInterArrival is the minimum gap between two accepted events.
const DefaultMinInterArrival = 500 * time.Millisecond

// Debouncer turns a raw, repetitive color stream into distinct,
// rate-limited events on a Queue. It is the producer-side synchronization
// point: every input listener calls it, possibly concurrently.
//
// A raw color is accepted only when the queue gate is open, the color is
// known, it differs from the last accepted color, and at least
// minInterArrival elapsed since the last accepted event. Everything else is
// a silent no-op.
type Debouncer struct {
	mu        sync.Mutex
	queue     *Queue
	gap       time.Duration
	limiter   *rate.Limiter
	last      Symbol
	lastAt    time.Time
	lastEpoch uint64
	now       func() time.Time
}

// NewDebouncer feeds q with events spaced at least gap apart.
func NewDebouncer(q *Queue, gap time.Duration) *Debouncer {
	d := &Debouncer{queue: q, gap: gap, now: time.Now}
	d.Reset()
	return d
}

// Offer submits a raw color observed now.
func (d *Debouncer) Offer(s Symbol) bool {
	return d.OfferAt(s, d.now())
}

// OfferAt submits a raw color observed at t.
func (d *Debouncer) OfferAt(s Symbol, t time.Time) bool {
	if !s.Valid() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.queue.Enabled() {
		return false
	}
	// A new input phase forgets the previous phase's last color and spacing,
	// so the first symbol of a round may repeat the last one of the previous
	// round and is never held back by events drained at the Arm.
	epoch := d.queue.Epoch()
	if epoch != d.lastEpoch {
		d.last = Unknown
		d.lastEpoch = epoch
		d.limiter = rate.NewLimiter(rate.Every(d.gap), 1)
	}
	if s == d.last {
		return false
	}
	r := d.limiter.ReserveN(t, 1)
	if !r.OK() || r.DelayFrom(t) > 0 {
		r.CancelAt(t)
		return false
	}
	if !d.queue.PushEpoch(s, t, epoch) {
		r.CancelAt(t)
		return false
	}
	d.last, d.lastAt = s, t
	return true
}

// Last returns the last accepted symbol and when it was accepted.
func (d *Debouncer) Last() (Symbol, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.lastAt
}

// Reset clears all state; used at the start of every game.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = Unknown
	d.lastAt = time.Time{}
	d.lastEpoch = d.queue.Epoch()
	d.limiter = rate.NewLimiter(rate.Every(d.gap), 1)
}
