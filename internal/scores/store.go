// internal/scores/store.go
//
// Score history.
//
// Characteristics:
//   - One Entry per finished game, keyed by session id (recording the same
//     session twice is a no-op).
//   - Top ranks by score, earliest first on ties; Recent lists newest first.
//   - Implementations: SQLite (durable) and memory (tests, no DB_PATH).

package scores

import (
	"context"
	"time"

	"github.com/robalobadob/simon-floor/internal/session"
)

type Entry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	Score      int       `json:"score"`
	Difficulty string    `json:"difficulty"`
	Reason     string    `json:"reason"`
	Rounds     int       `json:"rounds"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists finished games. It satisfies session.ScoreRecorder.
type Store interface {
	Record(ctx context.Context, r session.Result) error
	Top(ctx context.Context, limit int) ([]Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

const MaxLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func entryFrom(r session.Result) Entry {
	at := r.EndedAt
	if at.IsZero() {
		at = time.Now()
	}
	return Entry{
		SessionID:  r.SessionID,
		Score:      r.Score,
		Difficulty: r.Difficulty.String(),
		Reason:     r.Reason,
		Rounds:     r.Rounds,
		CreatedAt:  at.UTC().Truncate(time.Second),
	}
}
