// internal/scores/memory.go
//
// In-memory Store, used when no database is configured and in tests.
// State is lost when the process restarts.

package scores

import (
	"context"
	"sort"
	"sync"

	"github.com/robalobadob/simon-floor/internal/session"
)

type memory struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]bool // session ids already recorded
}

func NewMemory() Store {
	return &memory{seen: make(map[string]bool)}
}

func (m *memory) Record(_ context.Context, r session.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[r.SessionID] {
		return nil
	}
	e := entryFrom(r)
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	m.seen[r.SessionID] = true
	return nil
}

func (m *memory) Top(_ context.Context, limit int) ([]Entry, error) {
	out := m.snapshot()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return head(out, clampLimit(limit)), nil
}

func (m *memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	out := m.snapshot()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return head(out, clampLimit(limit)), nil
}

func (m *memory) snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry{}, m.entries...)
}

func head(e []Entry, n int) []Entry {
	if len(e) > n {
		return e[:n]
	}
	return e
}
