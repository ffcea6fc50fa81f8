package scores

import (
	"context"
	"database/sql"
	"time"

	"github.com/robalobadob/simon-floor/internal/session"
)

type SQLite struct{ db *sql.DB }

var _ Store = (*SQLite)(nil)

func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

func (s *SQLite) Record(ctx context.Context, r session.Result) error {
	e := entryFrom(r)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO scores(session_id, score, difficulty, reason, rounds, created_at)
		 VALUES(?,?,?,?,?,?)`,
		e.SessionID, e.Score, e.Difficulty, e.Reason, e.Rounds, e.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *SQLite) Top(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx,
		`SELECT id, session_id, score, difficulty, reason, rounds, created_at
		 FROM scores
		 ORDER BY score DESC, created_at ASC, id ASC
		 LIMIT ?`, clampLimit(limit))
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.query(ctx,
		`SELECT id, session_id, score, difficulty, reason, rounds, created_at
		 FROM scores
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, clampLimit(limit))
}

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Score, &e.Difficulty, &e.Reason, &e.Rounds, &created); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
