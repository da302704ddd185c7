package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/nextcampus/aula/internal/store"
)

// EscalationStore implements store.EscalationStore on sqlite.
type EscalationStore struct {
	db *sql.DB
}

func (s *EscalationStore) Insert(ctx context.Context, rec store.EscalationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escalations (id, session_key, reason, department, urgency, status, created_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.SessionKey, rec.Reason, rec.Department,
		rec.Urgency, string(rec.Status), rec.CreatedAt, rec.ResolvedAt,
	)
	return err
}

func (s *EscalationStore) Resolve(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE escalations SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		string(store.EscalationResolved), at, id.String(), string(store.EscalationPending),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *EscalationStore) ListPending(ctx context.Context) ([]store.EscalationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_key, reason, department, urgency, status, created_at, resolved_at
		 FROM escalations WHERE status = ? ORDER BY created_at`,
		string(store.EscalationPending),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.EscalationRecord
	for rows.Next() {
		var (
			rec    store.EscalationRecord
			rawID  string
			status string
		)
		if err := rows.Scan(&rawID, &rec.SessionKey, &rec.Reason, &rec.Department,
			&rec.Urgency, &status, &rec.CreatedAt, &rec.ResolvedAt); err != nil {
			return nil, err
		}
		rec.ID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, err
		}
		rec.Status = store.EscalationStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
