package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nextcampus/aula/internal/store"
)

// IdentityStore implements store.IdentityMappingStore on postgres.
type IdentityStore struct {
	db *sql.DB
}

func (s *IdentityStore) Get(ctx context.Context, address string) (*store.IdentityMapping, error) {
	var m store.IdentityMapping
	err := s.db.QueryRowContext(ctx,
		`SELECT address, identity_id, last_access, created_at
		 FROM identity_mappings WHERE address = $1`, address,
	).Scan(&m.Address, &m.IdentityID, &m.LastAccess, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *IdentityStore) Put(ctx context.Context, m store.IdentityMapping) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identity_mappings (address, identity_id, last_access, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (address) DO UPDATE SET identity_id = EXCLUDED.identity_id,
		                                     last_access = EXCLUDED.last_access`,
		m.Address, m.IdentityID, m.LastAccess, m.CreatedAt,
	)
	return err
}

func (s *IdentityStore) Touch(ctx context.Context, address string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE identity_mappings SET last_access = $1 WHERE address = $2`, at, address)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *IdentityStore) Delete(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM identity_mappings WHERE address = $1`, address)
	return err
}

func (s *IdentityStore) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM identity_mappings WHERE last_access < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
