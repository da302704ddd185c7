// Package sqlite provides the standalone storage backend using the pure-Go
// sqlite driver.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nextcampus/aula/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS identity_mappings (
	address     TEXT PRIMARY KEY,
	identity_id TEXT NOT NULL,
	last_access TIMESTAMP NOT NULL,
	created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS escalations (
	id          TEXT PRIMARY KEY,
	session_key TEXT NOT NULL,
	reason      TEXT NOT NULL,
	department  TEXT NOT NULL,
	urgency     TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	resolved_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_escalations_status ON escalations(status);
`

// Open opens (creating if needed) the sqlite database at path and ensures
// the schema exists. Use ":memory:" for tests.
func Open(path string) (*store.Stores, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The modernc driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent sessions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store.NewStores(
		&IdentityStore{db: db},
		&EscalationStore{db: db},
		db.Close,
	), nil
}
