// Package store defines the persistence boundary for identity mappings and
// escalation records. Backends: mem (standalone default), sqlite, pg.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for lookups of absent rows.
var ErrNotFound = errors.New("store: not found")

// IdentityMapping binds a channel address (e.g. a phone number) to a known
// identity. At most one mapping exists per address; it expires logically
// after a TTL measured from LastAccess.
type IdentityMapping struct {
	Address    string    `json:"address"`
	IdentityID string    `json:"identity_id"`
	LastAccess time.Time `json:"last_access"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the mapping is logically invalid at now.
func (m IdentityMapping) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(m.LastAccess) > ttl
}

// IdentityMappingStore persists channel-address → identity bindings.
type IdentityMappingStore interface {
	Get(ctx context.Context, address string) (*IdentityMapping, error)
	Put(ctx context.Context, m IdentityMapping) error // upsert
	Touch(ctx context.Context, address string, at time.Time) error
	Delete(ctx context.Context, address string) error
	DeleteExpired(ctx context.Context, olderThan time.Time) (int, error)
}

// EscalationStatus is the resolution state of an escalation record.
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "pending"
	EscalationResolved EscalationStatus = "resolved"
)

// EscalationRecord tracks one hand-off-to-human event.
type EscalationRecord struct {
	ID         uuid.UUID        `json:"id"`
	SessionKey string           `json:"session_key"`
	Reason     string           `json:"reason"`
	Department string           `json:"department"`
	Urgency    string           `json:"urgency"`
	Status     EscalationStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

// EscalationStore persists escalation records.
type EscalationStore interface {
	Insert(ctx context.Context, rec EscalationRecord) error
	Resolve(ctx context.Context, id uuid.UUID, at time.Time) error
	ListPending(ctx context.Context) ([]EscalationRecord, error)
}

// Stores is the container for all storage backends.
type Stores struct {
	Identities  IdentityMappingStore
	Escalations EscalationStore

	closer func() error
}

// NewStores bundles backends with an optional close hook.
func NewStores(identities IdentityMappingStore, escalations EscalationStore, closer func() error) *Stores {
	return &Stores{Identities: identities, Escalations: escalations, closer: closer}
}

// Close releases backend resources.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
