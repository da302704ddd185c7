// Package mem provides in-memory store backends for standalone mode and
// tests. State does not survive a restart.
package mem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextcampus/aula/internal/store"
)

// IdentityStore is an in-memory IdentityMappingStore.
type IdentityStore struct {
	mu sync.RWMutex
	m  map[string]store.IdentityMapping
}

// NewIdentityStore creates an empty identity mapping store.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{m: make(map[string]store.IdentityMapping)}
}

func (s *IdentityStore) Get(_ context.Context, address string) (*store.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.m[address]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := m
	return &cp, nil
}

func (s *IdentityStore) Put(_ context.Context, m store.IdentityMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.m[m.Address]; ok && m.CreatedAt.IsZero() {
		m.CreatedAt = prev.CreatedAt
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.m[m.Address] = m
	return nil
}

func (s *IdentityStore) Touch(_ context.Context, address string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.m[address]
	if !ok {
		return store.ErrNotFound
	}
	m.LastAccess = at
	s.m[address] = m
	return nil
}

func (s *IdentityStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, address)
	return nil
}

func (s *IdentityStore) DeleteExpired(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for addr, m := range s.m {
		if m.LastAccess.Before(olderThan) {
			delete(s.m, addr)
			n++
		}
	}
	return n, nil
}

// EscalationStore is an in-memory EscalationStore.
type EscalationStore struct {
	mu   sync.RWMutex
	recs map[uuid.UUID]store.EscalationRecord
}

// NewEscalationStore creates an empty escalation store.
func NewEscalationStore() *EscalationStore {
	return &EscalationStore{recs: make(map[uuid.UUID]store.EscalationRecord)}
}

func (s *EscalationStore) Insert(_ context.Context, rec store.EscalationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *EscalationStore) Resolve(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = store.EscalationResolved
	rec.ResolvedAt = &at
	s.recs[id] = rec
	return nil
}

func (s *EscalationStore) ListPending(_ context.Context) ([]store.EscalationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.EscalationRecord
	for _, rec := range s.recs {
		if rec.Status == store.EscalationPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

// NewStores bundles in-memory backends.
func NewStores() *store.Stores {
	return store.NewStores(NewIdentityStore(), NewEscalationStore(), nil)
}
