// Package identity resolves channel addresses to known people and manages
// the persistent address bindings behind authenticated sessions.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/nextcampus/aula/internal/bus"
	"github.com/nextcampus/aula/internal/classify"
	"github.com/nextcampus/aula/internal/store"
)

var (
	// ErrInvalidCredential means the directory rejected the credential.
	ErrInvalidCredential = errors.New("identity: invalid credential")

	credentialRe = regexp.MustCompile(`\b\d{7,8}\b`)
)

// State is the resolution outcome for an address.
type State string

const (
	// StateAuthenticated means a valid mapping exists and the directory
	// still knows the identity.
	StateAuthenticated State = "authenticated"
	// StatePendingCredential means no usable mapping exists; the caller
	// must collect a credential.
	StatePendingCredential State = "pending_credential"
)

// Resolution is the result of resolving an address.
type Resolution struct {
	State    State
	Identity *bus.Identity
}

// Directory is the source of truth for people. The resolver only caches
// address bindings; identity data always comes from here.
type Directory interface {
	// FindIdentity fetches an identity by its directory id. Returns
	// store.ErrNotFound when the id is unknown.
	FindIdentity(ctx context.Context, identityID string) (*bus.Identity, error)
	// ValidateCredential checks a submitted credential and returns the
	// matching identity, or ErrInvalidCredential.
	ValidateCredential(ctx context.Context, credential string) (*bus.Identity, error)
}

// Resolver maps channel addresses to identities through the mapping store
// and a directory. Mappings expire ttl after their last access.
type Resolver struct {
	mappings  store.IdentityMappingStore
	directory Directory
	ttl       time.Duration
	forget    []string
	log       *slog.Logger
}

// NewResolver creates a resolver. forgetPhrases are matched against
// normalized message text by IsForgetCommand.
func NewResolver(mappings store.IdentityMappingStore, directory Directory, ttl time.Duration, forgetPhrases []string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	normalized := make([]string, 0, len(forgetPhrases))
	for _, p := range forgetPhrases {
		if n := classify.Normalize(p); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &Resolver{
		mappings:  mappings,
		directory: directory,
		ttl:       ttl,
		forget:    normalized,
		log:       log,
	}
}

// Resolve determines the authentication state for address at now. A stale or
// dangling mapping is removed and resolves to pending. A live mapping has its
// last access bumped, so active users never re-authenticate.
func (r *Resolver) Resolve(ctx context.Context, address string, now time.Time) (Resolution, error) {
	m, err := r.mappings.Get(ctx, address)
	if errors.Is(err, store.ErrNotFound) {
		return Resolution{State: StatePendingCredential}, nil
	}
	if err != nil {
		return Resolution{}, err
	}

	if m.Expired(now, r.ttl) {
		if err := r.mappings.Delete(ctx, address); err != nil {
			r.log.Warn("drop expired mapping", "address", address, "error", err)
		}
		return Resolution{State: StatePendingCredential}, nil
	}

	id, err := r.directory.FindIdentity(ctx, m.IdentityID)
	if errors.Is(err, store.ErrNotFound) {
		// The person no longer exists in the directory. The mapping is
		// dead weight.
		if err := r.mappings.Delete(ctx, address); err != nil {
			r.log.Warn("drop dangling mapping", "address", address, "error", err)
		}
		return Resolution{State: StatePendingCredential}, nil
	}
	if err != nil {
		return Resolution{}, err
	}

	if err := r.mappings.Touch(ctx, address, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.log.Warn("touch mapping", "address", address, "error", err)
	}
	return Resolution{State: StateAuthenticated, Identity: id}, nil
}

// Authenticate validates credential against the directory and, on success,
// binds address to the identity. Returns ErrInvalidCredential on rejection.
func (r *Resolver) Authenticate(ctx context.Context, address, credential string, now time.Time) (*bus.Identity, error) {
	id, err := r.directory.ValidateCredential(ctx, credential)
	if err != nil {
		return nil, err
	}
	err = r.mappings.Put(ctx, store.IdentityMapping{
		Address:    address,
		IdentityID: id.ID,
		LastAccess: now,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("address bound", "address", address, "identity", id.ID)
	return id, nil
}

// Forget removes the binding for address. Subsequent resolves yield
// pending_credential until the user re-authenticates.
func (r *Resolver) Forget(ctx context.Context, address string) error {
	if err := r.mappings.Delete(ctx, address); err != nil {
		return err
	}
	r.log.Info("address forgotten", "address", address)
	return nil
}

// SweepExpired purges mappings whose last access is older than the TTL.
func (r *Resolver) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	return r.mappings.DeleteExpired(ctx, now.Add(-r.ttl))
}

// IsForgetCommand reports whether text, normalized, is one of the configured
// forget phrases. Only whole-message matches count; mentioning the word
// inside a longer sentence does not wipe the binding.
func (r *Resolver) IsForgetCommand(text string) bool {
	n := classify.Normalize(text)
	for _, p := range r.forget {
		if n == p {
			return true
		}
	}
	return false
}

// ExtractCredential pulls the first credential-shaped token (7 or 8 digits)
// out of text. Empty string when none is present.
func ExtractCredential(text string) string {
	return credentialRe.FindString(text)
}
