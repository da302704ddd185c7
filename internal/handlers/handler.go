// Package handlers produces replies for classified turns. The orchestrator
// routes each turn's category to a registered handler.
package handlers

import (
	"context"
	"sync"

	"github.com/nextcampus/aula/internal/bus"
)

// Request is everything a handler gets to answer one turn.
type Request struct {
	Turn     bus.Turn
	Category string
	Entities map[string]string
	// Identity is nil for auth-exempt categories when the user has not
	// authenticated.
	Identity *bus.Identity
	// LastCategory is the previous turn's category when the session context
	// is still fresh, empty otherwise.
	LastCategory string
	// Warm marks a greeting turn that should get the full welcome rather
	// than the terse acknowledgement.
	Warm bool
}

// Response is a handler's reply. A handler that answered successfully can
// still request a human hand-off by setting Escalate; Reason and Department
// refine the resulting escalation record.
type Response struct {
	Text       string
	Escalate   bool
	Reason     string
	Department string
}

// Handler answers one turn.
type Handler interface {
	Handle(ctx context.Context, req Request) (Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Registry maps category names to handlers, with a fallback for anything
// unregistered. Safe for concurrent lookup while Register runs (hot reload).
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler
}

// NewRegistry creates a registry with fallback as the catch-all handler.
func NewRegistry(fallback Handler) *Registry {
	return &Registry{handlers: make(map[string]Handler), fallback: fallback}
}

// Register binds category to h, replacing any previous binding.
func (r *Registry) Register(category string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[category] = h
}

// Lookup returns the handler for category, falling back to the catch-all.
// The second return is false only when neither exists.
func (r *Registry) Lookup(category string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handlers[category]; ok {
		return h, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Reset drops all category bindings, keeping the fallback. Used on config
// reload before re-registering.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]Handler)
}
