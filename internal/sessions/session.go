package sessions

import (
	"time"

	"github.com/nextcampus/aula/internal/bus"
)

// AuthState is the session's authentication state.
type AuthState string

const (
	StateAnonymous         AuthState = "anonymous"
	StatePendingCredential AuthState = "pending_credential"
	StateAuthenticated     AuthState = "authenticated"
)

// ConvContext is the short-lived conversational memory used for follow-up
// reference resolution ("y mañana?" after a schedule query).
type ConvContext struct {
	LastCategory string
	LastResult   string
	At           time.Time
}

// Fresh reports whether the context is younger than ttl.
func (c ConvContext) Fresh(now time.Time, ttl time.Duration) bool {
	return c.LastCategory != "" && now.Sub(c.At) <= ttl
}

// Session is the per-conversation state. It is owned by the Registry and
// must only be mutated inside Registry.Do, which serializes access per key.
type Session struct {
	Key          string
	Channel      string
	AuthState    AuthState
	Identity     *bus.Identity
	Created      time.Time
	LastActivity time.Time
	LastGreeting time.Time
	Context      ConvContext
}

// View is an immutable snapshot of a session, safe to use outside Do.
type View struct {
	Key          string
	Channel      string
	AuthState    AuthState
	Identity     *bus.Identity
	Created      time.Time
	LastActivity time.Time
	LastGreeting time.Time
	Context      ConvContext
}

func (s *Session) view() View {
	v := View{
		Key:          s.Key,
		Channel:      s.Channel,
		AuthState:    s.AuthState,
		Created:      s.Created,
		LastActivity: s.LastActivity,
		LastGreeting: s.LastGreeting,
		Context:      s.Context,
	}
	if s.Identity != nil {
		id := *s.Identity
		v.Identity = &id
	}
	return v
}
