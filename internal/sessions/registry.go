package sessions

import (
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

const shardCount = 32

// Registry owns all per-conversation session state. The map is sharded so
// flows for unrelated sessions never contend; mutations of a single session
// are serialized through Do.
type Registry struct {
	shards [shardCount]shard
	now    func() time.Time
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu sync.Mutex // serializes Do for this key
	s  *Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{now: time.Now}
	for i := range r.shards {
		r.shards[i].sessions = make(map[string]*entry)
	}
	return r
}

// SetClock overrides the registry clock. Tests only.
func (r *Registry) SetClock(now func() time.Time) { r.now = now }

func (r *Registry) shard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &r.shards[h.Sum32()%shardCount]
}

func (r *Registry) getOrCreate(key string) *entry {
	sh := r.shard(key)

	sh.mu.RLock()
	e, ok := sh.sessions[key]
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.sessions[key]; ok {
		return e
	}
	now := r.now()
	e = &entry{s: &Session{
		Key:          key,
		AuthState:    StateAnonymous,
		Created:      now,
		LastActivity: now,
	}}
	sh.sessions[key] = e
	slog.Debug("session created", "session", key)
	return e
}

// Do runs fn with exclusive access to the session for key, creating the
// session on first use. This is the only way to mutate session state.
func (r *Registry) Do(key string, fn func(*Session)) {
	e := r.getOrCreate(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.s)
}

// Snapshot returns an immutable copy of the session, creating it if absent.
func (r *Registry) Snapshot(key string) View {
	var v View
	r.Do(key, func(s *Session) { v = s.view() })
	return v
}

// Peek returns a snapshot without creating the session.
func (r *Registry) Peek(key string) (View, bool) {
	sh := r.shard(key)
	sh.mu.RLock()
	e, ok := sh.sessions[key]
	sh.mu.RUnlock()
	if !ok {
		return View{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.view(), true
}

// Touch updates the session's last-activity timestamp.
func (r *Registry) Touch(key string) {
	now := r.now()
	r.Do(key, func(s *Session) { s.LastActivity = now })
}

// Evict removes the session for key. Absent keys are ignored.
func (r *Registry) Evict(key string) {
	sh := r.shard(key)
	sh.mu.Lock()
	delete(sh.sessions, key)
	sh.mu.Unlock()
}

// EvictIdle removes sessions idle for longer than ttl. inFlight reports
// whether a session still holds pending unflushed fragments or a live
// debounce timer; such sessions are never evicted.
func (r *Registry) EvictIdle(ttl time.Duration, inFlight func(key string) bool) int {
	cutoff := r.now().Add(-ttl)
	evicted := 0

	for i := range r.shards {
		sh := &r.shards[i]

		sh.mu.RLock()
		var stale []string
		for key, e := range sh.sessions {
			e.mu.Lock()
			idle := e.s.LastActivity.Before(cutoff)
			e.mu.Unlock()
			if idle {
				stale = append(stale, key)
			}
		}
		sh.mu.RUnlock()

		for _, key := range stale {
			if inFlight != nil && inFlight(key) {
				continue
			}
			sh.mu.Lock()
			// Re-check under the write lock: activity may have arrived.
			if e, ok := sh.sessions[key]; ok {
				e.mu.Lock()
				if e.s.LastActivity.Before(cutoff) {
					delete(sh.sessions, key)
					evicted++
				}
				e.mu.Unlock()
			}
			sh.mu.Unlock()
		}
	}

	if evicted > 0 {
		slog.Info("idle sessions evicted", "count", evicted)
	}
	return evicted
}

// Stats summarizes registry contents.
type Stats struct {
	Total         int `json:"total"`
	Authenticated int `json:"authenticated"`
	Pending       int `json:"pending_credential"`
}

// Stats returns a point-in-time summary of all sessions.
func (r *Registry) Stats() Stats {
	var st Stats
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, e := range sh.sessions {
			e.mu.Lock()
			st.Total++
			switch e.s.AuthState {
			case StateAuthenticated:
				st.Authenticated++
			case StatePendingCredential:
				st.Pending++
			}
			e.mu.Unlock()
		}
		sh.mu.RUnlock()
	}
	return st
}
