// Package debounce coalesces bursts of inbound fragments into combined turns.
//
// Each session owns at most one live timer. A new fragment cancels and
// replaces the timer with a deadline of arrival_time + window. When the timer
// fires the buffer is drained atomically into one turn, which is delivered to
// the sink strictly after the previous turn for the same session has been
// consumed (single-flight, FIFO). Different sessions never block each other.
package debounce

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextcampus/aula/internal/bus"
)

// Sink consumes one combined turn. The aggregator calls it sequentially per
// session; it may block for as long as the turn takes to process.
type Sink func(ctx context.Context, turn bus.Turn)

// Aggregator debounces inbound fragments per session key.
type Aggregator struct {
	window time.Duration
	sep    string
	sink   Sink

	mu     sync.Mutex
	states map[string]*state
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type fragment struct {
	text string
	at   time.Time
}

type state struct {
	mu      sync.Mutex
	channel string
	frags   []fragment
	timer   *time.Timer
	gen     uint64 // bumped on every cancel-and-replace; stale fires no-op

	queue      []bus.Turn
	delivering bool
	closed     bool
}

// New creates an aggregator delivering combined turns to sink.
func New(window time.Duration, separator string, sink Sink) *Aggregator {
	if separator == "" {
		separator = " "
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator{
		window: window,
		sep:    separator,
		sink:   sink,
		states: make(map[string]*state),
		ctx:    ctx,
		cancel: cancel,
	}
}

// state returns the session's state, creating it if needed. The closed check
// shares the critical section with the insertion so a fragment for a fresh
// key cannot slip past Stop's snapshot.
func (a *Aggregator) state(key string) (*state, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, false
	}
	st, ok := a.states[key]
	if !ok {
		st = &state{}
		a.states[key] = st
	}
	return st, true
}

// Enqueue buffers one fragment and arms (or re-arms) the session's timer.
// Safe for concurrent use across arbitrary session keys.
func (a *Aggregator) Enqueue(msg bus.InboundMessage) {
	st, ok := a.state(msg.SessionKey)
	if !ok {
		slog.Warn("aggregator closed, dropping fragment", "session", msg.SessionKey)
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}

	at := msg.ArrivalTime
	if at.IsZero() {
		at = time.Now()
	}
	st.frags = append(st.frags, fragment{text: msg.Text, at: at})
	if st.channel == "" {
		st.channel = msg.SourceChannel
	}

	// Cancel-and-replace: the prior deadline is invalidated before the new
	// one is armed, so at most one timer is live per session.
	st.gen++
	gen := st.gen
	if st.timer != nil {
		st.timer.Stop()
	}
	delay := time.Until(at.Add(a.window))
	if delay < 0 {
		delay = 0
	}
	key := msg.SessionKey
	st.timer = time.AfterFunc(delay, func() { a.flush(key, st, gen) })
}

// flush drains the buffer into one turn and hands it to the delivery queue.
// A stale generation means the timer was cancelled between fire and lock.
func (a *Aggregator) flush(key string, st *state, gen uint64) {
	st.mu.Lock()
	if st.closed || st.gen != gen || len(st.frags) == 0 {
		st.mu.Unlock()
		return
	}

	texts := make([]string, len(st.frags))
	for i, f := range st.frags {
		texts[i] = f.text
	}
	turn := bus.Turn{
		ID:            fmt.Sprintf("turn-%s", uuid.NewString()[:8]),
		SessionKey:    key,
		Text:          strings.Join(texts, a.sep),
		Fragments:     texts,
		SourceChannel: st.channel,
		FirstArrival:  st.frags[0].at,
		LastArrival:   st.frags[len(st.frags)-1].at,
	}
	st.frags = nil
	st.timer = nil

	st.queue = append(st.queue, turn)
	if !st.delivering {
		st.delivering = true
		a.wg.Add(1)
		go a.deliver(st)
	}
	st.mu.Unlock()
}

// deliver drains the per-session turn queue one turn at a time. Running at
// most one deliver goroutine per session gives the FIFO single-flight
// guarantee at the aggregator→orchestrator boundary.
func (a *Aggregator) deliver(st *state) {
	defer a.wg.Done()
	for {
		st.mu.Lock()
		if len(st.queue) == 0 {
			st.delivering = false
			st.mu.Unlock()
			return
		}
		turn := st.queue[0]
		st.queue = st.queue[1:]
		st.mu.Unlock()

		a.sink(a.ctx, turn)
	}
}

// HasPending reports whether the session has buffered fragments, a live
// timer, or an undelivered turn. Used by the eviction sweep.
func (a *Aggregator) HasPending(key string) bool {
	a.mu.Lock()
	st, ok := a.states[key]
	a.mu.Unlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.frags) > 0 || st.timer != nil || st.delivering || len(st.queue) > 0
}

// Forget drops the aggregator state for an evicted session. Pending work
// blocks the drop (callers check HasPending first via the eviction sweep).
func (a *Aggregator) Forget(key string) {
	a.mu.Lock()
	st, ok := a.states[key]
	if ok {
		st.mu.Lock()
		if len(st.frags) == 0 && st.timer == nil && !st.delivering && len(st.queue) == 0 {
			delete(a.states, key)
		}
		st.mu.Unlock()
	}
	a.mu.Unlock()
}

// Stop cancels all outstanding timers without emitting partial turns, then
// waits for in-flight deliveries to finish. Buffered fragments that never
// reached their deadline are discarded; already-drained turns still complete.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.closed = true
	states := make([]*state, 0, len(a.states))
	for _, st := range a.states {
		states = append(states, st)
	}
	a.mu.Unlock()

	for _, st := range states {
		st.mu.Lock()
		st.closed = true
		st.gen++
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.frags = nil
		st.mu.Unlock()
	}

	a.wg.Wait()
	a.cancel()
}
