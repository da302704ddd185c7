// Package escalate records and forwards hand-offs to human staff.
package escalate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextcampus/aula/internal/store"
)

// Sink forwards an escalation to the receiving side (ticketing, ops chat).
type Sink interface {
	Deliver(ctx context.Context, rec store.EscalationRecord) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec store.EscalationRecord) error

func (f SinkFunc) Deliver(ctx context.Context, rec store.EscalationRecord) error {
	return f(ctx, rec)
}

// Tracker persists escalations and forwards them best-effort. Raising never
// fails on a sink error; the record stays pending so staff can pick it up
// from the store.
type Tracker struct {
	escalations store.EscalationStore
	sink        Sink
	log         *slog.Logger

	now func() time.Time
}

// NewTracker creates a tracker. sink may be nil when no forward target is
// configured.
func NewTracker(escalations store.EscalationStore, sink Sink, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		escalations: escalations,
		sink:        sink,
		log:         log,
		now:         time.Now,
	}
}

// Raise records an escalation for sessionKey and attempts one forward to the
// sink. The returned record is always persisted, even when forwarding fails.
func (t *Tracker) Raise(ctx context.Context, sessionKey, reason, department, urgency string) (store.EscalationRecord, error) {
	rec := store.EscalationRecord{
		ID:         uuid.New(),
		SessionKey: sessionKey,
		Reason:     reason,
		Department: department,
		Urgency:    urgency,
		Status:     store.EscalationPending,
		CreatedAt:  t.now(),
	}
	if err := t.escalations.Insert(ctx, rec); err != nil {
		return store.EscalationRecord{}, err
	}
	t.log.Info("escalation raised",
		"id", rec.ID, "session", sessionKey, "department", department, "urgency", urgency)

	if t.sink != nil {
		if err := t.sink.Deliver(ctx, rec); err != nil {
			t.log.Warn("escalation forward failed", "id", rec.ID, "error", err)
		}
	}
	return rec, nil
}

// Resolve marks a pending escalation as handled.
func (t *Tracker) Resolve(ctx context.Context, id uuid.UUID) error {
	return t.escalations.Resolve(ctx, id, t.now())
}

// ListPending returns all unresolved escalations.
func (t *Tracker) ListPending(ctx context.Context) ([]store.EscalationRecord, error) {
	return t.escalations.ListPending(ctx)
}

// SetClock overrides the time source for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }
