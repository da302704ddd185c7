package escalate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextcampus/aula/internal/store"
	"github.com/nextcampus/aula/internal/store/mem"
)

type captureSink struct {
	recs []store.EscalationRecord
	err  error
}

func (c *captureSink) Deliver(_ context.Context, rec store.EscalationRecord) error {
	c.recs = append(c.recs, rec)
	return c.err
}

func TestRaisePersistsAndForwards(t *testing.T) {
	sink := &captureSink{}
	tr := NewTracker(mem.NewEscalationStore(), sink, nil)
	ctx := context.Background()

	rec, err := tr.Raise(ctx, "s1", "handler failure", "billing", "normal")
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if rec.Status != store.EscalationPending || rec.Department != "billing" {
		t.Errorf("record = %+v", rec)
	}
	if len(sink.recs) != 1 || sink.recs[0].ID != rec.ID {
		t.Errorf("sink got %+v", sink.recs)
	}

	pending, err := tr.ListPending(ctx)
	if err != nil || len(pending) != 1 {
		t.Errorf("pending = %v, %v", pending, err)
	}
}

func TestRaiseSurvivesSinkFailure(t *testing.T) {
	sink := &captureSink{err: errors.New("webhook down")}
	tr := NewTracker(mem.NewEscalationStore(), sink, nil)

	rec, err := tr.Raise(context.Background(), "s1", "unclassifiable turn", "student-services", "normal")
	if err != nil {
		t.Fatalf("Raise with failing sink: %v", err)
	}

	pending, _ := tr.ListPending(context.Background())
	if len(pending) != 1 || pending[0].ID != rec.ID {
		t.Errorf("record lost on sink failure: %v", pending)
	}
}

func TestRaiseWithoutSink(t *testing.T) {
	tr := NewTracker(mem.NewEscalationStore(), nil, nil)
	if _, err := tr.Raise(context.Background(), "s1", "r", "d", "high"); err != nil {
		t.Fatalf("Raise without sink: %v", err)
	}
}

func TestResolve(t *testing.T) {
	tr := NewTracker(mem.NewEscalationStore(), nil, nil)
	ctx := context.Background()

	rec, _ := tr.Raise(ctx, "s1", "r", "d", "normal")
	if err := tr.Resolve(ctx, rec.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pending, _ := tr.ListPending(ctx); len(pending) != 0 {
		t.Errorf("still pending after resolve: %v", pending)
	}

	if err := tr.Resolve(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("resolving unknown id: %v", err)
	}
}

func TestClockInjection(t *testing.T) {
	tr := NewTracker(mem.NewEscalationStore(), nil, nil)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return fixed })

	rec, _ := tr.Raise(context.Background(), "s1", "r", "d", "normal")
	if !rec.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, fixed)
	}
}
