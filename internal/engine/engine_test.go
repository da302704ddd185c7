package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nextcampus/aula/internal/bus"
	"github.com/nextcampus/aula/internal/config"
	"github.com/nextcampus/aula/internal/identity"
	"github.com/nextcampus/aula/internal/store/mem"
)

type chanEmitter struct {
	ch chan bus.Response
}

func (e *chanEmitter) Emit(_ context.Context, resp bus.Response) error {
	e.ch <- resp
	return nil
}

func newTestEngine(t *testing.T, windowMs int) (*Engine, *chanEmitter) {
	t.Helper()
	cfg := config.Default()
	cfg.Debounce.WindowMs = windowMs
	cfg.Hygiene.SweepSchedule = "" // no background loop in tests

	emitter := &chanEmitter{ch: make(chan bus.Response, 16)}
	dir := identity.NewStaticDirectory([]bus.Identity{
		{ID: "stu-1", Name: "Ana García", Document: "12345678", Kind: "student"},
	})
	eng := New(cfg, mem.NewStores(), emitter, Options{
		Directory: dir,
		Logger:    slog.New(slog.DiscardHandler),
	})
	t.Cleanup(eng.Stop)
	return eng, emitter
}

func (e *chanEmitter) next(t *testing.T) bus.Response {
	t.Helper()
	select {
	case resp := <-e.ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatalf("no response emitted")
		return bus.Response{}
	}
}

func (e *chanEmitter) none(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case resp := <-e.ch:
		t.Fatalf("unexpected response: %+v", resp)
	case <-time.After(within):
	}
}

func submit(eng *Engine, key, text string) {
	eng.Submit(bus.InboundMessage{SessionKey: key, Text: text, ArrivalTime: time.Now()})
}

func TestBurstProducesSingleResponse(t *testing.T) {
	eng, emitter := newTestEngine(t, 80)

	submit(eng, "549-1", "Hola")
	time.Sleep(20 * time.Millisecond)
	submit(eng, "549-1", "quiero ver mis horarios")

	resp := emitter.next(t)
	// Combined turn: greeting stripped, classified on the remainder.
	if resp.Metadata.Category != "academic" {
		t.Errorf("category = %q, want academic", resp.Metadata.Category)
	}
	emitter.none(t, 300*time.Millisecond)
}

func TestGapProducesTwoResponses(t *testing.T) {
	eng, emitter := newTestEngine(t, 50)

	submit(eng, "549-1", "Hola")
	first := emitter.next(t)
	if first.Metadata.Category != "greeting" {
		t.Errorf("first category = %q, want greeting", first.Metadata.Category)
	}

	submit(eng, "549-1", "quiero ver mis horarios")
	second := emitter.next(t)
	if second.Metadata.Category != "academic" {
		t.Errorf("second category = %q, want academic", second.Metadata.Category)
	}
}

func TestAuthenticationEndToEnd(t *testing.T) {
	eng, emitter := newTestEngine(t, 30)

	submit(eng, "549-1", "cuanto debo")
	ask := emitter.next(t)
	if ask.Metadata.Category != "financial" {
		t.Errorf("pre-auth category = %q", ask.Metadata.Category)
	}

	submit(eng, "549-1", "12345678")
	emitter.next(t) // welcome

	submit(eng, "549-1", "quiero ver mis horarios")
	answer := emitter.next(t)
	if answer.Metadata.Category != "academic" {
		t.Errorf("post-auth category = %q", answer.Metadata.Category)
	}

	stats := eng.Sessions().Stats()
	if stats.Authenticated != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSweepKeepsBusySessions(t *testing.T) {
	eng, _ := newTestEngine(t, 5000)

	submit(eng, "busy", "hola") // timer armed for 5s, never fires in test
	eng.Sessions().SetClock(func() time.Time { return time.Now().Add(48 * time.Hour) })
	eng.Sweep(context.Background())

	if _, ok := eng.Sessions().Peek("busy"); !ok {
		t.Errorf("session with pending debounce work was evicted")
	}
}

func TestReloadConcurrentWithSweep(t *testing.T) {
	eng, _ := newTestEngine(t, 30)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			eng.Reload(config.Default())
		}()
		go func() {
			defer wg.Done()
			eng.Sweep(context.Background())
		}()
	}
	wg.Wait()
}

func TestInvalidSweepScheduleDisablesHygiene(t *testing.T) {
	cfg := config.Default()
	cfg.Debounce.WindowMs = 30
	cfg.Hygiene.SweepSchedule = "not a cron"

	log := slog.New(slog.DiscardHandler)
	eng := New(cfg, mem.NewStores(), &chanEmitter{ch: make(chan bus.Response, 1)}, Options{Logger: log})
	eng.Start()
	if eng.hygieneStop != nil {
		t.Errorf("hygiene loop started with invalid schedule")
	}
	eng.Stop()
}

func TestReloadSwapsCategories(t *testing.T) {
	eng, emitter := newTestEngine(t, 30)

	next := config.Default()
	next.Classification.Categories = []config.CategoryConfig{
		{Name: "sports", Keywords: []string{"partido"}, AuthExempt: true},
	}
	eng.Reload(next)

	submit(eng, "549-1", "cuando es el partido")
	resp := emitter.next(t)
	if resp.Metadata.Category != "sports" {
		t.Errorf("category after reload = %q", resp.Metadata.Category)
	}
}
