package debounce

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextcampus/aula/internal/bus"
)

type collector struct {
	mu    sync.Mutex
	turns []bus.Turn
}

func (c *collector) sink(_ context.Context, turn bus.Turn) {
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
}

func (c *collector) snapshot() []bus.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bus.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func msg(key, text string) bus.InboundMessage {
	return bus.InboundMessage{SessionKey: key, Text: text, ArrivalTime: time.Now()}
}

func TestBurstCombinesIntoOneTurn(t *testing.T) {
	c := &collector{}
	a := New(60*time.Millisecond, " ", c.sink)
	defer a.Stop()

	a.Enqueue(msg("s1", "Hola"))
	time.Sleep(15 * time.Millisecond)
	a.Enqueue(msg("s1", "quiero saber"))
	time.Sleep(15 * time.Millisecond)
	a.Enqueue(msg("s1", "mis horarios"))

	time.Sleep(250 * time.Millisecond)

	turns := c.snapshot()
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if turns[0].Text != "Hola quiero saber mis horarios" {
		t.Errorf("combined text = %q", turns[0].Text)
	}
	if len(turns[0].Fragments) != 3 {
		t.Errorf("fragments = %d, want 3", len(turns[0].Fragments))
	}
	if turns[0].LastArrival.Before(turns[0].FirstArrival) {
		t.Errorf("arrival ordering inverted")
	}
}

func TestGapSplitsTurns(t *testing.T) {
	c := &collector{}
	a := New(50*time.Millisecond, " ", c.sink)
	defer a.Stop()

	a.Enqueue(msg("s1", "Hola"))
	time.Sleep(200 * time.Millisecond)
	a.Enqueue(msg("s1", "Quiero mis horarios"))
	time.Sleep(200 * time.Millisecond)

	turns := c.snapshot()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Text != "Hola" || turns[1].Text != "Quiero mis horarios" {
		t.Errorf("turns = %q, %q", turns[0].Text, turns[1].Text)
	}
}

func TestNoFragmentLostOrDuplicated(t *testing.T) {
	c := &collector{}
	a := New(30*time.Millisecond, " ", c.sink)
	defer a.Stop()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				a.Enqueue(msg("s1", "x"))
				time.Sleep(2 * time.Millisecond)
			}
		}()
	}
	wg.Wait()
	time.Sleep(300 * time.Millisecond)

	total := 0
	for _, turn := range c.snapshot() {
		total += len(turn.Fragments)
	}
	if total != n {
		t.Errorf("delivered %d fragments, want %d", total, n)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	c := &collector{}
	a := New(40*time.Millisecond, " ", c.sink)
	defer a.Stop()

	a.Enqueue(msg("alice", "hola"))
	a.Enqueue(msg("bob", "buenas"))
	time.Sleep(200 * time.Millisecond)

	turns := c.snapshot()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	keys := map[string]bool{}
	for _, turn := range turns {
		keys[turn.SessionKey] = true
	}
	if !keys["alice"] || !keys["bob"] {
		t.Errorf("keys = %v", keys)
	}
}

func TestDeliveryIsFIFOUnderSlowSink(t *testing.T) {
	var mu sync.Mutex
	var order []string
	slow := func(_ context.Context, turn bus.Turn) {
		time.Sleep(40 * time.Millisecond)
		mu.Lock()
		order = append(order, turn.Text)
		mu.Unlock()
	}
	a := New(20*time.Millisecond, " ", slow)
	defer a.Stop()

	a.Enqueue(msg("s1", "first"))
	time.Sleep(80 * time.Millisecond) // first turn flushed, sink still busy
	a.Enqueue(msg("s1", "second"))
	time.Sleep(80 * time.Millisecond)
	a.Enqueue(msg("s1", "third"))
	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != "first,second,third" {
		t.Errorf("delivery order = %v", order)
	}
}

func TestStopDiscardsBufferedFragments(t *testing.T) {
	c := &collector{}
	a := New(500*time.Millisecond, " ", c.sink)

	a.Enqueue(msg("s1", "never flushed"))
	a.Stop()
	time.Sleep(50 * time.Millisecond)

	if turns := c.snapshot(); len(turns) != 0 {
		t.Errorf("got %d turns after Stop, want 0", len(turns))
	}
	if a.HasPending("s1") {
		t.Errorf("HasPending after Stop")
	}
}

func TestEnqueueAfterStopDropsFreshKey(t *testing.T) {
	c := &collector{}
	a := New(10*time.Millisecond, " ", c.sink)
	a.Stop()

	// A key never seen before Stop must not arm a timer or emit.
	a.Enqueue(msg("fresh", "late fragment"))
	time.Sleep(100 * time.Millisecond)

	if turns := c.snapshot(); len(turns) != 0 {
		t.Errorf("got %d turns after Stop, want 0", len(turns))
	}
	if a.HasPending("fresh") {
		t.Errorf("state created for fragment enqueued after Stop")
	}
}

func TestHasPending(t *testing.T) {
	c := &collector{}
	a := New(50*time.Millisecond, " ", c.sink)
	defer a.Stop()

	if a.HasPending("s1") {
		t.Fatalf("pending before any fragment")
	}
	a.Enqueue(msg("s1", "hola"))
	if !a.HasPending("s1") {
		t.Fatalf("no pending with live timer")
	}
	time.Sleep(200 * time.Millisecond)
	if a.HasPending("s1") {
		t.Errorf("pending after flush and delivery")
	}
}
