package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nextcampus/aula/internal/bus"
	"github.com/nextcampus/aula/internal/providers"
)

type fakeCompleter struct {
	reply      string
	err        error
	lastSystem string
	lastPrompt string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.lastSystem = system
	f.lastPrompt = prompt
	return f.reply, f.err
}

func TestRegistryLookupAndFallback(t *testing.T) {
	fallback := HandlerFunc(func(_ context.Context, _ Request) (Response, error) {
		return Response{Text: "fallback"}, nil
	})
	reg := NewRegistry(fallback)
	reg.Register("academic", HandlerFunc(func(_ context.Context, _ Request) (Response, error) {
		return Response{Text: "academic"}, nil
	}))

	h, ok := reg.Lookup("academic")
	if !ok {
		t.Fatalf("registered handler not found")
	}
	if resp, _ := h.Handle(context.Background(), Request{}); resp.Text != "academic" {
		t.Errorf("got %q", resp.Text)
	}

	h, ok = reg.Lookup("unknown")
	if !ok {
		t.Fatalf("fallback not found")
	}
	if resp, _ := h.Handle(context.Background(), Request{}); resp.Text != "fallback" {
		t.Errorf("got %q", resp.Text)
	}

	reg.Reset()
	if h, _ := reg.Lookup("academic"); h == nil {
		t.Fatalf("fallback gone after reset")
	} else if resp, _ := h.Handle(context.Background(), Request{}); resp.Text != "fallback" {
		t.Errorf("reset kept category binding: %q", resp.Text)
	}
}

func TestLLMHandlerPrompt(t *testing.T) {
	fc := &fakeCompleter{reply: "tu proximo parcial es el lunes"}
	h := NewLLMHandler(fc, "you answer calendar questions")

	req := Request{
		Turn:     bus.Turn{Text: "cuando es el parcial"},
		Category: "calendar",
		Identity: &bus.Identity{Name: "Ana García", Kind: "student"},
		Entities: map[string]string{"date_ref": "proximo"},
	}
	resp, err := h.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Text != "tu proximo parcial es el lunes" {
		t.Errorf("text = %q", resp.Text)
	}
	if fc.lastSystem != "you answer calendar questions" {
		t.Errorf("system = %q", fc.lastSystem)
	}
	for _, want := range []string{"Ana García", "proximo", "cuando es el parcial"} {
		if !strings.Contains(fc.lastPrompt, want) {
			t.Errorf("prompt missing %q: %q", want, fc.lastPrompt)
		}
	}
}

func TestLLMHandlerPropagatesError(t *testing.T) {
	h := NewLLMHandler(&fakeCompleter{err: errors.New("rate limited")}, "sys")
	if _, err := h.Handle(context.Background(), Request{Turn: bus.Turn{Text: "x"}}); err == nil {
		t.Errorf("error swallowed")
	}
}

func TestGreetingHandler(t *testing.T) {
	t.Run("terse", func(t *testing.T) {
		h := NewGreetingHandler(nil, "hola otra vez")
		resp, _ := h.Handle(context.Background(), Request{Warm: false})
		if resp.Text != "hola otra vez" {
			t.Errorf("terse = %q", resp.Text)
		}
	})

	t.Run("warm with model", func(t *testing.T) {
		fc := &fakeCompleter{reply: "¡Hola Ana!"}
		h := NewGreetingHandler(fc, "")
		resp, _ := h.Handle(context.Background(), Request{
			Warm:     true,
			Turn:     bus.Turn{Text: "hola"},
			Identity: &bus.Identity{Name: "Ana García"},
		})
		if resp.Text != "¡Hola Ana!" {
			t.Errorf("warm = %q", resp.Text)
		}
		if !strings.Contains(fc.lastPrompt, "Ana García") {
			t.Errorf("prompt missing name: %q", fc.lastPrompt)
		}
	})

	t.Run("warm model failure falls back to static", func(t *testing.T) {
		h := NewGreetingHandler(&fakeCompleter{err: errors.New("down")}, "")
		resp, err := h.Handle(context.Background(), Request{Warm: true})
		if err != nil {
			t.Fatalf("greeting errored: %v", err)
		}
		if resp.Text == "" {
			t.Errorf("empty fallback greeting")
		}
	})

	t.Run("warm without model", func(t *testing.T) {
		h := NewGreetingHandler(nil, "")
		resp, _ := h.Handle(context.Background(), Request{Warm: true})
		if resp.Text == "" {
			t.Errorf("empty greeting")
		}
	})
}

func TestGeneralHandlerWithoutModel(t *testing.T) {
	h := NewGeneralHandler(nil)
	resp, err := h.Handle(context.Background(), Request{Turn: bus.Turn{Text: "???"}})
	if err != nil || resp.Text == "" {
		t.Errorf("got %q, %v", resp.Text, err)
	}
}

var _ providers.Completer = (*fakeCompleter)(nil)
