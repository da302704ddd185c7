package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextcampus/aula/internal/providers"
)

// LLMHandler answers a turn with a model completion using a per-category
// system prompt.
type LLMHandler struct {
	completer providers.Completer
	system    string
}

// NewLLMHandler creates a handler with the given system prompt.
func NewLLMHandler(completer providers.Completer, system string) *LLMHandler {
	return &LLMHandler{completer: completer, system: system}
}

func (h *LLMHandler) Handle(ctx context.Context, req Request) (Response, error) {
	text, err := h.completer.Complete(ctx, h.system, buildPrompt(req))
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text}, nil
}

// buildPrompt assembles the user prompt with whatever session context is
// available. The model sees the turn text last so it anchors the answer.
func buildPrompt(req Request) string {
	var sb strings.Builder
	if req.Identity != nil && req.Identity.Name != "" {
		fmt.Fprintf(&sb, "User: %s (%s)\n", req.Identity.Name, req.Identity.Kind)
	}
	if req.LastCategory != "" && req.LastCategory != req.Category {
		fmt.Fprintf(&sb, "Previous topic: %s\n", req.LastCategory)
	}
	for k, v := range req.Entities {
		fmt.Fprintf(&sb, "Detected %s: %s\n", k, v)
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(req.Turn.Text)
	return sb.String()
}
