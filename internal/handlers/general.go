package handlers

import (
	"context"

	"github.com/nextcampus/aula/internal/providers"
)

const generalSystem = `You are a university assistant. The user's message did
not match any known topic. Answer briefly if you can, otherwise ask one short
clarifying question. Reply in the user's language (default Spanish).`

const defaultClarify = "No estoy seguro de haber entendido. ¿Podrías contarme un poco más sobre lo que necesitás? Puedo ayudarte con horarios, pagos, fechas académicas y reglamentos."

// GeneralHandler is the catch-all for unclassified turns. With a model it
// attempts a brief answer; without one it asks the user to rephrase.
type GeneralHandler struct {
	completer providers.Completer // may be nil
}

// NewGeneralHandler creates the catch-all handler.
func NewGeneralHandler(completer providers.Completer) *GeneralHandler {
	return &GeneralHandler{completer: completer}
}

func (h *GeneralHandler) Handle(ctx context.Context, req Request) (Response, error) {
	if h.completer == nil {
		return Response{Text: defaultClarify}, nil
	}
	text, err := h.completer.Complete(ctx, generalSystem, buildPrompt(req))
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text}, nil
}
