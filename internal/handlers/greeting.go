package handlers

import (
	"context"
	"fmt"

	"github.com/nextcampus/aula/internal/providers"
)

const greetingSystem = `You write the opening line of a university assistant
chat in the user's language (default Spanish). One or two short sentences:
greet the user by name if given, say you can help with schedules, payments,
academic dates and regulations. No emojis beyond at most one.`

const defaultWarmGreeting = "¡Hola! Soy el asistente virtual de la universidad. Puedo ayudarte con horarios, pagos, fechas académicas y reglamentos. ¿En qué te puedo ayudar?"

const defaultTerseGreeting = "¡Hola de nuevo! ¿En qué te puedo ayudar?"

// GreetingHandler answers pure-greeting turns. Warm greetings are generated
// by the model when one is available; everything else falls back to fixed
// text so a greeting never errors out.
type GreetingHandler struct {
	completer providers.Completer // may be nil
	terse     string
}

// NewGreetingHandler creates a greeting handler. terse overrides the default
// short acknowledgement when non-empty.
func NewGreetingHandler(completer providers.Completer, terse string) *GreetingHandler {
	if terse == "" {
		terse = defaultTerseGreeting
	}
	return &GreetingHandler{completer: completer, terse: terse}
}

func (h *GreetingHandler) Handle(ctx context.Context, req Request) (Response, error) {
	if !req.Warm {
		return Response{Text: h.terse}, nil
	}
	if h.completer == nil {
		return Response{Text: defaultWarmGreeting}, nil
	}

	prompt := req.Turn.Text
	if req.Identity != nil && req.Identity.Name != "" {
		prompt = fmt.Sprintf("User name: %s\n\n%s", req.Identity.Name, req.Turn.Text)
	}
	text, err := h.completer.Complete(ctx, greetingSystem, prompt)
	if err != nil {
		return Response{Text: defaultWarmGreeting}, nil
	}
	return Response{Text: text}, nil
}
