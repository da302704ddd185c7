// Package orchestrate drives one debounced turn through the conversation
// state machine: forget commands, identity resolution, credential capture,
// classification, greeting policy, handler dispatch and escalation.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextcampus/aula/internal/bus"
	"github.com/nextcampus/aula/internal/classify"
	"github.com/nextcampus/aula/internal/config"
	"github.com/nextcampus/aula/internal/escalate"
	"github.com/nextcampus/aula/internal/handlers"
	"github.com/nextcampus/aula/internal/identity"
	"github.com/nextcampus/aula/internal/sessions"
)

// TierContext marks results resolved from fresh conversational context
// rather than the classifier cascade.
const TierContext classify.Tier = "context"

const contextConfidence = 0.5

const defaultHandlerTimeout = 30 * time.Second

// Orchestrator turns classified input into responses. One instance serves
// all sessions; per-session ordering comes from the aggregator's delivery
// queue and the registry's per-key serialization.
type Orchestrator struct {
	registry   *sessions.Registry
	classifier *classify.Classifier
	resolver   *identity.Resolver
	tracker    *escalate.Tracker
	handlers   *handlers.Registry
	log        *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time

	mu  sync.RWMutex
	cfg *config.Config
}

// New creates an orchestrator.
func New(cfg *config.Config, registry *sessions.Registry, classifier *classify.Classifier,
	resolver *identity.Resolver, tracker *escalate.Tracker, registryOfHandlers *handlers.Registry,
	log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		registry:   registry,
		classifier: classifier,
		resolver:   resolver,
		tracker:    tracker,
		handlers:   registryOfHandlers,
		log:        log,
		tracer:     otel.Tracer("aula/orchestrate"),
		now:        time.Now,
		cfg:        cfg,
	}
}

// SetClock overrides the time source for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Reload swaps the configuration. Classifier and handler registry reloads
// are the caller's responsibility; this picks up thresholds and policies.
func (o *Orchestrator) Reload(cfg *config.Config) {
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
}

func (o *Orchestrator) config() *config.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

func (o *Orchestrator) greetingThreshold() time.Duration {
	return time.Duration(o.config().Greeting.ThresholdHours) * time.Hour
}

func (o *Orchestrator) contextTTL() time.Duration {
	return time.Duration(o.config().Sessions.ContextTTLMinutes) * time.Minute
}

// Process runs one turn through the state machine and returns the reply.
// It never returns an error for user-facing flows; persistence failures
// degrade to the apology path.
func (o *Orchestrator) Process(ctx context.Context, turn bus.Turn) bus.Response {
	ctx, span := o.tracer.Start(ctx, "turn.process", trace.WithAttributes(
		attribute.String("session.key", turn.SessionKey),
		attribute.Int("turn.fragments", len(turn.Fragments)),
	))
	defer span.End()

	now := o.now()
	o.registry.Do(turn.SessionKey, func(s *sessions.Session) {
		s.LastActivity = now
		if s.Channel == "" {
			s.Channel = turn.SourceChannel
		}
	})

	resp := o.process(ctx, turn, now)

	span.SetAttributes(
		attribute.String("turn.category", resp.Metadata.Category),
		attribute.String("turn.tier", resp.Metadata.Tier),
		attribute.Float64("turn.confidence", resp.Metadata.Confidence),
		attribute.Bool("turn.escalated", resp.Metadata.Escalated),
	)
	return resp
}

func (o *Orchestrator) process(ctx context.Context, turn bus.Turn, now time.Time) bus.Response {
	// Forget commands beat everything, including authentication itself.
	if o.resolver.IsForgetCommand(turn.Text) {
		return o.handleForget(ctx, turn)
	}

	res, err := o.resolver.Resolve(ctx, turn.SessionKey, now)
	if err != nil {
		o.log.Error("identity resolve failed", "session", turn.SessionKey, "error", err)
		return o.reply(turn, msgApology, bus.ResponseMetadata{})
	}

	if res.State == identity.StateAuthenticated {
		o.registry.Do(turn.SessionKey, func(s *sessions.Session) {
			s.AuthState = sessions.StateAuthenticated
			s.Identity = res.Identity
		})
		return o.handleClassified(ctx, turn, turn.Text, res.Identity, now)
	}

	return o.handleUnauthenticated(ctx, turn, now)
}

func (o *Orchestrator) handleForget(ctx context.Context, turn bus.Turn) bus.Response {
	if err := o.resolver.Forget(ctx, turn.SessionKey); err != nil {
		o.log.Error("forget failed", "session", turn.SessionKey, "error", err)
		return o.reply(turn, msgApology, bus.ResponseMetadata{})
	}
	o.registry.Do(turn.SessionKey, func(s *sessions.Session) {
		s.AuthState = sessions.StateAnonymous
		s.Identity = nil
		s.Context = sessions.ConvContext{}
	})
	return o.reply(turn, msgForgotten, bus.ResponseMetadata{})
}

// handleUnauthenticated covers both fresh sessions and sessions already
// waiting for a credential. A credential anywhere in the turn authenticates;
// auth-exempt categories pass through; everything else gets the credential
// prompt.
func (o *Orchestrator) handleUnauthenticated(ctx context.Context, turn bus.Turn, now time.Time) bus.Response {
	if cred := identity.ExtractCredential(turn.Text); cred != "" {
		id, err := o.resolver.Authenticate(ctx, turn.SessionKey, cred, now)
		switch {
		case err == nil:
			o.registry.Do(turn.SessionKey, func(s *sessions.Session) {
				s.AuthState = sessions.StateAuthenticated
				s.Identity = id
			})
			// Whatever travels with the credential is the actual query.
			rest := strings.TrimSpace(strings.Replace(turn.Text, cred, "", 1))
			if rest == "" {
				return o.reply(turn, msgWelcomeBack, bus.ResponseMetadata{})
			}
			return o.handleClassified(ctx, turn, rest, id, now)
		case errors.Is(err, identity.ErrInvalidCredential):
			o.toPending(turn.SessionKey)
			return o.reply(turn, msgCredentialInvalid, bus.ResponseMetadata{})
		default:
			o.log.Error("credential check failed", "session", turn.SessionKey, "error", err)
			return o.reply(turn, msgApology, bus.ResponseMetadata{})
		}
	}

	result := o.classifier.Classify(ctx, turn.Text)
	if o.authExempt(result.Category) {
		return o.dispatch(ctx, turn, turn.Text, result, nil, now)
	}

	o.toPending(turn.SessionKey)
	return o.reply(turn, msgCredentialRequest, bus.ResponseMetadata{
		Category:   result.Category,
		Confidence: result.Confidence,
		Tier:       string(result.Tier),
	})
}

func (o *Orchestrator) toPending(key string) {
	o.registry.Do(key, func(s *sessions.Session) {
		s.AuthState = sessions.StatePendingCredential
		s.Identity = nil
	})
}

func (o *Orchestrator) authExempt(category string) bool {
	if category == classify.CategoryGreeting {
		return true
	}
	if cat := o.config().Category(category); cat != nil {
		return cat.AuthExempt
	}
	return false
}

func (o *Orchestrator) handleClassified(ctx context.Context, turn bus.Turn, text string, id *bus.Identity, now time.Time) bus.Response {
	result := o.classifier.Classify(ctx, text)

	// Follow-up resolution: an unclassifiable turn inside a fresh context
	// window inherits the previous topic at reduced confidence.
	if result.Category == classify.CategoryGeneral && result.Confidence == 0 {
		snap := o.registry.Snapshot(turn.SessionKey)
		if snap.Context.Fresh(now, o.contextTTL()) {
			result.Category = snap.Context.LastCategory
			result.Confidence = contextConfidence
			result.Tier = TierContext
		}
	}

	return o.dispatch(ctx, turn, text, result, id, now)
}

func (o *Orchestrator) dispatch(ctx context.Context, turn bus.Turn, text string, result classify.Result, id *bus.Identity, now time.Time) bus.Response {
	cfg := o.config()
	meta := bus.ResponseMetadata{
		Category:   result.Category,
		Confidence: result.Confidence,
		Tier:       string(result.Tier),
	}

	req := handlers.Request{
		Turn:     turn,
		Category: result.Category,
		Entities: result.Entities,
		Identity: id,
	}
	req.Turn.Text = text

	switch result.Category {
	case classify.CategoryGreeting:
		o.registry.Do(turn.SessionKey, func(s *sessions.Session) {
			threshold := o.greetingThreshold()
			req.Warm = s.LastGreeting.IsZero() || now.Sub(s.LastGreeting) >= threshold
			s.LastGreeting = now
		})
	case classify.CategoryGeneral:
		if cfg.Classification.GeneralAction == "escalate" {
			return o.escalateTurn(ctx, turn, meta, "unclassifiable turn",
				cfg.Escalations.DefaultDepartment, cfg.Escalations.DefaultUrgency)
		}
		snap := o.registry.Snapshot(turn.SessionKey)
		if snap.Context.Fresh(now, o.contextTTL()) {
			req.LastCategory = snap.Context.LastCategory
		}
	}

	h, ok := o.handlers.Lookup(result.Category)
	if !ok {
		o.log.Error("no handler registered", "category", result.Category)
		return o.reply(turn, msgApology, meta)
	}

	hctx, cancel := context.WithTimeout(ctx, defaultHandlerTimeout)
	defer cancel()
	out, err := h.Handle(hctx, req)
	if err != nil {
		o.log.Error("handler failed", "category", result.Category, "session", turn.SessionKey, "error", err)
		if cat := cfg.Category(result.Category); cat != nil && cat.EscalationEligible {
			return o.escalateTurn(ctx, turn, meta,
				fmt.Sprintf("handler failure: %v", err), cat.Department, cfg.Escalations.DefaultUrgency)
		}
		return o.reply(turn, msgApology, meta)
	}

	// A handler can answer and still ask for a human hand-off.
	if out.Escalate {
		reason := out.Reason
		if reason == "" {
			reason = "handler requested hand-off"
		}
		department := out.Department
		if department == "" {
			if cat := cfg.Category(result.Category); cat != nil {
				department = cat.Department
			}
		}
		return o.escalateWithText(ctx, turn, meta, out.Text, reason, department, cfg.Escalations.DefaultUrgency)
	}

	// Greetings do not overwrite the topical context; a greeting between a
	// schedule query and its follow-up must not break reference resolution.
	if result.Category != classify.CategoryGreeting {
		o.registry.Do(turn.SessionKey, func(s *sessions.Session) {
			s.Context = sessions.ConvContext{
				LastCategory: result.Category,
				LastResult:   out.Text,
				At:           now,
			}
		})
	}

	return o.reply(turn, out.Text, meta)
}

func (o *Orchestrator) escalateTurn(ctx context.Context, turn bus.Turn, meta bus.ResponseMetadata, reason, department, urgency string) bus.Response {
	return o.escalateWithText(ctx, turn, meta, "", reason, department, urgency)
}

// escalateWithText raises an escalation and replies with text, falling back
// to the canned hand-off message when the handler supplied none.
func (o *Orchestrator) escalateWithText(ctx context.Context, turn bus.Turn, meta bus.ResponseMetadata, text, reason, department, urgency string) bus.Response {
	if department == "" {
		department = o.config().Escalations.DefaultDepartment
	}
	if _, err := o.tracker.Raise(ctx, turn.SessionKey, reason, department, urgency); err != nil {
		o.log.Error("escalation persist failed", "session", turn.SessionKey, "error", err)
		return o.reply(turn, msgApology, meta)
	}
	meta.Escalated = true
	if text == "" {
		text = msgEscalated
	}
	return o.reply(turn, text, meta)
}

func (o *Orchestrator) reply(turn bus.Turn, text string, meta bus.ResponseMetadata) bus.Response {
	return bus.Response{SessionKey: turn.SessionKey, Text: text, Metadata: meta}
}
