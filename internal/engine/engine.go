// Package engine assembles the session registry, debouncer, classifier,
// identity resolver, escalation tracker and orchestrator into one runnable
// unit behind a small facade.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextcampus/aula/internal/bus"
	"github.com/nextcampus/aula/internal/classify"
	"github.com/nextcampus/aula/internal/config"
	"github.com/nextcampus/aula/internal/debounce"
	"github.com/nextcampus/aula/internal/escalate"
	"github.com/nextcampus/aula/internal/handlers"
	"github.com/nextcampus/aula/internal/identity"
	"github.com/nextcampus/aula/internal/orchestrate"
	"github.com/nextcampus/aula/internal/providers"
	"github.com/nextcampus/aula/internal/sessions"
	"github.com/nextcampus/aula/internal/store"
)

// Options carries the injectable collaborators. Zero-value fields get
// config-driven defaults in New.
type Options struct {
	// Directory overrides the identity directory. Defaults to an HTTP
	// client when identity.directory_url is set, otherwise an empty static
	// directory (every credential rejected).
	Directory identity.Directory
	// Completer overrides the LLM backend. Defaults to Anthropic when an
	// API key is configured, otherwise nil (static fallback replies, no
	// delegated classification tier).
	Completer providers.Completer
	// EscalationSink receives raised escalations. Nil means store-only.
	EscalationSink escalate.Sink
	Logger         *slog.Logger
}

// Engine is the conversational session engine. Create with New, feed it
// through Submit, stop with Stop.
type Engine struct {
	registry   *sessions.Registry
	aggregator *debounce.Aggregator
	classifier *classify.Classifier
	resolver   *identity.Resolver
	tracker    *escalate.Tracker
	handlerReg *handlers.Registry
	orch       *orchestrate.Orchestrator
	completer  providers.Completer
	emitter    bus.Emitter
	stores     *store.Stores
	log        *slog.Logger

	sweepSchedule string
	idleTTL       atomic.Int64 // nanoseconds; hot-swapped by Reload, read by Sweep
	hygieneStop   chan struct{}
	hygieneDone   chan struct{}
}

// New wires an engine from configuration. The emitter receives every
// response; stores must outlive the engine.
func New(cfg *config.Config, stores *store.Stores, emitter bus.Emitter, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	completer := opts.Completer
	if completer == nil && cfg.Provider.Anthropic.APIKey != "" {
		completer = providers.NewAnthropicCompleter(
			cfg.Provider.Anthropic.APIKey,
			cfg.Provider.Anthropic.Model,
			cfg.Provider.Anthropic.MaxTokens,
		)
	}

	directory := opts.Directory
	if directory == nil {
		if cfg.Identity.DirectoryURL != "" {
			directory = identity.NewHTTPDirectory(cfg.Identity.DirectoryURL, cfg.Identity.DirectoryKey)
		} else {
			directory = identity.NewStaticDirectory(nil)
			log.Warn("no directory configured, all credentials will be rejected")
		}
	}

	var delegate classify.Delegate
	if completer != nil {
		delegate = providers.NewDelegateClassifier(completer)
	}

	registry := sessions.NewRegistry()
	greetings := classify.NewGreetingDetector(cfg.Greeting.Patterns)
	classifier := classify.New(cfg.Classification.Categories, greetings, delegate)
	resolver := identity.NewResolver(
		stores.Identities, directory,
		time.Duration(cfg.Identity.TTLHours)*time.Hour,
		cfg.Identity.ForgetPhrases, log,
	)
	tracker := escalate.NewTracker(stores.Escalations, opts.EscalationSink, log)

	handlerReg := handlers.NewRegistry(handlers.NewGeneralHandler(completer))
	registerHandlers(handlerReg, cfg, completer)

	orch := orchestrate.New(cfg, registry, classifier, resolver, tracker, handlerReg, log)

	e := &Engine{
		registry:      registry,
		classifier:    classifier,
		resolver:      resolver,
		tracker:       tracker,
		handlerReg:    handlerReg,
		orch:          orch,
		completer:     completer,
		emitter:       emitter,
		stores:        stores,
		log:           log,
		sweepSchedule: cfg.Hygiene.SweepSchedule,
	}
	e.idleTTL.Store(int64(time.Duration(cfg.Sessions.IdleTTLHours) * time.Hour))

	window := time.Duration(cfg.Debounce.WindowMs) * time.Millisecond
	e.aggregator = debounce.New(window, cfg.Debounce.Separator, e.consume)
	return e
}

// registerHandlers binds the greeting handler plus one LLM handler per
// category that declares a prompt.
func registerHandlers(reg *handlers.Registry, cfg *config.Config, completer providers.Completer) {
	reg.Register(classify.CategoryGreeting, handlers.NewGreetingHandler(completer, cfg.Greeting.TerseReply))
	if completer == nil {
		return
	}
	for _, cat := range cfg.Classification.Categories {
		if cat.Prompt != "" {
			reg.Register(cat.Name, handlers.NewLLMHandler(completer, cat.Prompt))
		}
	}
}

// Submit feeds one inbound fragment into the debouncer. Non-blocking.
func (e *Engine) Submit(msg bus.InboundMessage) {
	if msg.SessionKey == "" || msg.Text == "" {
		return
	}
	if msg.ArrivalTime.IsZero() {
		msg.ArrivalTime = time.Now()
	}
	e.registry.Touch(msg.SessionKey)
	e.aggregator.Enqueue(msg)
}

// consume is the aggregator sink: one combined turn in, one response out.
func (e *Engine) consume(ctx context.Context, turn bus.Turn) {
	resp := e.orch.Process(ctx, turn)
	if err := e.emitter.Emit(ctx, resp); err != nil {
		e.log.Error("response delivery failed", "session", turn.SessionKey, "error", err)
	}
}

// Start launches the background hygiene loop. The schedule is a cron
// expression checked once a minute; empty or invalid disables the loop.
func (e *Engine) Start() {
	if e.sweepSchedule == "" {
		return
	}
	if !gronx.New().IsValid(e.sweepSchedule) {
		e.log.Error("invalid sweep schedule, hygiene disabled", "schedule", e.sweepSchedule)
		return
	}
	e.hygieneStop = make(chan struct{})
	e.hygieneDone = make(chan struct{})
	go e.hygieneLoop()
}

func (e *Engine) hygieneLoop() {
	defer close(e.hygieneDone)
	gron := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-e.hygieneStop:
			return
		case <-ticker.C:
			due, err := gron.IsDue(e.sweepSchedule)
			if err != nil {
				e.log.Error("sweep schedule check failed", "schedule", e.sweepSchedule, "error", err)
				continue
			}
			if due {
				e.Sweep(context.Background())
			}
		}
	}
}

// Sweep runs one hygiene pass: evict idle sessions (skipping any with
// pending debounce work) and purge expired identity mappings.
func (e *Engine) Sweep(ctx context.Context) {
	evicted := e.registry.EvictIdle(time.Duration(e.idleTTL.Load()), e.aggregator.HasPending)
	purged, err := e.resolver.SweepExpired(ctx, time.Now())
	if err != nil {
		e.log.Error("identity sweep failed", "error", err)
	}
	e.log.Info("hygiene sweep", "sessions_evicted", evicted, "mappings_purged", purged)
}

// Reload applies a new configuration to the running engine. The debounce
// window and storage mode require a restart; everything else hot-swaps.
func (e *Engine) Reload(cfg *config.Config) {
	e.classifier.Reload(cfg.Classification.Categories)
	e.handlerReg.Reset()
	registerHandlers(e.handlerReg, cfg, e.completer)
	e.orch.Reload(cfg)
	e.idleTTL.Store(int64(time.Duration(cfg.Sessions.IdleTTLHours) * time.Hour))
	e.log.Info("configuration reloaded", "categories", len(cfg.Classification.Categories))
}

// Stop drains the engine: pending debounce timers are cancelled, in-flight
// turns complete, the hygiene loop exits.
func (e *Engine) Stop() {
	if e.hygieneStop != nil {
		close(e.hygieneStop)
		<-e.hygieneDone
	}
	e.aggregator.Stop()
}

// Sessions exposes the registry for the admin surface.
func (e *Engine) Sessions() *sessions.Registry { return e.registry }

// Escalations exposes the tracker for the admin surface.
func (e *Engine) Escalations() *escalate.Tracker { return e.tracker }

// HasPending reports whether a session has undelivered debounce work.
func (e *Engine) HasPending(key string) bool { return e.aggregator.HasPending(key) }
