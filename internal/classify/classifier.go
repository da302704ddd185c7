// Package classify maps combined turn text to an intent category through a
// three-tier cascade: exact keyword membership, fuzzy string similarity, and
// delegation to a language-understanding collaborator. Classification never
// fails; the worst case is the general category at confidence zero.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/nextcampus/aula/internal/config"
)

// Tier identifies which cascade stage produced a result.
type Tier string

const (
	TierExact     Tier = "exact"
	TierFuzzy     Tier = "fuzzy"
	TierDelegated Tier = "delegated"
)

// Reserved categories. Greeting is a pre-step short circuit; general is the
// ambiguous fallback.
const (
	CategoryGreeting = "greeting"
	CategoryGeneral  = "general"
)

// Fuzzy-tier thresholds by keyword rune length. Keywords shorter than
// fuzzyMinLen only match exactly (tier 1); short words fuzz too easily.
const (
	fuzzyMinLen       = 4
	fuzzyShortMaxLen  = 5
	fuzzyShortCutoff  = 0.85
	fuzzyLongCutoff   = 0.75
	delegatedConfOnce = 0.6
)

// Result is the classification outcome for one turn.
type Result struct {
	Category   string            `json:"category"`
	Confidence float64           `json:"confidence"`
	Tier       Tier              `json:"tier"`
	Entities   map[string]string `json:"entities,omitempty"`
}

// Delegate is the external language-understanding collaborator used when the
// pattern tiers cannot decide.
type Delegate interface {
	ClassifyText(ctx context.Context, text string, categories []string) (string, error)
}

type category struct {
	name     string
	keywords []string // normalized, configuration order
}

// Classifier runs the cascade. Category declarations can be swapped at
// runtime (config hot reload) via Reload.
type Classifier struct {
	mu         sync.RWMutex
	categories []category
	greetings  *GreetingDetector
	delegate   Delegate
}

// New builds a classifier from ordered category declarations.
func New(cats []config.CategoryConfig, greetings *GreetingDetector, delegate Delegate) *Classifier {
	if greetings == nil {
		greetings = NewGreetingDetector(nil)
	}
	c := &Classifier{greetings: greetings, delegate: delegate}
	c.Reload(cats)
	return c
}

// Reload atomically replaces the category declarations.
func (c *Classifier) Reload(cats []config.CategoryConfig) {
	compiled := make([]category, 0, len(cats))
	for _, cat := range cats {
		kw := make([]string, 0, len(cat.Keywords))
		for _, k := range cat.Keywords {
			if n := Normalize(k); n != "" {
				kw = append(kw, n)
			}
		}
		compiled = append(compiled, category{name: cat.Name, keywords: kw})
	}
	c.mu.Lock()
	c.categories = compiled
	c.mu.Unlock()
}

// Categories returns the configured category names in declaration order.
func (c *Classifier) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = cat.name
	}
	return names
}

// Classify runs the cascade on one turn of text.
func (c *Classifier) Classify(ctx context.Context, text string) Result {
	normText := Normalize(text)
	if normText == "" {
		return Result{Category: CategoryGeneral, Confidence: 0, Tier: TierExact}
	}

	// Greeting pre-step: pure greetings short-circuit; mixed turns are
	// classified on the stripped remainder.
	if c.greetings.Contains(normText) {
		rest := c.greetings.Strip(normText)
		if rest == "" {
			return Result{Category: CategoryGreeting, Confidence: 1.0, Tier: TierExact}
		}
		normText = rest
	}

	entities := extractEntities(normText)

	c.mu.RLock()
	cats := c.categories
	c.mu.RUnlock()

	// Tier 1: exact membership, first declared category wins.
	if name, ok := exactMatch(normText, cats); ok {
		return Result{Category: name, Confidence: 1.0, Tier: TierExact, Entities: entities}
	}

	// Tier 2: fuzzy similarity with length-dependent thresholds.
	if name, sim, ok := fuzzyMatch(normText, cats); ok {
		return Result{Category: name, Confidence: sim, Tier: TierFuzzy, Entities: entities}
	}

	// Tier 3: delegate to the language-understanding collaborator.
	if c.delegate != nil {
		names := make([]string, len(cats))
		for i, cat := range cats {
			names[i] = cat.name
		}
		choice, err := c.delegate.ClassifyText(ctx, text, names)
		if err != nil {
			slog.Warn("delegated classification failed", "error", err)
			return Result{Category: CategoryGeneral, Confidence: 0, Tier: TierDelegated, Entities: entities}
		}
		choice = Normalize(choice)
		for _, name := range names {
			if choice == name {
				return Result{Category: name, Confidence: delegatedConfOnce, Tier: TierDelegated, Entities: entities}
			}
		}
		slog.Debug("delegate returned unknown category", "choice", choice)
	}

	return Result{Category: CategoryGeneral, Confidence: 0, Tier: TierDelegated, Entities: entities}
}

// exactMatch tests keyword/phrase membership against the normalized text.
// Single-word keywords must match a whole token; phrases match as substrings
// on word boundaries.
func exactMatch(normText string, cats []category) (string, bool) {
	padded := " " + normText + " "
	tokens := Tokenize(normText)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	for _, cat := range cats {
		for _, kw := range cat.keywords {
			if strings.ContainsRune(kw, ' ') {
				if strings.Contains(padded, " "+kw+" ") {
					return cat.name, true
				}
			} else if tokenSet[kw] {
				return cat.name, true
			}
		}
	}
	return "", false
}

// fuzzyMatch compares every keyword against every token (and same-arity span
// for multiword keywords). The keyword's rune length selects the threshold;
// the category with the highest similarity above threshold wins, ties broken
// by earliest declaration order.
func fuzzyMatch(normText string, cats []category) (string, float64, bool) {
	tokens := Tokenize(normText)
	if len(tokens) == 0 {
		return "", 0, false
	}

	bestName := ""
	bestSim := 0.0
	for _, cat := range cats {
		for _, kw := range cat.keywords {
			cutoff, ok := thresholdFor(kw)
			if !ok {
				continue
			}
			for _, span := range spansFor(tokens, kw) {
				sim := similarity(kw, span)
				if sim < cutoff {
					continue
				}
				// Strict > keeps the earliest-declared category on ties.
				if sim > bestSim {
					bestSim = sim
					bestName = cat.name
				}
			}
		}
	}
	return bestName, bestSim, bestName != ""
}

func thresholdFor(kw string) (float64, bool) {
	n := len([]rune(kw))
	switch {
	case n < fuzzyMinLen:
		return 0, false
	case n <= fuzzyShortMaxLen:
		return fuzzyShortCutoff, true
	default:
		return fuzzyLongCutoff, true
	}
}

// spansFor yields candidate spans: single tokens for one-word keywords,
// sliding n-grams for multiword keywords.
func spansFor(tokens []string, kw string) []string {
	arity := strings.Count(kw, " ") + 1
	if arity == 1 {
		return tokens
	}
	if len(tokens) < arity {
		return nil
	}
	spans := make([]string, 0, len(tokens)-arity+1)
	for i := 0; i+arity <= len(tokens); i++ {
		spans = append(spans, strings.Join(tokens[i:i+arity], " "))
	}
	return spans
}

// similarity is a normalized Levenshtein ratio in [0,1].
func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 && lb == 0 {
		return 1
	}
	max := la
	if lb > max {
		max = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(max)
}
