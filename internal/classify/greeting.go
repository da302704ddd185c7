package classify

import (
	"regexp"
	"strings"
)

// defaultGreetingPatterns match common Rioplatense greetings on normalized
// text (lowercase, diacritics stripped). The stripping rule is a heuristic,
// not a contract: deployments tune the list via config.
var defaultGreetingPatterns = []string{
	`\bhola+\b`,
	`\bholi+s?\b`,
	`\bbuenas+\b`,
	`\bbuen dia+\b`,
	`\bbuenos dias+\b`,
	`\bbuenas tardes+\b`,
	`\bbuenas noches+\b`,
	`\bque tal+\b`,
	`\bcomo (andas|estas|va)\b`,
	`\btodo bien\b`,
	`\bhey+\b`,
	`\bhi+\b`,
	`\bsaludos+\b`,
}

var greetingEmojis = []string{"👋", "🙋", "✋", "🖐", "👏", "🙌"}

// GreetingDetector recognizes greeting spans and strips them from turns that
// also carry substantive content.
type GreetingDetector struct {
	patterns []*regexp.Regexp
}

// NewGreetingDetector compiles the given patterns; with none, the defaults
// apply. Invalid patterns are skipped.
func NewGreetingDetector(patterns []string) *GreetingDetector {
	if len(patterns) == 0 {
		patterns = defaultGreetingPatterns
	}
	d := &GreetingDetector{}
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			d.patterns = append(d.patterns, re)
		}
	}
	return d
}

// Contains reports whether normalized text contains a greeting span or a
// greeting emoji.
func (d *GreetingDetector) Contains(normText string) bool {
	for _, re := range d.patterns {
		if re.MatchString(normText) {
			return true
		}
	}
	for _, e := range greetingEmojis {
		if strings.Contains(normText, e) {
			return true
		}
	}
	return false
}

// Strip removes all greeting spans and emojis, returning the substantive
// remainder ("" for a pure greeting).
func (d *GreetingDetector) Strip(normText string) string {
	out := normText
	for _, re := range d.patterns {
		out = re.ReplaceAllString(out, " ")
	}
	for _, e := range greetingEmojis {
		out = strings.ReplaceAll(out, e, " ")
	}
	out = strings.Trim(out, " \t\n.,;:!?¡¿-")
	return strings.Join(strings.Fields(out), " ")
}

// IsPure reports whether normalized text is a greeting with no substantive
// content beyond it.
func (d *GreetingDetector) IsPure(normText string) bool {
	return d.Contains(normText) && d.Strip(normText) == ""
}
