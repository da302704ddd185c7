package config

// Config is the full engine configuration. Loaded from a JSON5 file with
// env overrides (see Load).
type Config struct {
	Server         ServerConfig         `json:"server"`
	Outbound       OutboundConfig       `json:"outbound"`
	Debounce       DebounceConfig       `json:"debounce"`
	Sessions       SessionsConfig       `json:"sessions"`
	Identity       IdentityConfig       `json:"identity"`
	Greeting       GreetingConfig       `json:"greeting"`
	Classification ClassificationConfig `json:"classification"`
	Provider       ProviderConfig       `json:"provider"`
	Database       DatabaseConfig       `json:"database"`
	Escalations    EscalationsConfig    `json:"escalations"`
	Hygiene        HygieneConfig        `json:"hygiene"`
	Telemetry      TelemetryConfig      `json:"telemetry"`
}

// ServerConfig configures the inbound webhook listener.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	RateLimitRPM int    `json:"rate_limit_rpm"` // per session key; 0 = disabled
}

// OutboundConfig configures response delivery to the chat platform.
type OutboundConfig struct {
	WebhookURL string `json:"webhook_url"` // empty = log-only emitter
	Token      string `json:"token"`
	TimeoutSec int    `json:"timeout_sec"`
}

// DebounceConfig controls fragment aggregation.
type DebounceConfig struct {
	WindowMs  int    `json:"window_ms"`
	Separator string `json:"separator"`
}

// SessionsConfig controls in-process session lifecycle.
type SessionsConfig struct {
	IdleTTLHours      int `json:"idle_ttl_hours"`      // eviction threshold
	ContextTTLMinutes int `json:"context_ttl_minutes"` // follow-up reference window
}

// IdentityConfig controls identity mapping and credential handling.
type IdentityConfig struct {
	TTLHours      int      `json:"ttl_hours"` // mapping TTL from last access
	DirectoryURL  string   `json:"directory_url"`
	DirectoryKey  string   `json:"directory_key"`
	ForgetPhrases []string `json:"forget_phrases"`
}

// GreetingConfig controls greeting detection and the warm/terse policy.
type GreetingConfig struct {
	ThresholdHours int      `json:"threshold_hours"` // warm greeting re-trigger
	Patterns       []string `json:"patterns"`        // regexes on normalized text
	TerseReply     string   `json:"terse_reply"`
}

// CategoryConfig declares one intent category. Order matters: it is the
// fuzzy-tier tie break and the exact-tier evaluation order.
type CategoryConfig struct {
	Name               string   `json:"name"`
	Keywords           []string `json:"keywords"`
	Prompt             string   `json:"prompt,omitempty"` // system prompt for the LLM handler
	AuthExempt         bool     `json:"auth_exempt,omitempty"`
	EscalationEligible bool     `json:"escalation_eligible,omitempty"`
	Department         string   `json:"department,omitempty"` // escalation routing
}

// ClassificationConfig holds the ordered category declarations.
type ClassificationConfig struct {
	Categories []CategoryConfig `json:"categories"`
	// GeneralAction decides what happens to unclassifiable turns:
	// "handler" routes to the catch-all handler, "escalate" raises.
	GeneralAction string `json:"general_action"`
}

// ProviderConfig configures the LLM collaborator.
type ProviderConfig struct {
	Anthropic AnthropicConfig `json:"anthropic"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Mode        string `json:"mode"` // "memory", "sqlite", or "postgres"
	SQLitePath  string `json:"sqlite_path"`
	PostgresDSN string `json:"postgres_dsn"`
}

// EscalationsConfig configures the human-handoff sink.
type EscalationsConfig struct {
	WebhookURL        string `json:"webhook_url"`
	Token             string `json:"token"`
	DefaultDepartment string `json:"default_department"`
	DefaultUrgency    string `json:"default_urgency"`
}

// HygieneConfig schedules background sweeps (idle sessions, expired
// identity mappings). Schedule is a standard cron expression.
type HygieneConfig struct {
	SweepSchedule string `json:"sweep_schedule"`
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	Protocol    string `json:"protocol"` // "grpc" or "http"
	Insecure    bool   `json:"insecure"`
	ServiceName string `json:"service_name"`
}

// Category returns the declared category config by name, or nil.
func (c *Config) Category(name string) *CategoryConfig {
	for i := range c.Classification.Categories {
		if c.Classification.Categories[i].Name == name {
			return &c.Classification.Categories[i]
		}
	}
	return nil
}

// CategoryNames returns the declared category names in configuration order.
func (c *Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Classification.Categories))
	for _, cat := range c.Classification.Categories {
		names = append(names, cat.Name)
	}
	return names
}
