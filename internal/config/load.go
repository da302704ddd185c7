package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults. Category declarations are
// domain configuration; the defaults mirror a university assistant deployment
// and are fully replaceable from the config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         18620,
			RateLimitRPM: 30,
		},
		Outbound: OutboundConfig{
			TimeoutSec: 30,
		},
		Debounce: DebounceConfig{
			WindowMs:  2000,
			Separator: " ",
		},
		Sessions: SessionsConfig{
			IdleTTLHours:      12,
			ContextTTLMinutes: 5,
		},
		Identity: IdentityConfig{
			TTLHours: 24 * 30,
			ForgetPhrases: []string{
				"olvidar", "olvidame", "logout", "cerrar sesion", "forget me",
			},
		},
		Greeting: GreetingConfig{
			ThresholdHours: 6,
			TerseReply:     "¡Hola de nuevo! ¿En qué te puedo ayudar?",
		},
		Classification: ClassificationConfig{
			GeneralAction: "handler",
			Categories: []CategoryConfig{
				{
					Name: "calendar",
					Keywords: []string{
						"parcial", "final", "examen", "recuperatorio",
						"calendario", "evento", "feriado", "inscripcion",
						"fecha de examen", "proximo parcial", "proximo final",
					},
					Department: "academic-office",
				},
				{
					Name: "academic",
					Keywords: []string{
						"horario", "horarios", "clase", "aula", "salon",
						"profesor", "docente", "comision", "cursada",
						"materia", "materias", "creditos",
					},
					Department: "academic-office",
				},
				{
					Name: "financial",
					Keywords: []string{
						"pago", "deuda", "cuota", "vencimiento", "factura",
						"arancel", "saldo", "cuanto debo",
					},
					EscalationEligible: true,
					Department:         "billing",
				},
				{
					Name: "policies",
					Keywords: []string{
						"reglamento", "normativa", "politica", "syllabus",
						"programa", "bibliografia", "requisito",
					},
					Department: "student-services",
				},
			},
		},
		Provider: ProviderConfig{
			Anthropic: AnthropicConfig{
				Model:     "claude-sonnet-4-5-20250929",
				MaxTokens: 1024,
			},
		},
		Database: DatabaseConfig{
			Mode:       "memory",
			SQLitePath: "~/.aula/aula.db",
		},
		Escalations: EscalationsConfig{
			DefaultDepartment: "student-services",
			DefaultUrgency:    "normal",
		},
		Hygiene: HygieneConfig{
			SweepSchedule: "*/10 * * * *",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "aula",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("AULA_ANTHROPIC_API_KEY", &c.Provider.Anthropic.APIKey)
	envStr("AULA_MODEL", &c.Provider.Anthropic.Model)
	envStr("AULA_OUTBOUND_WEBHOOK_URL", &c.Outbound.WebhookURL)
	envStr("AULA_OUTBOUND_TOKEN", &c.Outbound.Token)
	envStr("AULA_ESCALATION_WEBHOOK_URL", &c.Escalations.WebhookURL)
	envStr("AULA_ESCALATION_TOKEN", &c.Escalations.Token)
	envStr("AULA_DIRECTORY_URL", &c.Identity.DirectoryURL)
	envStr("AULA_DIRECTORY_KEY", &c.Identity.DirectoryKey)
	envStr("AULA_DB_MODE", &c.Database.Mode)
	envStr("AULA_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("AULA_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("AULA_HOST", &c.Server.Host)
	if v := os.Getenv("AULA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("AULA_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Debounce.WindowMs = ms
		}
	}

	// Telemetry
	envStr("AULA_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AULA_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("AULA_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AULA_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AULA_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
