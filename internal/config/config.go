// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/charcord/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	OpsPort string
	DBPath  string

	Gateway GatewayConfig

	RateLimit     int
	BanDuration   time.Duration
	SweepInterval time.Duration
	SearchTTL     time.Duration

	// Default message-format template; must contain the {{msg}} placeholder.
	MessageFormat string
	// Default system/jailbreak prompt for stateless backends.
	SystemPrompt string

	OpenAI BackendDefaults
	Kobold BackendDefaults
	Horde  BackendDefaults
	Remote BackendDefaults

	Catalog CatalogConfig
}

// GatewayConfig locates the chat platform.
type GatewayConfig struct {
	SocketURL string
	APIURL    string
	Token     string
}

// BackendDefaults are the global-level provider settings for one backend.
type BackendDefaults struct {
	Endpoint      string
	Model         string
	AuthToken     string
	ContextBudget int
}

// CatalogConfig locates the character-card catalog used by stateless spawns.
type CatalogConfig struct {
	URL string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		OpsPort: getEnv("OPS_PORT", "8090"),
		DBPath:  getEnv("DB_PATH", "./data/charcord.db"),
		Gateway: GatewayConfig{
			SocketURL: getEnv("GATEWAY_SOCKET_URL", ""),
			APIURL:    getEnv("GATEWAY_API_URL", ""),
			Token:     getEnv("GATEWAY_TOKEN", ""),
		},
		RateLimit:     getEnvInt("RATE_LIMIT", 8),
		BanDuration:   getEnvDuration("BAN_DURATION", 24*time.Hour),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		SearchTTL:     getEnvDuration("SEARCH_TTL", 10*time.Minute),
		MessageFormat: getEnv("MESSAGE_FORMAT", "{{user}}: {{msg}}"),
		SystemPrompt:  getEnv("SYSTEM_PROMPT", "You are {{char}}. Stay in character and speak as {{char}} would."),
		OpenAI: BackendDefaults{
			Endpoint:      getEnv("OPENAI_ENDPOINT", "https://api.openai.com/v1"),
			Model:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			AuthToken:     getEnv("OPENAI_TOKEN", ""),
			ContextBudget: getEnvInt("OPENAI_CONTEXT_BUDGET", 4000),
		},
		Kobold: BackendDefaults{
			Endpoint:      getEnv("KOBOLD_ENDPOINT", "http://localhost:5000"),
			ContextBudget: getEnvInt("KOBOLD_CONTEXT_BUDGET", 1600),
		},
		Horde: BackendDefaults{
			Endpoint:      getEnv("HORDE_ENDPOINT", "https://horde.koboldai.net"),
			Model:         getEnv("HORDE_MODEL", ""),
			AuthToken:     getEnv("HORDE_TOKEN", "0000000000"),
			ContextBudget: getEnvInt("HORDE_CONTEXT_BUDGET", 1600),
		},
		Remote: BackendDefaults{
			Endpoint:  getEnv("REMOTE_ENDPOINT", ""),
			AuthToken: getEnv("REMOTE_TOKEN", ""),
		},
		Catalog: CatalogConfig{
			URL: getEnv("CATALOG_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.OpsPort == "" {
		return fmt.Errorf("OPS_PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.RateLimit < 3 {
		return fmt.Errorf("RATE_LIMIT must be at least 3")
	}
	if c.BanDuration <= 0 {
		return fmt.Errorf("BAN_DURATION must be positive")
	}
	if !strings.Contains(c.MessageFormat, "{{msg}}") {
		return fmt.Errorf("MESSAGE_FORMAT must contain the {{msg}} placeholder")
	}
	return nil
}

// Defaults returns the resolved global generation settings for a backend type.
func (c *Config) Defaults(backend domain.BackendType) domain.GenerationSettings {
	var b BackendDefaults
	switch backend {
	case domain.BackendOpenAI:
		b = c.OpenAI
	case domain.BackendKobold:
		b = c.Kobold
	case domain.BackendHorde:
		b = c.Horde
	case domain.BackendRemote:
		b = c.Remote
	}
	return domain.GenerationSettings{
		Model:         b.Model,
		Endpoint:      b.Endpoint,
		AuthToken:     b.AuthToken,
		ContextBudget: b.ContextBudget,
		SystemPrompt:  c.SystemPrompt,
		Temperature:   0.8,
		TopP:          0.95,
		MaxTokens:     300,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
