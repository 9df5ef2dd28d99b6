// Package config provides application configuration for the agent bridge.
//
// Configuration is read from the environment, with optional .env support for
// local development. CSS selectors for the remote agent's UI live in a
// separate overridable section so a UI change does not require a rebuild.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Strategy selects the completion detection strategy.
type Strategy string

const (
	// StrategySentinel polls message nodes for a completion sentinel token.
	StrategySentinel Strategy = "sentinel"

	// StrategyVisual polls full-page screenshots and optionally consults an
	// external judge.
	StrategyVisual Strategy = "visual"
)

// Config holds all application configuration.
type Config struct {
	// Browserbase remote session provider.
	BrowserbaseAPIKey    string
	BrowserbaseProjectID string

	// Remote agent credentials for the interactive login flow.
	AgentEmail        string
	AgentPassword     string
	VerificationPhone string

	// Remote agent URLs.
	IdentityURL   string
	AgentLoginURL string
	AppURL        string
	AppURLGlob    string

	// StatePath is where the persisted browser state snapshot lives.
	StatePath string

	// DBPath is the scheduling job store location.
	DBPath string

	// Completion detection.
	Strategy     Strategy
	PollInterval time.Duration
	MaxPolls     int
	SettleDelay  time.Duration
	DoneToken    string
	ErrorToken   string

	// External completion judge (visual strategy only).
	JudgeAPIKey string
	JudgeModel  string

	// HTTP layer.
	Port           string
	AllowedOrigins []string

	// Selectors for the agent UI.
	Selectors Selectors
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		BrowserbaseAPIKey:    getEnv("BROWSERBASE_API_KEY", ""),
		BrowserbaseProjectID: getEnv("BROWSERBASE_PROJECT_ID", ""),
		AgentEmail:           getEnv("AGENT_EMAIL", ""),
		AgentPassword:        getEnv("AGENT_PASSWORD", ""),
		VerificationPhone:    getEnv("VERIFICATION_PHONE", ""),
		IdentityURL:          getEnv("IDENTITY_URL", "https://accounts.google.com/signin/v2/identifier?service=mail"),
		AgentLoginURL:        getEnv("AGENT_LOGIN_URL", "https://manus.im/login"),
		AppURL:               getEnv("AGENT_APP_URL", "https://manus.im/app"),
		AppURLGlob:           getEnv("AGENT_APP_URL_GLOB", "**/app"),
		StatePath:            getEnv("STATE_PATH", "state.json"),
		DBPath:               getEnv("DB_PATH", "./data/agentbridge.db"),
		Strategy:             Strategy(getEnv("DETECT_STRATEGY", string(StrategySentinel))),
		PollInterval:         getEnvDuration("POLL_INTERVAL", 2*time.Second),
		MaxPolls:             getEnvInt("MAX_POLLS", 60),
		SettleDelay:          getEnvDuration("SETTLE_DELAY", 1500*time.Millisecond),
		DoneToken:            getEnv("DONE_TOKEN", "END"),
		ErrorToken:           getEnv("ERROR_TOKEN", "ERROR"),
		JudgeAPIKey:          getEnv("JUDGE_API_KEY", ""),
		JudgeModel:           getEnv("JUDGE_MODEL", "gpt-4o-mini"),
		Port:                 getEnv("PORT", "8000"),
		AllowedOrigins:       getEnvList("ALLOWED_ORIGINS", []string{"*"}),
	}

	selectors, err := LoadSelectors(getEnv("SELECTORS_PATH", ""))
	if err != nil {
		return nil, fmt.Errorf("load selectors: %w", err)
	}
	cfg.Selectors = selectors

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.BrowserbaseAPIKey == "" {
		return fmt.Errorf("BROWSERBASE_API_KEY cannot be empty")
	}
	if c.BrowserbaseProjectID == "" {
		return fmt.Errorf("BROWSERBASE_PROJECT_ID cannot be empty")
	}
	if c.Strategy != StrategySentinel && c.Strategy != StrategyVisual {
		return fmt.Errorf("DETECT_STRATEGY must be %q or %q, got %q", StrategySentinel, StrategyVisual, c.Strategy)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.MaxPolls <= 0 {
		return fmt.Errorf("MAX_POLLS must be > 0")
	}
	if c.DoneToken == "" || c.ErrorToken == "" {
		return fmt.Errorf("sentinel tokens cannot be empty")
	}
	if c.DoneToken == c.ErrorToken {
		return fmt.Errorf("DONE_TOKEN and ERROR_TOKEN must differ")
	}
	return nil
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

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
