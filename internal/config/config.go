package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config aggregates runtime configuration for the session gate API.
type Config struct {
	Environment    string        `env:"APP_ENV" envDefault:"development"`
	Port           int           `env:"PORT"`
	HTTPPort       int           `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DataStore      string        `env:"DATA_STORE" envDefault:"memory"`
	SessionStore   string        `env:"SESSION_STORE"`
	RedisURL       string        `env:"REDIS_URL"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:4200,http://localhost:8080"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	ClientIdleTTL  time.Duration `env:"CLIENT_IDLE_TTL" envDefault:"30m"`
	DefaultLocale  string        `env:"DEFAULT_LOCALE" envDefault:"pt-BR"`
	ProfilePolicy  string        `env:"PROFILE_POLICY" envDefault:"provision"`
	SignInPerMin   int           `env:"SIGNIN_RATE_PER_MINUTE" envDefault:"10"`
	FrontendURL    string        `env:"FRONTEND_URL" envDefault:"http://localhost:8080"`

	GoogleClientID       string   `env:"AUTH_GOOGLE_CLIENT_ID"`
	GoogleRedirectURL    string   `env:"AUTH_GOOGLE_REDIRECT_URL" envDefault:"http://localhost:8080/api/auth/google/callback"`
	GoogleAllowedDomains []string `env:"AUTH_GOOGLE_ALLOWED_DOMAINS" envSeparator:","`
	GoogleAllowedEmails  []string `env:"AUTH_GOOGLE_ALLOWED_EMAILS" envSeparator:","`

	// Loaded from the environment or a mounted secret file.
	DatabaseURL        string `env:"-"`
	GoogleClientSecret string `env:"-"`
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	var err error
	cfg.DatabaseURL, err = getEnvOrFile("DATABASE_URL", "/run/secrets/sessiongate_database_url")
	if err != nil {
		return Config{}, err
	}
	cfg.GoogleClientSecret, err = getEnvOrFile("AUTH_GOOGLE_CLIENT_SECRET", "/run/secrets/sessiongate_google_client_secret")
	if err != nil {
		return Config{}, err
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.DataStore = strings.ToLower(cfg.DataStore)
	cfg.SessionStore = strings.ToLower(cfg.SessionStore)
	if cfg.SessionStore == "" {
		cfg.SessionStore = cfg.DataStore
	}
	if cfg.Port != 0 {
		cfg.HTTPPort = cfg.Port
	}
	cfg.AllowedOrigins = trimAll(cfg.AllowedOrigins)
	cfg.GoogleAllowedDomains = trimAll(cfg.GoogleAllowedDomains)
	cfg.GoogleAllowedEmails = trimAll(cfg.GoogleAllowedEmails)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DataStore {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: DATA_STORE must be memory or postgres, got %q", c.DataStore)
	}

	switch c.SessionStore {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("config: SESSION_STORE must be memory, postgres or redis, got %q", c.SessionStore)
	}

	if c.DataStore == "postgres" && c.DatabaseURL == "" {
		return errors.New("config: DATA_STORE is postgres but DATABASE_URL is not set")
	}
	if c.SessionStore == "postgres" && c.DataStore != "postgres" {
		return errors.New("config: SESSION_STORE=postgres requires DATA_STORE=postgres")
	}
	if c.SessionStore == "redis" && c.RedisURL == "" {
		return errors.New("config: SESSION_STORE is redis but REDIS_URL is not set")
	}

	switch c.ProfilePolicy {
	case "provision", "strict":
	default:
		return fmt.Errorf("config: PROFILE_POLICY must be provision or strict, got %q", c.ProfilePolicy)
	}

	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.ClientIdleTTL <= 0 {
		return errors.New("config: CLIENT_IDLE_TTL must be positive")
	}
	if c.SignInPerMin <= 0 {
		return errors.New("config: SIGNIN_RATE_PER_MINUTE must be positive")
	}

	if c.GoogleClientID != "" && c.GoogleClientSecret == "" {
		return errors.New("config: AUTH_GOOGLE_CLIENT_SECRET is required when AUTH_GOOGLE_CLIENT_ID is set")
	}

	if c.IsDevelopment() {
		return nil
	}

	if len(c.AllowedOrigins) == 0 {
		return errors.New("config: ALLOWED_ORIGINS must define at least one origin outside development")
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			return errors.New("config: ALLOWED_ORIGINS cannot contain wildcard outside development")
		}
	}
	if c.GoogleEnabled() && len(c.GoogleAllowedDomains) == 0 && len(c.GoogleAllowedEmails) == 0 {
		return errors.New("config: AUTH_GOOGLE_ALLOWED_DOMAINS or AUTH_GOOGLE_ALLOWED_EMAILS is required outside development")
	}
	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore returns true if accounts and profiles live in process memory.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// IsDevelopment reports whether the service runs in local development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
