package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("SESSION_STORE", "")
	t.Setenv("PORT", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("PROFILE_POLICY", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "")
	t.Setenv("AUTH_GOOGLE_CLIENT_SECRET", "")
	t.Setenv("AUTH_GOOGLE_ALLOWED_DOMAINS", "")
	t.Setenv("AUTH_GOOGLE_ALLOWED_EMAILS", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.HTTPAddress() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.HTTPAddress())
	}
	if !cfg.UseInMemoryStore() || cfg.SessionStore != "memory" {
		t.Fatalf("expected memory stores, got data=%q session=%q", cfg.DataStore, cfg.SessionStore)
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("expected 12h session TTL, got %v", cfg.SessionTTL)
	}
	if cfg.DefaultLocale != "pt-BR" || cfg.ProfilePolicy != "provision" {
		t.Fatalf("unexpected defaults: locale=%q policy=%q", cfg.DefaultLocale, cfg.ProfilePolicy)
	}
	if cfg.GoogleEnabled() {
		t.Fatal("expected Google sign-in disabled without a client ID")
	}
}

func TestLoadPortOverridesHTTPPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("PORT", "7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.HTTPPort != 7000 {
		t.Fatalf("expected PORT to win, got %d", cfg.HTTPPort)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "abc")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "postgres")
	t.Setenv("DATABASE_URL_FILE", filepath.Join(t.TempDir(), "missing"))

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL is not set") {
		t.Fatalf("expected missing DATABASE_URL error, got %v", err)
	}
}

func TestLoadReadsDatabaseURLFromFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "db_url")
	if err := os.WriteFile(path, []byte("postgres://u:p@localhost/db\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("DATA_STORE", "postgres")
	t.Setenv("DATABASE_URL_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://u:p@localhost/db" {
		t.Fatalf("expected trimmed secret, got %q", cfg.DatabaseURL)
	}
	if cfg.SessionStore != "postgres" {
		t.Fatalf("expected session store to follow data store, got %q", cfg.SessionStore)
	}
}

func TestLoadRejectsEmptySecretFile(t *testing.T) {
	setBaseEnv(t)
	path := filepath.Join(t.TempDir(), "db_url")
	if err := os.WriteFile(path, []byte("   "), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("DATABASE_URL_FILE", path)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty secret error, got %v", err)
	}
}

func TestLoadRequiresRedisURLForRedisSessions(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SESSION_STORE", "redis")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("expected REDIS_URL error, got %v", err)
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
}

func TestLoadRejectsUnknownProfilePolicy(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PROFILE_POLICY", "lenient")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "PROFILE_POLICY") {
		t.Fatalf("expected PROFILE_POLICY error, got %v", err)
	}
}

func TestLoadRequiresGoogleSecretWithClientID(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("AUTH_GOOGLE_CLIENT_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_GOOGLE_CLIENT_SECRET is required") {
		t.Fatalf("expected secret error, got %v", err)
	}
}

func TestLoadRejectsWildcardOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://example.com,*")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "cannot contain wildcard") {
		t.Fatalf("expected wildcard error, got %v", err)
	}
}

func TestLoadRequiresAllowedOriginsOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", " , ")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "must define at least one origin") {
		t.Fatalf("expected origins error, got %v", err)
	}
}

func TestLoadRequiresAllowlistOutsideDevelopment(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://example.com")
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("AUTH_GOOGLE_CLIENT_SECRET", "client-secret")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "AUTH_GOOGLE_ALLOWED_DOMAINS or AUTH_GOOGLE_ALLOWED_EMAILS is required") {
		t.Fatalf("expected allowlist error, got %v", err)
	}

	t.Setenv("AUTH_GOOGLE_ALLOWED_DOMAINS", "example.com, other.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if len(cfg.GoogleAllowedDomains) != 2 || cfg.GoogleAllowedDomains[1] != "other.com" {
		t.Fatalf("expected trimmed domains, got %v", cfg.GoogleAllowedDomains)
	}
}
