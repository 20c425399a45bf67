package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// storeEnv lists every variable Load reads so each test starts clean.
var storeEnv = []string{
	"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT", "STORE_ID",
	"CATALOG_URL", "CATALOG_CACHE_TTL", "CHROME_TLS", "SESSION_LIMIT", "SESSION_IDLE_TIMEOUT",
	"INTAKE_TYPE", "INTAKE_URL", "INTAKE_TOKEN", "INTAKE_SECRET",
	"GITHUB_OWNER", "GITHUB_REPO", "GITHUB_EVENT_TYPE", "GITHUB_API_URL",
	"REQUIRED_FIELDS", "SUCCESS_MESSAGE", "CURRENCY", "TELEGRAM_BOT_TOKEN",
}

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range storeEnv {
		t.Setenv(k, "")
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadFromEnv(t *testing.T) {
	setEnv(t, map[string]string{
		"STORE_ID":          "grid-merch",
		"CATALOG_URL":       "https://cdn.example.com/catalog.json",
		"CATALOG_CACHE_TTL": "90",
		"CHROME_TLS":        "true",
		"INTAKE_TYPE":       "webhook",
		"INTAKE_URL":        "https://hooks.example.com/orders",
		"INTAKE_SECRET":     "s3cret",
		"REQUIRED_FIELDS":   "email, callsign",
		"CURRENCY":          "USD",
		"PORT":              "9090",
		"LOG_LEVEL":         "debug",
	})

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" || cfg.LogLevel != "debug" || cfg.Environment != "development" {
		t.Errorf("server settings = %q/%q/%q", cfg.Port, cfg.LogLevel, cfg.Environment)
	}
	if cfg.CatalogCacheTTL != 90*time.Second {
		t.Errorf("CatalogCacheTTL = %v, want 90s", cfg.CatalogCacheTTL)
	}
	if !cfg.ChromeTLS {
		t.Error("ChromeTLS = false, want true")
	}
	if cfg.Intake.Secret != "s3cret" {
		t.Errorf("Intake.Secret = %q", cfg.Intake.Secret)
	}
	if got := cfg.Checkout.RequiredFields; len(got) != 2 || got[0] != "email" || got[1] != "callsign" {
		t.Errorf("RequiredFields = %v", got)
	}
	if cfg.SessionLimit != defaultSessionLimit || cfg.SessionIdleTimeout != defaultSessionIdleTimeout {
		t.Errorf("session defaults = %d/%v", cfg.SessionLimit, cfg.SessionIdleTimeout)
	}
}

func TestLoadMissingStoreID(t *testing.T) {
	setEnv(t, map[string]string{"CATALOG_URL": "https://x.example.com/c.json"})

	_, err := Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "STORE_ID") {
		t.Errorf("err = %v, want STORE_ID error", err)
	}
}

func TestLoadProductionRequiresProject(t *testing.T) {
	setEnv(t, map[string]string{
		"STORE_ID":    "s",
		"ENVIRONMENT": "production",
		"CATALOG_URL": "https://x.example.com/c.json",
	})

	_, err := Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "GCP_PROJECT") {
		t.Errorf("err = %v, want GCP_PROJECT error", err)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		val     string
		wantErr string
	}{
		{"ttl", "CATALOG_CACHE_TTL", "soon", "CATALOG_CACHE_TTL"},
		{"chrome", "CHROME_TLS", "maybe", "CHROME_TLS"},
		{"session limit", "SESSION_LIMIT", "lots", "SESSION_LIMIT"},
		{"required fields", "REQUIRED_FIELDS", "email,phone", "required_fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, map[string]string{
				"STORE_ID":    "s",
				"CATALOG_URL": "https://x.example.com/c.json",
				"INTAKE_TYPE": "mock",
				tt.key:        tt.val,
			})
			_, err := Load(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment:  "development",
			StoreID:      "s",
			CatalogURL:   "https://cdn.example.com/catalog.json",
			SessionLimit: 10,
			Intake:       IntakeConfig{Type: IntakeMock},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid mock", func(c *Config) {}, ""},
		{"missing catalog", func(c *Config) { c.CatalogURL = "" }, "catalog_url is required"},
		{"catalog not http", func(c *Config) { c.CatalogURL = "file:///tmp/c.json" }, "scheme must be http or https"},
		{"webhook without url", func(c *Config) { c.Intake.Type = IntakeWebhook }, "intake url is required"},
		{"beacon ok", func(c *Config) {
			c.Intake = IntakeConfig{Type: IntakeBeacon, URL: "https://script.example.com/exec"}
		}, ""},
		{"github without repo", func(c *Config) {
			c.Intake = IntakeConfig{Type: IntakeGitHub, Owner: "acme", Token: "t"}
		}, "github_owner and github_repo"},
		{"github without token", func(c *Config) {
			c.Intake = IntakeConfig{Type: IntakeGitHub, Owner: "acme", Repo: "orders"}
		}, "intake token is required"},
		{"github ok", func(c *Config) {
			c.Intake = IntakeConfig{Type: IntakeGitHub, Owner: "acme", Repo: "orders", Token: "t"}
		}, ""},
		{"mock in production", func(c *Config) { c.Environment = "production" }, "not allowed in production"},
		{"unknown intake", func(c *Config) { c.Intake.Type = "carrier-pigeon" }, "unknown intake type"},
		{"zero session limit", func(c *Config) { c.SessionLimit = 0 }, "session_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplySecrets(t *testing.T) {
	cfg := &Config{Intake: IntakeConfig{Token: "env-token", Secret: "env-secret"}}
	err := cfg.applySecrets([]byte(`{"intake_token":"sm-token","telegram_bot_token":"123:abc"}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Intake.Token != "sm-token" {
		t.Errorf("Token = %q, want secret value", cfg.Intake.Token)
	}
	if cfg.Intake.Secret != "env-secret" {
		t.Errorf("Secret = %q, want env value kept", cfg.Intake.Secret)
	}
	if cfg.TelegramBotToken != "123:abc" {
		t.Errorf("TelegramBotToken = %q", cfg.TelegramBotToken)
	}

	if err := cfg.applySecrets([]byte("not json")); err == nil {
		t.Error("expected error for invalid secret JSON")
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `{
		"port": "9090",
		"log_level": "debug",
		"store_id": "file-store",
		"catalog_url": "https://file-shop.example.com/catalog.json",
		"catalog_cache_ttl": "2m",
		"intake": {"type": "github", "github_owner": "acme", "github_repo": "orders", "token": "ghp_x"},
		"checkout": {"required_fields": ["email"], "success_message": "Thanks!"}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	setEnv(t, map[string]string{"CONFIG_FILE": path})

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" || cfg.Environment != "development" {
		t.Errorf("Port/Environment = %q/%q", cfg.Port, cfg.Environment)
	}
	if cfg.StoreID != "file-store" {
		t.Errorf("StoreID = %q", cfg.StoreID)
	}
	if cfg.CatalogCacheTTL != 2*time.Minute {
		t.Errorf("CatalogCacheTTL = %v, want 2m", cfg.CatalogCacheTTL)
	}
	if cfg.Intake.Type != IntakeGitHub || cfg.Intake.Repo != "orders" {
		t.Errorf("Intake = %+v", cfg.Intake)
	}
	if cfg.Checkout.SuccessMessage != "Thanks!" {
		t.Errorf("SuccessMessage = %q", cfg.Checkout.SuccessMessage)
	}
	if cfg.SessionLimit != defaultSessionLimit {
		t.Errorf("SessionLimit = %d", cfg.SessionLimit)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	write := func(t *testing.T, content string) string {
		path := filepath.Join(t.TempDir(), "config.json")
		os.WriteFile(path, []byte(content), 0o600)
		return path
	}

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{"file not found", func(t *testing.T) string { return "/nonexistent/config.json" }, "reading config file"},
		{"invalid JSON", func(t *testing.T) string { return write(t, "{invalid json") }, "parsing config file"},
		{"missing intake type", func(t *testing.T) string {
			return write(t, `{"store_id": "s", "catalog_url": "https://x.example.com/c.json"}`)
		}, "intake.type is required"},
		{"bad duration", func(t *testing.T) string {
			return write(t, `{"store_id": "s", "catalog_url": "https://x.example.com/c.json", "intake": {"type": "mock"}, "catalog_cache_ttl": "later"}`)
		}, "catalog_cache_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, map[string]string{"CONFIG_FILE": tt.path(t)})
			_, err := Load(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Minute},
		{"0", 0},
		{"45", 45 * time.Second},
		{"1h30m", 90 * time.Minute},
	}
	for _, tt := range tests {
		got, err := parseDuration("x", tt.in, time.Minute)
		if err != nil || got != tt.want {
			t.Errorf("parseDuration(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" email ,, region ")
	if len(got) != 2 || got[0] != "email" || got[1] != "region" {
		t.Errorf("splitList = %q", got)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") should be nil")
	}
}

func TestWithDefault(t *testing.T) {
	if got := withDefault("value", "default"); got != "value" {
		t.Errorf("withDefault(value, default) = %q, want value", got)
	}
	if got := withDefault("", "default"); got != "default" {
		t.Errorf("withDefault('', default) = %q, want default", got)
	}
}
