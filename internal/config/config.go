// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"merch-storefront/internal/order"
)

// Intake types.
const (
	IntakeWebhook = "webhook"
	IntakeGitHub  = "github"
	IntakeBeacon  = "beacon"
	IntakeMock    = "mock"
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	StoreID    string

	// Catalog source
	CatalogURL      string
	CatalogCacheTTL time.Duration // 0 disables caching
	ChromeTLS       bool          // Chrome TLS fingerprint for catalog and intake calls

	// Buyer sessions
	SessionLimit       int
	SessionIdleTimeout time.Duration

	Intake   IntakeConfig
	Checkout CheckoutConfig

	// Verifies Telegram Mini App init data. Empty accepts unsigned names.
	TelegramBotToken string
}

// IntakeConfig selects and configures the order intake.
// Token, Secret and the bot token are loaded from Secret Manager in production.
type IntakeConfig struct {
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	Token     string `json:"token,omitempty"`
	Secret    string `json:"secret,omitempty"`
	Owner     string `json:"github_owner,omitempty"`
	Repo      string `json:"github_repo,omitempty"`
	EventType string `json:"event_type,omitempty"`
	APIURL    string `json:"github_api_url,omitempty"`
}

// CheckoutConfig holds store-specific order rules.
type CheckoutConfig struct {
	RequiredFields []string `json:"required_fields,omitempty"`
	SuccessMessage string   `json:"success_message,omitempty"`
	Currency       string   `json:"currency,omitempty"`
}

// secrets is the JSON document stored in Secret Manager.
type secrets struct {
	IntakeToken      string `json:"intake_token"`
	IntakeSecret     string `json:"intake_secret"`
	TelegramBotToken string `json:"telegram_bot_token"`
}

const (
	defaultCatalogCacheTTL    = 30 * time.Second
	defaultSessionLimit       = 10000
	defaultSessionIdleTimeout = 24 * time.Hour
)

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:             envOrDefault("PORT", "8080"),
		Environment:      envOrDefault("ENVIRONMENT", "development"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		GCPProject:       os.Getenv("GCP_PROJECT"),
		StoreID:          os.Getenv("STORE_ID"),
		CatalogURL:       os.Getenv("CATALOG_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		Intake: IntakeConfig{
			Type:      envOrDefault("INTAKE_TYPE", IntakeWebhook),
			URL:       os.Getenv("INTAKE_URL"),
			Token:     os.Getenv("INTAKE_TOKEN"),
			Secret:    os.Getenv("INTAKE_SECRET"),
			Owner:     os.Getenv("GITHUB_OWNER"),
			Repo:      os.Getenv("GITHUB_REPO"),
			EventType: os.Getenv("GITHUB_EVENT_TYPE"),
			APIURL:    os.Getenv("GITHUB_API_URL"),
		},
		Checkout: CheckoutConfig{
			RequiredFields: splitList(os.Getenv("REQUIRED_FIELDS")),
			SuccessMessage: os.Getenv("SUCCESS_MESSAGE"),
			Currency:       os.Getenv("CURRENCY"),
		},
	}

	if cfg.StoreID == "" {
		return nil, fmt.Errorf("STORE_ID environment variable required")
	}

	var err error
	if cfg.CatalogCacheTTL, err = envDuration("CATALOG_CACHE_TTL", defaultCatalogCacheTTL); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = envDuration("SESSION_IDLE_TIMEOUT", defaultSessionIdleTimeout); err != nil {
		return nil, err
	}
	if cfg.SessionLimit, err = envInt("SESSION_LIMIT", defaultSessionLimit); err != nil {
		return nil, err
	}
	if cfg.ChromeTLS, err = envBool("CHROME_TLS"); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading store secrets: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port               string         `json:"port"`
		Environment        string         `json:"environment"`
		LogLevel           string         `json:"log_level"`
		StoreID            string         `json:"store_id"`
		CatalogURL         string         `json:"catalog_url"`
		CatalogCacheTTL    string         `json:"catalog_cache_ttl"`
		ChromeTLS          bool           `json:"chrome_tls"`
		SessionLimit       int            `json:"session_limit"`
		SessionIdleTimeout string         `json:"session_idle_timeout"`
		TelegramBotToken   string         `json:"telegram_bot_token"`
		Intake             IntakeConfig   `json:"intake"`
		Checkout           CheckoutConfig `json:"checkout"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:             withDefault(fileConfig.Port, "8080"),
		Environment:      withDefault(fileConfig.Environment, "development"),
		LogLevel:         withDefault(fileConfig.LogLevel, "info"),
		StoreID:          fileConfig.StoreID,
		CatalogURL:       fileConfig.CatalogURL,
		ChromeTLS:        fileConfig.ChromeTLS,
		SessionLimit:     fileConfig.SessionLimit,
		TelegramBotToken: fileConfig.TelegramBotToken,
		Intake:           fileConfig.Intake,
		Checkout:         fileConfig.Checkout,
	}
	if cfg.Intake.Type == "" {
		return nil, fmt.Errorf("intake.type is required (webhook, github, beacon or mock)")
	}
	if cfg.SessionLimit == 0 {
		cfg.SessionLimit = defaultSessionLimit
	}
	if cfg.CatalogCacheTTL, err = parseDuration("catalog_cache_ttl", fileConfig.CatalogCacheTTL, defaultCatalogCacheTTL); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = parseDuration("session_idle_timeout", fileConfig.SessionIdleTimeout, defaultSessionIdleTimeout); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches intake credentials and the bot token.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
// Non-empty secret values override anything set in the environment.
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecrets(result.Payload.Data)
}

func (c *Config) applySecrets(data []byte) error {
	var s secrets
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	c.Intake.Token = withDefault(s.IntakeToken, c.Intake.Token)
	c.Intake.Secret = withDefault(s.IntakeSecret, c.Intake.Secret)
	c.TelegramBotToken = withDefault(s.TelegramBotToken, c.TelegramBotToken)
	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.StoreID == "" {
		return fmt.Errorf("store_id is required")
	}
	if c.CatalogURL == "" {
		return fmt.Errorf("catalog_url is required")
	}
	if err := validateHTTPURL("catalog_url", c.CatalogURL); err != nil {
		return err
	}
	if c.CatalogCacheTTL < 0 {
		return fmt.Errorf("catalog_cache_ttl must not be negative")
	}
	if c.SessionLimit < 1 {
		return fmt.Errorf("session_limit must be positive")
	}
	if _, err := order.ParseFields(c.Checkout.RequiredFields); err != nil {
		return fmt.Errorf("invalid required_fields: %w", err)
	}

	switch c.Intake.Type {
	case IntakeWebhook, IntakeBeacon:
		if c.Intake.URL == "" {
			return fmt.Errorf("intake url is required for %s intake", c.Intake.Type)
		}
		return validateHTTPURL("intake url", c.Intake.URL)
	case IntakeGitHub:
		if c.Intake.Owner == "" || c.Intake.Repo == "" {
			return fmt.Errorf("github_owner and github_repo are required for github intake")
		}
		if c.Intake.Token == "" {
			return fmt.Errorf("intake token is required for github intake")
		}
		return nil
	case IntakeMock:
		if c.Environment == "production" {
			return fmt.Errorf("mock intake is not allowed in production")
		}
		return nil
	default:
		return fmt.Errorf("unknown intake type %q (webhook, github, beacon or mock)", c.Intake.Type)
	}
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https", name)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid %s: missing host", name)
	}
	return nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	return parseDuration(key, os.Getenv(key), defaultVal)
}

// parseDuration accepts Go durations ("90s") or plain seconds ("90").
func parseDuration(name, val string, defaultVal time.Duration) (time.Duration, error) {
	if val == "" {
		return defaultVal, nil
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, val, err)
	}
	return d, nil
}

func envInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return n, nil
}

func envBool(key string) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return b, nil
}

// splitList parses "email, callsign" into its trimmed parts.
func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
