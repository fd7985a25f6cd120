package config

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	defaultGitHubVaultPath = "ci-scraper/github"
	defaultZuulVaultPath   = "ci-scraper/zuul"
	defaultAPIVaultPath    = "ci-scraper/api"
)

var defaults = map[string]string{
	"api_base_url":    "https://api.github.com",
	"git_provider":    "github",
	"git_host":        "github.com",
	"sources_file":    "sources.json5",
	"port":            "8080",
	"worker_count":    "4",
	"rate_limit":      "10",
	"scrape_schedule": "@every 6h",
	"store_backend":   "sqlite",
	"sqlite_path":     "ci-scraper.db",
}

// envKeys maps configuration keys to their environment variables.
var envKeys = map[string]string{
	"app_id":           "GITHUB_APP_ID",
	"installation_id":  "GITHUB_INSTALLATION_ID",
	"private_key":      "GITHUB_PRIVATE_KEY",
	"api_base_url":     "GITHUB_API_BASE_URL",
	"github_token":     "GITHUB_TOKEN",
	"git_provider":     "GIT_PROVIDER",
	"git_host":         "GIT_HOST",
	"zuul_url":         "ZUUL_URL",
	"zuul_auth_token":  "ZUUL_AUTH_TOKEN",
	"zuul_max_retries": "ZUUL_MAX_RETRIES",
	"zuul_rate_limit":  "ZUUL_RATE_LIMIT",
	"sources_file":     "SOURCES_FILE",
	"port":             "PORT",
	"worker_count":     "WORKER_COUNT",
	"rate_limit":       "RATE_LIMIT_REQUESTS_PER_SECOND",
	"scrape_schedule":  "SCRAPE_SCHEDULE",
	"store_backend":    "STORE_BACKEND",
	"database_url":     "DATABASE_URL",
	"sqlite_path":      "SQLITE_PATH",
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(logger zerolog.Logger) *ConfigManager {
	return &ConfigManager{
		logger: logger.With().Str("component", "config").Logger(),
		getenv: os.Getenv,
	}
}

// LoadConfiguration loads configuration from Vault, then the environment, then
// defaults. Earlier sources win. secrets may be nil.
func (cm *ConfigManager) LoadConfiguration(ctx context.Context, secrets SecretReader) (*Config, error) {
	config := &Config{}
	set := map[string]bool{}

	if secrets != nil {
		for _, path := range []string{
			cm.vaultPath("GITHUB_VAULT_PATH", defaultGitHubVaultPath),
			cm.vaultPath("ZUUL_VAULT_PATH", defaultZuulVaultPath),
			cm.vaultPath("API_VAULT_PATH", defaultAPIVaultPath),
		} {
			values, err := secrets.GetSecret(ctx, path)
			if err != nil {
				cm.logger.Info().Err(err).Str("path", path).Msg("Configuration not found in Vault, will use environment variables")
				continue
			}
			for key, value := range values {
				str, ok := value.(string)
				if !ok || set[key] {
					continue
				}
				if err := config.SetValue(key, str); err != nil {
					return nil, fmt.Errorf("invalid vault value at %s: %w", path, err)
				}
				set[key] = true
			}
		}
	}

	for key, env := range envKeys {
		value := cm.getenv(env)
		if value == "" || set[key] {
			continue
		}
		if err := config.SetValue(key, value); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", env, err)
		}
		set[key] = true
	}

	for key, value := range defaults {
		if set[key] {
			continue
		}
		if err := config.SetValue(key, value); err != nil {
			return nil, err
		}
	}

	cm.logger.Debug().
		Str("git_provider", config.GitProvider).
		Str("store_backend", config.StoreBackend).
		Int("worker_count", config.WorkerCount).
		Bool("github_app", config.AppID != 0).
		Bool("github_token", config.GitHubToken != "").
		Msg("Configuration loaded")
	return config, nil
}

func (cm *ConfigManager) vaultPath(env, fallback string) string {
	if path := cm.getenv(env); path != "" {
		return path
	}
	return fallback
}

// SetValue assigns a configuration value by key. Unknown keys are ignored.
func (c *Config) SetValue(key, value string) error {
	var err error
	switch key {
	case "app_id":
		c.AppID, err = strconv.ParseInt(value, 10, 64)
	case "installation_id":
		c.InstallationID, err = strconv.ParseInt(value, 10, 64)
	case "private_key":
		c.PrivateKey = value
	case "api_base_url":
		c.APIBaseURL = value
	case "github_token":
		c.GitHubToken = value
	case "git_provider":
		c.GitProvider = value
	case "git_host":
		c.GitHost = value
	case "zuul_url":
		c.ZuulURL = value
	case "zuul_auth_token":
		c.ZuulAuthToken = value
	case "zuul_max_retries":
		c.ZuulMaxRetries, err = strconv.Atoi(value)
	case "zuul_rate_limit":
		c.ZuulRateLimit, err = strconv.ParseFloat(value, 64)
	case "sources_file":
		c.SourcesFile = value
	case "port":
		c.ServerPort = value
	case "worker_count":
		c.WorkerCount, err = strconv.Atoi(value)
	case "rate_limit":
		c.RateLimit, err = strconv.Atoi(value)
	case "scrape_schedule":
		c.ScrapeSchedule = value
	case "store_backend":
		c.StoreBackend = value
	case "database_url":
		c.DatabaseURL = value
	case "sqlite_path":
		c.SQLitePath = value
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.GitProvider == "github" && c.GitHubToken == "" && (c.AppID == 0 || c.InstallationID == 0 || c.PrivateKey == "") {
		return fmt.Errorf("invalid configuration: github provider needs GITHUB_TOKEN or GitHub App credentials")
	}
	return nil
}

// StoreTarget returns the path or URL handed to the configured store backend.
func (c *Config) StoreTarget() string {
	if c.StoreBackend == "postgres" {
		return c.DatabaseURL
	}
	return c.SQLitePath
}
