package config

import (
	"context"

	"github.com/rs/zerolog"
)

// Config holds application configuration loaded from Vault or environment variables.
type Config struct {
	// GitHub App credentials; GitHubToken is used instead when set.
	AppID          int64  `json:"app_id"`
	InstallationID int64  `json:"installation_id"`
	PrivateKey     string `json:"private_key"`
	APIBaseURL     string `json:"api_base_url" validate:"required,url"`
	GitHubToken    string `json:"github_token"`

	GitProvider string `json:"git_provider" validate:"oneof=github git"`
	GitHost     string `json:"git_host" validate:"required,hostname_port|hostname"`

	ZuulURL        string  `json:"zuul_url" validate:"omitempty,url"`
	ZuulAuthToken  string  `json:"zuul_auth_token"`
	ZuulMaxRetries int     `json:"zuul_max_retries" validate:"gte=0,lte=10"`
	ZuulRateLimit  float64 `json:"zuul_rate_limit" validate:"gte=0"`

	SourcesFile    string `json:"sources_file"`
	ServerPort     string `json:"port" validate:"required,numeric"`
	WorkerCount    int    `json:"worker_count" validate:"gte=1,lte=64"`
	RateLimit      int    `json:"rate_limit" validate:"gte=1"`
	ScrapeSchedule string `json:"scrape_schedule"`

	StoreBackend string `json:"store_backend" validate:"oneof=sqlite postgres"`
	DatabaseURL  string `json:"database_url" validate:"required_if=StoreBackend postgres"`
	SQLitePath   string `json:"sqlite_path" validate:"required_if=StoreBackend sqlite"`
}

// SecretReader reads a key/value secret. *vault.VaultClient implements it.
type SecretReader interface {
	GetSecret(ctx context.Context, path string) (map[string]interface{}, error)
}

// ConfigManager handles configuration loading and management
type ConfigManager struct {
	logger zerolog.Logger
	getenv func(string) string
}
