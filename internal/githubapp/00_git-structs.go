package githubapp

import (
	"net/http"

	"github.com/rs/zerolog"
)

// AuthConfig holds GitHub App authentication configuration
type AuthConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKey     string
	APIBaseURL     string
}

type AuthError struct {
	Op  string
	Err error
}

// installationTokenSource exchanges a signed app JWT for an installation token.
type installationTokenSource struct {
	config     AuthConfig
	httpClient *http.Client
	logger     zerolog.Logger
}
