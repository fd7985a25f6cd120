package githubapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	jwtExpiration     = 10 * time.Minute
	jwtClockSkew      = time.Minute
	defaultAPIBaseURL = "https://api.github.com"
)

func (e *AuthError) Error() string {
	return fmt.Sprintf("github authentication error during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewTokenSource returns a token source handing out installation tokens of the
// app. Tokens are reused until shortly before they expire.
func NewTokenSource(config AuthConfig, logger zerolog.Logger) oauth2.TokenSource {
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	config.APIBaseURL = strings.TrimRight(config.APIBaseURL, "/")
	return oauth2.ReuseTokenSource(nil, &installationTokenSource{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "githubapp").Logger(),
	})
}

// NewStaticTokenSource wraps a personal access token.
func NewStaticTokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

// Token generates a GitHub App installation token
func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	jwtToken, err := s.signJWT(time.Now())
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.config.APIBaseURL, s.config.InstallationID)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, &AuthError{Op: "request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	s.logger.Debug().Int64("installation_id", s.config.InstallationID).Msg("Requesting installation token")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, &AuthError{Op: "request", Err: fmt.Errorf("%s - %s", resp.Status, strings.TrimSpace(string(body)))}
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &AuthError{Op: "decode", Err: err}
	}

	s.logger.Info().Time("expires_at", result.ExpiresAt).Msg("Obtained installation token")
	return &oauth2.Token{
		AccessToken: result.Token,
		TokenType:   "token",
		Expiry:      result.ExpiresAt,
	}, nil
}

func (s *installationTokenSource) signJWT(now time.Time) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.config.PrivateKey))
	if err != nil {
		return "", &AuthError{Op: "parse_key", Err: err}
	}
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-jwtClockSkew)),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiration)),
		Issuer:    fmt.Sprintf("%d", s.config.AppID),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", &AuthError{Op: "sign", Err: err}
	}
	return signed, nil
}

// BuildCloneURL creates a clone URL with authentication token
func BuildCloneURL(token, repoPath, host string) string {
	if token == "" {
		return fmt.Sprintf("https://%s/%s", host, repoPath)
	}
	return fmt.Sprintf("https://x-access-token:%s@%s/%s", token, host, repoPath)
}
