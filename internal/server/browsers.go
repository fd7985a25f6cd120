package server

import (
	"context"
	"fmt"
	"os"

	"ci-scraper/internal/config"
	"ci-scraper/internal/githubapp"
	"ci-scraper/internal/repo"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// NewBrowserFactory returns the factory for the configured git provider.
// "github" browses through the GitHub API; "git" clones into a temporary
// directory that is removed on release.
func NewBrowserFactory(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (BrowserFactory, error) {
	ts := tokenSource(cfg, logger)

	switch cfg.GitProvider {
	case "github":
		client, err := repo.NewGitHubClient(ctx, ts, cfg.APIBaseURL)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, repoName string) (repo.Browser, func(), error) {
			browser, err := repo.NewGitHubRepository(client, repoName, "", logger)
			if err != nil {
				return nil, func() {}, err
			}
			return browser, func() {}, nil
		}, nil

	case "git":
		return func(ctx context.Context, repoName string) (repo.Browser, func(), error) {
			token := ""
			if ts != nil {
				tok, err := ts.Token()
				if err != nil {
					return nil, func() {}, fmt.Errorf("failed to get clone token: %w", err)
				}
				token = tok.AccessToken
			}

			tmpDir, err := os.MkdirTemp("", "ci-scraper-repo")
			if err != nil {
				return nil, func() {}, fmt.Errorf("failed to create temporary directory: %w", err)
			}
			release := func() {
				if err := os.RemoveAll(tmpDir); err != nil {
					logger.Error().Err(err).Str("tmp_dir", tmpDir).Msg("Failed to remove temporary directory")
				}
			}

			cloneURL := githubapp.BuildCloneURL(token, repoName, cfg.GitHost)
			browser, err := repo.CloneGitRepository(ctx, repoName, cloneURL, tmpDir, logger)
			if err != nil {
				release()
				return nil, func() {}, err
			}
			return browser, release, nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown git provider %q", cfg.GitProvider)
	}
}

// tokenSource prefers a static token over GitHub App credentials. It returns
// nil when neither is configured.
func tokenSource(cfg *config.Config, logger zerolog.Logger) oauth2.TokenSource {
	if cfg.GitHubToken != "" {
		return githubapp.NewStaticTokenSource(cfg.GitHubToken)
	}
	if cfg.AppID != 0 && cfg.InstallationID != 0 && cfg.PrivateKey != "" {
		return githubapp.NewTokenSource(githubapp.AuthConfig{
			AppID:          cfg.AppID,
			InstallationID: cfg.InstallationID,
			PrivateKey:     cfg.PrivateKey,
			APIBaseURL:     cfg.APIBaseURL,
		}, logger)
	}
	return nil
}
