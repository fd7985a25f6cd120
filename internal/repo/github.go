package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	index_model "ci-scraper/datamodel/index-model"

	"github.com/google/go-github/v55/github"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	defaultAPIBaseURL = "https://api.github.com/"
	// Relative to the REST base URL; resolves to /graphql on github.com and
	// /api/graphql on GitHub Enterprise.
	graphqlEndpoint = "../graphql"
)

const blameQuery = `query($owner: String!, $name: String!, $expression: String!, $path: String!) {
  repository(owner: $owner, name: $name) {
    object(expression: $expression) {
      ... on Commit {
        blame(path: $path) {
          ranges {
            startingLine
            endingLine
            commit {
              oid
              committedDate
              author { name }
            }
          }
        }
      }
    }
  }
}`

// GitHubRepository browses a repository through the GitHub REST and GraphQL APIs.
type GitHubRepository struct {
	client *github.Client
	owner  string
	name   string
	ref    string
	logger zerolog.Logger
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type blameResponse struct {
	Data struct {
		Repository *struct {
			Object *struct {
				Blame *struct {
					Ranges []struct {
						StartingLine int `json:"startingLine"`
						EndingLine   int `json:"endingLine"`
						Commit       struct {
							Oid           string    `json:"oid"`
							CommittedDate time.Time `json:"committedDate"`
							Author        struct {
								Name string `json:"name"`
							} `json:"author"`
						} `json:"commit"`
					} `json:"ranges"`
				} `json:"blame"`
			} `json:"object"`
		} `json:"repository"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// NewGitHubClient creates a go-github client authenticated by the given token source.
func NewGitHubClient(ctx context.Context, ts oauth2.TokenSource, apiBaseURL string) (*github.Client, error) {
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if apiBaseURL == "" || strings.TrimSuffix(apiBaseURL, "/")+"/" == defaultAPIBaseURL {
		return client, nil
	}
	client, err := client.WithEnterpriseURLs(apiBaseURL, apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure GitHub API base URL: %w", err)
	}
	return client, nil
}

// NewGitHubRepository returns a browser for fullName ("owner/name") at ref.
// An empty ref means the default branch.
func NewGitHubRepository(client *github.Client, fullName, ref string, logger zerolog.Logger) (*GitHubRepository, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository name %q, expected owner/name", fullName)
	}
	return &GitHubRepository{
		client: client,
		owner:  owner,
		name:   name,
		ref:    ref,
		logger: logger.With().Str("component", "github").Str("repo", fullName).Logger(),
	}, nil
}

func (r *GitHubRepository) Name() string {
	return r.owner + "/" + r.name
}

func (r *GitHubRepository) ListDirectory(ctx context.Context, path string) (map[string]DirEntry, error) {
	p := normalizePath(path)
	file, dir, resp, err := r.client.Repositories.GetContents(ctx, r.owner, r.name, p, r.contentOptions())
	if err != nil {
		return nil, checkoutError("list_directory", r.Name(), path, r.apiError(resp, err))
	}
	if file != nil {
		return nil, checkoutError("list_directory", r.Name(), path, errors.New("not a directory"))
	}

	entries := make(map[string]DirEntry, len(dir))
	for _, content := range dir {
		kind := KindFile
		if content.GetType() == "dir" {
			kind = KindDir
		}
		entries[content.GetName()] = DirEntry{
			Name: content.GetName(),
			Path: content.GetPath(),
			Kind: kind,
		}
	}
	r.logger.Debug().Str("path", path).Int("entries", len(entries)).Msg("Listed directory")
	return entries, nil
}

func (r *GitHubRepository) CheckOutFile(ctx context.Context, path string) (string, error) {
	p := normalizePath(path)
	file, _, resp, err := r.client.Repositories.GetContents(ctx, r.owner, r.name, p, r.contentOptions())
	if err != nil {
		return "", checkoutError("check_out_file", r.Name(), path, r.apiError(resp, err))
	}
	if file == nil {
		return "", checkoutError("check_out_file", r.Name(), path, errors.New("not a file"))
	}
	content, err := file.GetContent()
	if err != nil {
		return "", checkoutError("check_out_file", r.Name(), path, err)
	}
	return content, nil
}

func (r *GitHubRepository) LastChanged(ctx context.Context, path string) (time.Time, error) {
	opts := &github.CommitsListOptions{
		SHA:         r.ref,
		Path:        normalizePath(path),
		ListOptions: github.ListOptions{PerPage: 1},
	}
	commits, resp, err := r.client.Repositories.ListCommits(ctx, r.owner, r.name, opts)
	if err != nil {
		return time.Time{}, checkoutError("last_changed", r.Name(), path, r.apiError(resp, err))
	}
	if len(commits) == 0 {
		return time.Time{}, checkoutError("last_changed", r.Name(), path, ErrNotFound)
	}
	return commits[0].GetCommit().GetCommitter().GetDate().Time, nil
}

func (r *GitHubRepository) Blame(ctx context.Context, path string) ([]index_model.BlameRange, error) {
	expression := r.ref
	if expression == "" {
		expression = "HEAD"
	}
	body := &graphqlRequest{
		Query: blameQuery,
		Variables: map[string]interface{}{
			"owner":      r.owner,
			"name":       r.name,
			"expression": expression,
			"path":       normalizePath(path),
		},
	}
	req, err := r.client.NewRequest(http.MethodPost, graphqlEndpoint, body)
	if err != nil {
		return nil, checkoutError("blame", r.Name(), path, err)
	}

	var out blameResponse
	resp, err := r.client.Do(ctx, req, &out)
	if err != nil {
		return nil, checkoutError("blame", r.Name(), path, r.apiError(resp, err))
	}
	if len(out.Errors) > 0 {
		return nil, checkoutError("blame", r.Name(), path, errors.New(out.Errors[0].Message))
	}
	repository := out.Data.Repository
	if repository == nil || repository.Object == nil || repository.Object.Blame == nil {
		return nil, checkoutError("blame", r.Name(), path, ErrNotFound)
	}

	ranges := make([]index_model.BlameRange, 0, len(repository.Object.Blame.Ranges))
	for _, rg := range repository.Object.Blame.Ranges {
		ranges = append(ranges, index_model.BlameRange{
			StartLine: rg.StartingLine,
			EndLine:   rg.EndingLine,
			Commit:    rg.Commit.Oid,
			Author:    rg.Commit.Author.Name,
			Date:      rg.Commit.CommittedDate,
		})
	}
	return ranges, nil
}

func (r *GitHubRepository) contentOptions() *github.RepositoryContentGetOptions {
	if r.ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: r.ref}
}

func (r *GitHubRepository) apiError(resp *github.Response, err error) error {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
