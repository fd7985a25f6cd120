package scraper

import (
	"context"
	"encoding/json"
	"time"

	"ci-scraper/internal/render"
	"ci-scraper/internal/repo"

	"github.com/rs/zerolog"
)

// RolesDirectory holds one subdirectory per role.
const RolesDirectory = "roles"

// Conventional locations, scanned in order. First match wins.
var (
	JobDirectories = []string{"zuul.d", ".zuul.d"}
	JobFileNames   = []string{"zuul.yaml", ".zuul.yaml"}
	ReadmeFiles    = []string{"README.rst", "README.md", "README.txt", "README"}
	ChangelogFiles = []string{"CHANGELOG.rst", "CHANGELOG.md", "CHANGELOG.txt", "CHANGELOG"}
)

// RepoScraper collects job files and roles from a single repository.
type RepoScraper struct {
	repo   repo.Browser
	logger zerolog.Logger
}

// JobLister is the part of the job service API the tenant collector needs.
type JobLister interface {
	GetJobs(ctx context.Context, tenant string) map[string][]json.RawMessage
}

// TenantJobCollector turns a tenant's job list into canonical job records.
type TenantJobCollector struct {
	tenant     string
	api        JobLister
	renderer   render.Renderer
	scrapeTime time.Time
	logger     zerolog.Logger
}

// jobVariant holds the fields read from one job variant payload.
type jobVariant struct {
	Description   string  `json:"description"`
	Parent        *string `json:"parent"`
	SourceContext *struct {
		Project string `json:"project"`
	} `json:"source_context"`
}

// RequiredFieldError reports a job variant missing a mandatory field.
type RequiredFieldError struct {
	Job   string
	Field string
}
