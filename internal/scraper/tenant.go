package scraper

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	index_model "ci-scraper/datamodel/index-model"
	"ci-scraper/internal/render"

	"github.com/rs/zerolog"
)

// absentRepo is hashed in place of the repository for jobs without source context.
const absentRepo = "None"

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("job %s is missing required field %q", e.Job, e.Field)
}

// NewTenantJobCollector creates a collector for one tenant and one scrape run.
func NewTenantJobCollector(tenant string, api JobLister, renderer render.Renderer, scrapeTime time.Time, logger zerolog.Logger) *TenantJobCollector {
	return &TenantJobCollector{
		tenant:     tenant,
		api:        api,
		renderer:   renderer,
		scrapeTime: scrapeTime,
		logger: logger.With().
			Str("component", "scraper").
			Str("tenant", tenant).
			Logger(),
	}
}

// JobID derives the stable record id of a job from its defining repository and name.
// Variants of the same job in the same repository share an id.
func JobID(repo *string, jobName string) string {
	repoName := absentRepo
	if repo != nil {
		repoName = *repo
	}
	sum := sha1.Sum([]byte(repoName + jobName))
	return hex.EncodeToString(sum[:])
}

// Scrape returns one record per job variant of the tenant. It returns nil when
// the job service has no job list for the tenant.
func (c *TenantJobCollector) Scrape(ctx context.Context) []index_model.CanonicalJobRecord {
	tenantJobs := c.api.GetJobs(ctx, c.tenant)
	if tenantJobs == nil {
		c.logger.Warn().Msg("No job list to parse for tenant")
		return nil
	}
	c.logger.Info().Int("job_definitions", len(tenantJobs)).Msg("Found job definitions for tenant")

	records, errs := c.ParseJobDefinitions(tenantJobs)
	for _, err := range errs {
		c.logger.Error().Err(err).Msg("Skipping job variant")
	}
	return records
}

// ParseJobDefinitions converts every variant of every job. Variants that cannot be
// converted are left out and reported in the returned errors.
func (c *TenantJobCollector) ParseJobDefinitions(tenantJobs map[string][]json.RawMessage) ([]index_model.CanonicalJobRecord, []error) {
	c.logger.Info().Msg("Parsing job definitions for tenant")

	records := []index_model.CanonicalJobRecord{}
	var errs []error
	for _, jobName := range slices.Sorted(maps.Keys(tenantJobs)) {
		for _, raw := range tenantJobs[jobName] {
			record, err := c.parseVariant(jobName, raw)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			records = append(records, record)
		}
	}
	return records, errs
}

func (c *TenantJobCollector) parseVariant(jobName string, raw json.RawMessage) (index_model.CanonicalJobRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return index_model.CanonicalJobRecord{}, fmt.Errorf("failed to decode variant of job %s: %w", jobName, err)
	}
	// "parent": null marks a base job; only a missing key is a violation.
	if _, ok := fields["parent"]; !ok {
		return index_model.CanonicalJobRecord{}, &RequiredFieldError{Job: jobName, Field: "parent"}
	}

	var variant jobVariant
	if err := json.Unmarshal(raw, &variant); err != nil {
		return index_model.CanonicalJobRecord{}, fmt.Errorf("failed to decode variant of job %s: %w", jobName, err)
	}

	var repoName *string
	if variant.SourceContext != nil && variant.SourceContext.Project != "" {
		project := variant.SourceContext.Project
		repoName = &project
	}

	record := index_model.CanonicalJobRecord{
		ID:          JobID(repoName, jobName),
		JobName:     jobName,
		Repo:        repoName,
		Tenants:     []string{c.tenant},
		Private:     false,
		ScrapeTime:  c.scrapeTime,
		Description: variant.Description,
		Platforms:   []string{},
	}
	if variant.Parent != nil {
		record.Parent = *variant.Parent
	}

	doc, err := c.renderer.Render(variant.Description)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("job", jobName).
			Str("repo", record.RepoName()).
			Msg("Description of job could not be converted to HTML")
		return record, nil
	}
	descriptionHTML := doc.HTML
	record.DescriptionHTML = &descriptionHTML
	if doc.Platforms != nil {
		record.Platforms = doc.Platforms
	}
	return record, nil
}
