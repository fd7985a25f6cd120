package scraper

import (
	"context"
	"fmt"
	"maps"
	"slices"

	index_model "ci-scraper/datamodel/index-model"
	"ci-scraper/internal/repo"

	"github.com/rs/zerolog"
)

// NewRepoScraper creates a scraper for the repository behind browser.
func NewRepoScraper(browser repo.Browser, logger zerolog.Logger) *RepoScraper {
	return &RepoScraper{
		repo: browser,
		logger: logger.With().
			Str("component", "scraper").
			Str("repo", browser.Name()).
			Logger(),
	}
}

// Scrape returns every job file and role found under the conventional locations.
// Missing or inaccessible paths are logged and skipped.
func (s *RepoScraper) Scrape(ctx context.Context) (index_model.JobFiles, index_model.RoleFiles) {
	s.logger.Info().Msg("Scraping repository")

	jobFiles := s.CheckOutJobFiles(ctx)
	roleFiles := s.CheckOutRoleFiles(ctx)

	s.logger.Info().
		Int("job_files", len(jobFiles)).
		Int("roles", len(roleFiles)).
		Msg("Repository scraped")
	return jobFiles, roleFiles
}

// CheckOutJobFiles collects the files in the job directories and the single
// job files present at the repository root.
func (s *RepoScraper) CheckOutJobFiles(ctx context.Context) index_model.JobFiles {
	jobFiles := index_model.JobFiles{}

	rootFiles, err := s.repo.ListDirectory(ctx, repo.Root)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list repository root")
		return jobFiles
	}

	for _, directory := range JobDirectories {
		if _, ok := rootFiles[directory]; !ok {
			continue
		}
		remoteFiles, err := s.repo.ListDirectory(ctx, directory)
		if err != nil {
			s.logger.Debug().Err(err).Str("directory", directory).Msg("Skipping job directory")
			continue
		}
		for _, name := range slices.Sorted(maps.Keys(remoteFiles)) {
			relPath := remoteFiles[name].Path
			if _, seen := jobFiles[relPath]; seen {
				continue
			}
			record, err := s.checkOutJobFile(ctx, relPath)
			if err != nil {
				s.logger.Error().Err(err).Str("path", relPath).Msg("Failed to check out job file")
				continue
			}
			jobFiles[relPath] = record
		}
	}

	for _, name := range JobFileNames {
		if _, ok := rootFiles[name]; !ok {
			continue
		}
		if _, seen := jobFiles[name]; seen {
			continue
		}
		record, err := s.checkOutJobFile(ctx, name)
		if err != nil {
			s.logger.Debug().Err(err).Str("path", name).Msg("Skipping job file")
			continue
		}
		jobFiles[name] = record
	}

	return jobFiles
}

func (s *RepoScraper) checkOutJobFile(ctx context.Context, relPath string) (index_model.JobFileRecord, error) {
	lastChanged, err := s.repo.LastChanged(ctx, relPath)
	if err != nil {
		return index_model.JobFileRecord{}, fmt.Errorf("failed to get last change: %w", err)
	}
	blame, err := s.repo.Blame(ctx, relPath)
	if err != nil {
		return index_model.JobFileRecord{}, fmt.Errorf("failed to get blame: %w", err)
	}
	content, err := s.repo.CheckOutFile(ctx, relPath)
	if err != nil {
		return index_model.JobFileRecord{}, fmt.Errorf("failed to check out: %w", err)
	}
	return index_model.JobFileRecord{
		Path:        relPath,
		LastChanged: lastChanged,
		Blame:       blame,
		Content:     content,
	}, nil
}

// CheckOutRoleFiles collects one record per role directory. A missing roles
// directory yields an empty result.
func (s *RepoScraper) CheckOutRoleFiles(ctx context.Context) index_model.RoleFiles {
	roleFiles := index_model.RoleFiles{}

	roles, err := s.repo.ListDirectory(ctx, RolesDirectory)
	if err != nil {
		s.logger.Debug().Err(err).Msg("No roles directory")
		return roleFiles
	}

	for _, roleName := range slices.Sorted(maps.Keys(roles)) {
		rolePath := roles[roleName].Path
		roleLogger := s.logger.With().Str("role", roleName).Logger()

		lastChanged, err := s.repo.LastChanged(ctx, rolePath)
		if err != nil {
			roleLogger.Error().Err(err).Msg("Failed to get last change of role")
			continue
		}
		existingFiles, err := s.repo.ListDirectory(ctx, rolePath)
		if err != nil {
			roleLogger.Error().Err(err).Msg("Failed to list role directory")
			continue
		}
		if len(existingFiles) == 0 {
			roleLogger.Debug().Msg("Skipping empty role directory")
			continue
		}

		roleFiles[roleName] = index_model.RoleRecord{
			Name:          roleName,
			LastChanged:   lastChanged,
			ReadmeFile:    s.findMatchingFile(ctx, ReadmeFiles, existingFiles, roleLogger),
			ChangelogFile: s.findMatchingFile(ctx, ChangelogFiles, existingFiles, roleLogger),
		}
	}

	return roleFiles
}

// findMatchingFile checks out the first candidate, in priority order, that exists.
func (s *RepoScraper) findMatchingFile(ctx context.Context, candidates []string, existing map[string]repo.DirEntry, logger zerolog.Logger) *index_model.FileRef {
	for _, candidate := range candidates {
		entry, ok := existing[candidate]
		if !ok {
			continue
		}
		content, err := s.repo.CheckOutFile(ctx, entry.Path)
		if err != nil {
			logger.Error().Err(err).Str("path", entry.Path).Msg("Failed to check out role file")
			return nil
		}
		return &index_model.FileRef{Path: entry.Path, Content: content}
	}
	return nil
}
