package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	index_model "ci-scraper/datamodel/index-model"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS job_files (
  repo TEXT NOT NULL,
  path TEXT NOT NULL,
  last_changed INTEGER NOT NULL,
  blame_json TEXT NOT NULL,
  content TEXT NOT NULL,
  PRIMARY KEY (repo, path)
);
CREATE TABLE IF NOT EXISTS job_definitions (
  repo TEXT NOT NULL,
  path TEXT NOT NULL,
  name TEXT NOT NULL,
  parent TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  line_start INTEGER NOT NULL,
  line_end INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS job_definitions_name ON job_definitions (name);
CREATE TABLE IF NOT EXISTS roles (
  repo TEXT NOT NULL,
  name TEXT NOT NULL,
  last_changed INTEGER NOT NULL,
  readme_path TEXT,
  readme_content TEXT,
  changelog_path TEXT,
  changelog_content TEXT,
  PRIMARY KEY (repo, name)
);
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  job_name TEXT NOT NULL,
  repo TEXT,
  tenants_json TEXT NOT NULL,
  private INTEGER NOT NULL DEFAULT 0,
  scrape_time INTEGER NOT NULL,
  description TEXT NOT NULL,
  description_html TEXT,
  platforms_json TEXT NOT NULL,
  parent TEXT NOT NULL
);
`

// OpenSQLite opens (and if needed creates) the index database at path.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// one writer at a time; concurrent scrape workers queue on the pool
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &SQLite{
		db:     db,
		logger: logger.With().Str("component", "store").Str("backend", BackendSQLite).Logger(),
	}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) SaveJobFiles(ctx context.Context, repo string, files index_model.JobFiles) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	paths, err := encodeJSON(jobFilePaths(files))
	if err != nil {
		return fmt.Errorf("failed to encode job file paths: %w", err)
	}
	for _, table := range []string{"job_files", "job_definitions"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE repo = ? AND path NOT IN (SELECT value FROM json_each(?))`,
			repo, paths,
		); err != nil {
			return fmt.Errorf("failed to prune %s of %s: %w", table, repo, err)
		}
	}

	for _, file := range files {
		blame, err := encodeJSON(blameOf(file))
		if err != nil {
			return fmt.Errorf("failed to encode blame of %s: %w", file.Path, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_files (repo, path, last_changed, blame_json, content)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (repo, path) DO UPDATE SET
           last_changed = excluded.last_changed,
           blame_json = excluded.blame_json,
           content = excluded.content`,
			repo, file.Path, file.LastChanged.UnixMilli(), blame, file.Content,
		); err != nil {
			return fmt.Errorf("failed to save job file %s: %w", file.Path, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM job_definitions WHERE repo = ? AND path = ?`, repo, file.Path,
		); err != nil {
			return fmt.Errorf("failed to clear definitions of %s: %w", file.Path, err)
		}
		for _, def := range definitions(s.logger, repo, file) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO job_definitions (repo, path, name, parent, description, line_start, line_end)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
				repo, file.Path, def.Name, def.Parent, def.Description, def.LineStart, def.LineEnd,
			); err != nil {
				return fmt.Errorf("failed to save definition %s: %w", def.Name, err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLite) SaveRoles(ctx context.Context, repo string, roles index_model.RoleFiles) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	names, err := encodeJSON(roleNames(roles))
	if err != nil {
		return fmt.Errorf("failed to encode role names: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM roles WHERE repo = ? AND name NOT IN (SELECT value FROM json_each(?))`,
		repo, names,
	); err != nil {
		return fmt.Errorf("failed to prune roles of %s: %w", repo, err)
	}

	for _, role := range roles {
		readmePath, readmeContent := fileColumns(role.ReadmeFile)
		changelogPath, changelogContent := fileColumns(role.ChangelogFile)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roles (repo, name, last_changed, readme_path, readme_content, changelog_path, changelog_content)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (repo, name) DO UPDATE SET
           last_changed = excluded.last_changed,
           readme_path = excluded.readme_path,
           readme_content = excluded.readme_content,
           changelog_path = excluded.changelog_path,
           changelog_content = excluded.changelog_content`,
			repo, role.Name, role.LastChanged.UnixMilli(),
			readmePath, readmeContent, changelogPath, changelogContent,
		); err != nil {
			return fmt.Errorf("failed to save role %s: %w", role.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) SaveJobs(ctx context.Context, jobs []index_model.CanonicalJobRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, job := range jobs {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT tenants_json FROM jobs WHERE id = ?`, job.ID).Scan(&existing)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to load job %s: %w", job.ID, err)
		}
		var tenants []string
		if existing != "" {
			if err := json.Unmarshal([]byte(existing), &tenants); err != nil {
				return fmt.Errorf("failed to decode tenants of job %s: %w", job.ID, err)
			}
		}
		tenantsJSON, err := encodeJSON(mergeTenants(tenants, job.Tenants))
		if err != nil {
			return err
		}
		platformsJSON, err := encodeJSON(job.Platforms)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, job_name, repo, tenants_json, private, scrape_time, description, description_html, platforms_json, parent)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (id) DO UPDATE SET
           job_name = excluded.job_name,
           repo = excluded.repo,
           tenants_json = excluded.tenants_json,
           private = excluded.private,
           scrape_time = excluded.scrape_time,
           description = excluded.description,
           description_html = excluded.description_html,
           platforms_json = excluded.platforms_json,
           parent = excluded.parent`,
			job.ID, job.JobName, nullableString(job.Repo), tenantsJSON, job.Private,
			job.ScrapeTime.UnixMilli(), job.Description, nullableString(job.DescriptionHTML),
			platformsJSON, job.Parent,
		); err != nil {
			return fmt.Errorf("failed to save job %s: %w", job.JobName, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) ListJobs(ctx context.Context, tenant string) ([]index_model.CanonicalJobRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_name, repo, tenants_json, private, scrape_time, description, description_html, platforms_json, parent
       FROM jobs
       WHERE EXISTS (SELECT 1 FROM json_each(jobs.tenants_json) WHERE json_each.value = ?)
       ORDER BY job_name, id`, tenant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []index_model.CanonicalJobRecord{}
	for rows.Next() {
		var (
			job                        index_model.CanonicalJobRecord
			repo, descriptionHTML      sql.NullString
			tenantsJSON, platformsJSON string
			scrapeMs                   int64
		)
		if err := rows.Scan(&job.ID, &job.JobName, &repo, &tenantsJSON, &job.Private, &scrapeMs,
			&job.Description, &descriptionHTML, &platformsJSON, &job.Parent); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if err := json.Unmarshal([]byte(tenantsJSON), &job.Tenants); err != nil {
			return nil, fmt.Errorf("failed to decode tenants of job %s: %w", job.ID, err)
		}
		if err := json.Unmarshal([]byte(platformsJSON), &job.Platforms); err != nil {
			return nil, fmt.Errorf("failed to decode platforms of job %s: %w", job.ID, err)
		}
		if repo.Valid {
			job.Repo = &repo.String
		}
		if descriptionHTML.Valid {
			job.DescriptionHTML = &descriptionHTML.String
		}
		job.ScrapeTime = time.UnixMilli(scrapeMs).UTC()
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLite) FindDefinitions(ctx context.Context, jobName string) ([]DefinitionLocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT repo, path, name, parent, description, line_start, line_end
       FROM job_definitions WHERE name = ? ORDER BY repo, path, line_start`, jobName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find definitions: %w", err)
	}
	defer rows.Close()

	locations := []DefinitionLocation{}
	for rows.Next() {
		var loc DefinitionLocation
		if err := rows.Scan(&loc.Repo, &loc.Path, &loc.Name, &loc.Parent, &loc.Description, &loc.LineStart, &loc.LineEnd); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func fileColumns(f *index_model.FileRef) (any, any) {
	if f == nil {
		return nil, nil
	}
	return f.Path, f.Content
}
