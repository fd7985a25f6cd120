package store

import (
	"context"
	"fmt"

	index_model "ci-scraper/datamodel/index-model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS job_files (
		repo TEXT NOT NULL,
		path TEXT NOT NULL,
		last_changed TIMESTAMPTZ NOT NULL,
		blame JSONB NOT NULL,
		content TEXT NOT NULL,
		PRIMARY KEY (repo, path)
	)`,
	`CREATE TABLE IF NOT EXISTS job_definitions (
		repo TEXT NOT NULL,
		path TEXT NOT NULL,
		name TEXT NOT NULL,
		parent TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		line_start INTEGER NOT NULL,
		line_end INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS job_definitions_name ON job_definitions (name)`,
	`CREATE TABLE IF NOT EXISTS roles (
		repo TEXT NOT NULL,
		name TEXT NOT NULL,
		last_changed TIMESTAMPTZ NOT NULL,
		readme_path TEXT,
		readme_content TEXT,
		changelog_path TEXT,
		changelog_content TEXT,
		PRIMARY KEY (repo, name)
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		job_name TEXT NOT NULL,
		repo TEXT,
		tenants TEXT[] NOT NULL,
		private BOOLEAN NOT NULL DEFAULT FALSE,
		scrape_time TIMESTAMPTZ NOT NULL,
		description TEXT NOT NULL,
		description_html TEXT,
		platforms TEXT[] NOT NULL,
		parent TEXT NOT NULL
	)`,
}

// OpenPostgres connects to databaseURL, verifies the connection and creates the
// schema.
func OpenPostgres(ctx context.Context, databaseURL string, logger zerolog.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create postgres schema: %w", err)
		}
	}
	return &Postgres{
		pool:   pool,
		logger: logger.With().Str("component", "store").Str("backend", BackendPostgres).Logger(),
	}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) SaveJobFiles(ctx context.Context, repo string, files index_model.JobFiles) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		paths := jobFilePaths(files)
		for _, table := range []string{"job_files", "job_definitions"} {
			if _, err := tx.Exec(ctx,
				`DELETE FROM `+table+` WHERE repo = $1 AND path <> ALL($2)`, repo, paths,
			); err != nil {
				return fmt.Errorf("failed to prune %s of %s: %w", table, repo, err)
			}
		}

		for _, file := range files {
			if _, err := tx.Exec(ctx,
				`INSERT INTO job_files (repo, path, last_changed, blame, content)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (repo, path) DO UPDATE SET
				   last_changed = EXCLUDED.last_changed,
				   blame = EXCLUDED.blame,
				   content = EXCLUDED.content`,
				repo, file.Path, file.LastChanged, blameOf(file), file.Content,
			); err != nil {
				return fmt.Errorf("failed to save job file %s: %w", file.Path, err)
			}

			if _, err := tx.Exec(ctx,
				`DELETE FROM job_definitions WHERE repo = $1 AND path = $2`, repo, file.Path,
			); err != nil {
				return fmt.Errorf("failed to clear definitions of %s: %w", file.Path, err)
			}
			for _, def := range definitions(p.logger, repo, file) {
				if _, err := tx.Exec(ctx,
					`INSERT INTO job_definitions (repo, path, name, parent, description, line_start, line_end)
					 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					repo, file.Path, def.Name, def.Parent, def.Description, def.LineStart, def.LineEnd,
				); err != nil {
					return fmt.Errorf("failed to save definition %s: %w", def.Name, err)
				}
			}
		}
		return nil
	})
}

func (p *Postgres) SaveRoles(ctx context.Context, repo string, roles index_model.RoleFiles) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM roles WHERE repo = $1 AND name <> ALL($2)`, repo, roleNames(roles),
		); err != nil {
			return fmt.Errorf("failed to prune roles of %s: %w", repo, err)
		}

		for _, role := range roles {
			readmePath, readmeContent := fileColumns(role.ReadmeFile)
			changelogPath, changelogContent := fileColumns(role.ChangelogFile)
			if _, err := tx.Exec(ctx,
				`INSERT INTO roles (repo, name, last_changed, readme_path, readme_content, changelog_path, changelog_content)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (repo, name) DO UPDATE SET
				   last_changed = EXCLUDED.last_changed,
				   readme_path = EXCLUDED.readme_path,
				   readme_content = EXCLUDED.readme_content,
				   changelog_path = EXCLUDED.changelog_path,
				   changelog_content = EXCLUDED.changelog_content`,
				repo, role.Name, role.LastChanged,
				readmePath, readmeContent, changelogPath, changelogContent,
			); err != nil {
				return fmt.Errorf("failed to save role %s: %w", role.Name, err)
			}
		}
		return nil
	})
}

func (p *Postgres) SaveJobs(ctx context.Context, jobs []index_model.CanonicalJobRecord) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, job := range jobs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO jobs (id, job_name, repo, tenants, private, scrape_time, description, description_html, platforms, parent)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 ON CONFLICT (id) DO UPDATE SET
				   job_name = EXCLUDED.job_name,
				   repo = EXCLUDED.repo,
				   tenants = ARRAY(SELECT DISTINCT t FROM unnest(jobs.tenants || EXCLUDED.tenants) AS t ORDER BY t),
				   private = EXCLUDED.private,
				   scrape_time = EXCLUDED.scrape_time,
				   description = EXCLUDED.description,
				   description_html = EXCLUDED.description_html,
				   platforms = EXCLUDED.platforms,
				   parent = EXCLUDED.parent`,
				job.ID, job.JobName, job.Repo, mergeTenants(nil, job.Tenants), job.Private,
				job.ScrapeTime, job.Description, job.DescriptionHTML, job.Platforms, job.Parent,
			); err != nil {
				return fmt.Errorf("failed to save job %s: %w", job.JobName, err)
			}
		}
		return nil
	})
}

func (p *Postgres) ListJobs(ctx context.Context, tenant string) ([]index_model.CanonicalJobRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, job_name, repo, tenants, private, scrape_time, description, description_html, platforms, parent
		 FROM jobs WHERE $1 = ANY(tenants)
		 ORDER BY job_name, id`, tenant,
	)
	if err != nil {
		return nil, fmt.Errorf("listJobs query: %w", err)
	}
	defer rows.Close()

	jobs := []index_model.CanonicalJobRecord{}
	for rows.Next() {
		var job index_model.CanonicalJobRecord
		if err := rows.Scan(
			&job.ID, &job.JobName, &job.Repo, &job.Tenants, &job.Private,
			&job.ScrapeTime, &job.Description, &job.DescriptionHTML, &job.Platforms, &job.Parent,
		); err != nil {
			return nil, fmt.Errorf("listJobs scan: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (p *Postgres) FindDefinitions(ctx context.Context, jobName string) ([]DefinitionLocation, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT repo, path, name, parent, description, line_start, line_end
		 FROM job_definitions WHERE name = $1 ORDER BY repo, path, line_start`, jobName,
	)
	if err != nil {
		return nil, fmt.Errorf("findDefinitions query: %w", err)
	}
	defer rows.Close()

	locations := []DefinitionLocation{}
	for rows.Next() {
		var loc DefinitionLocation
		if err := rows.Scan(&loc.Repo, &loc.Path, &loc.Name, &loc.Parent, &loc.Description, &loc.LineStart, &loc.LineEnd); err != nil {
			return nil, fmt.Errorf("findDefinitions scan: %w", err)
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}
