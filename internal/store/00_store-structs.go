package store

import (
	"context"
	"database/sql"
	"errors"

	index_model "ci-scraper/datamodel/index-model"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var ErrUnknownBackend = errors.New("unknown store backend")

// Indexer persists scrape results.
type Indexer interface {
	SaveJobFiles(ctx context.Context, repo string, files index_model.JobFiles) error
	SaveRoles(ctx context.Context, repo string, roles index_model.RoleFiles) error
	SaveJobs(ctx context.Context, jobs []index_model.CanonicalJobRecord) error
	ListJobs(ctx context.Context, tenant string) ([]index_model.CanonicalJobRecord, error)
	FindDefinitions(ctx context.Context, jobName string) ([]DefinitionLocation, error)
	Close() error
}

// DefinitionLocation points at a job definition inside a scraped job file.
type DefinitionLocation struct {
	Repo        string `json:"repo"`
	Path        string `json:"path"`
	Name        string `json:"name"`
	Parent      string `json:"parent,omitempty"`
	Description string `json:"description,omitempty"`
	LineStart   int    `json:"line_start"`
	LineEnd     int    `json:"line_end"`
}

// SQLite is an Indexer backed by a local SQLite file.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Postgres is an Indexer backed by a PostgreSQL connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}
