package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	index_model "ci-scraper/datamodel/index-model"
	"ci-scraper/internal/jobfile"

	"github.com/rs/zerolog"
)

// Open returns the Indexer for backend. target is a file path for SQLite and a
// connection URL for PostgreSQL.
func Open(ctx context.Context, backend, target string, logger zerolog.Logger) (Indexer, error) {
	switch backend {
	case BackendSQLite, "":
		return OpenSQLite(target, logger)
	case BackendPostgres:
		return OpenPostgres(ctx, target, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// mergeTenants returns the sorted union of both tenant lists.
func mergeTenants(existing, added []string) []string {
	merged := append(slices.Clone(existing), added...)
	slices.Sort(merged)
	return slices.Compact(merged)
}

// definitions parses a job file. A file that cannot be parsed contributes no
// definitions but is still stored.
func definitions(logger zerolog.Logger, repo string, file index_model.JobFileRecord) []jobfile.Definition {
	defs, err := jobfile.Parse(file.Content)
	if err != nil {
		logger.Error().
			Err(err).
			Str("repo", repo).
			Str("path", file.Path).
			Msg("Failed to parse job file")
		return nil
	}
	return defs
}

// jobFilePaths and roleNames list what a scrape found, so rows for anything
// else in the repository can be pruned. Both are non-nil: a nil slice would
// reach PostgreSQL as NULL and prune nothing.
func jobFilePaths(files index_model.JobFiles) []string {
	paths := slices.AppendSeq(make([]string, 0, len(files)), maps.Keys(files))
	slices.Sort(paths)
	return paths
}

func roleNames(roles index_model.RoleFiles) []string {
	names := slices.AppendSeq(make([]string, 0, len(roles)), maps.Keys(roles))
	slices.Sort(names)
	return names
}

// blameOf never returns nil so the blame column stays a JSON array.
func blameOf(file index_model.JobFileRecord) []index_model.BlameRange {
	if file.Blame == nil {
		return []index_model.BlameRange{}
	}
	return file.Blame
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
