package repo

import (
	"context"
	"time"

	index_model "ci-scraper/datamodel/index-model"
)

// Root is the path used to list the top level of a repository.
const Root = "/"

// Entry kinds reported by ListDirectory.
const (
	KindFile = "file"
	KindDir  = "dir"
)

// DirEntry is a single item of a directory listing.
type DirEntry struct {
	Name string
	Path string
	Kind string
}

// Browser gives read access to a single repository tree.
type Browser interface {
	Name() string
	ListDirectory(ctx context.Context, path string) (map[string]DirEntry, error)
	CheckOutFile(ctx context.Context, path string) (string, error)
	LastChanged(ctx context.Context, path string) (time.Time, error)
	Blame(ctx context.Context, path string) ([]index_model.BlameRange, error)
}

// CheckoutError reports a repository lookup that could not complete.
type CheckoutError struct {
	Op   string
	Repo string
	Path string
	Err  error
}
