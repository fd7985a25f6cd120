package scraper

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	index_model "ci-scraper/datamodel/index-model"
	"ci-scraper/internal/repo"
)

var errUnavailable = errors.New("unavailable")

// fakeBrowser serves an in-memory tree. Files map paths to content; directories
// are derived from the file paths. Per-operation failures are injected by path.
type fakeBrowser struct {
	files     map[string]string
	emptyDirs map[string]bool
	failList  map[string]bool
	failLast  map[string]bool
	failBlame map[string]bool
	failFile  map[string]bool
	checkouts map[string]int
	// extra entries appended to a directory listing, keyed by directory
	extra map[string][]repo.DirEntry
}

func newFakeBrowser(files map[string]string) *fakeBrowser {
	return &fakeBrowser{
		files:     files,
		emptyDirs: map[string]bool{},
		failList:  map[string]bool{},
		failLast:  map[string]bool{},
		failBlame: map[string]bool{},
		failFile:  map[string]bool{},
		checkouts: map[string]int{},
		extra:     map[string][]repo.DirEntry{},
	}
}

func (f *fakeBrowser) Name() string { return "org/project" }

func (f *fakeBrowser) fail(op, p string) error {
	return &repo.CheckoutError{Op: op, Repo: f.Name(), Path: p, Err: errUnavailable}
}

func (f *fakeBrowser) isDir(p string) bool {
	if f.emptyDirs[p] {
		return true
	}
	for name := range f.files {
		if strings.HasPrefix(name, p+"/") {
			return true
		}
	}
	return false
}

func (f *fakeBrowser) ListDirectory(ctx context.Context, p string) (map[string]repo.DirEntry, error) {
	p = strings.Trim(p, "/")
	if f.failList[p] {
		return nil, f.fail("list_directory", p)
	}
	if p != "" && !f.isDir(p) {
		return nil, &repo.CheckoutError{Op: "list_directory", Repo: f.Name(), Path: p, Err: repo.ErrNotFound}
	}

	entries := map[string]repo.DirEntry{}
	prefix := ""
	if p != "" {
		prefix = p + "/"
	}
	for name := range f.files {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		child, _, nested := strings.Cut(rest, "/")
		kind := repo.KindFile
		if nested {
			kind = repo.KindDir
		}
		entries[child] = repo.DirEntry{Name: child, Path: path.Join(p, child), Kind: kind}
	}
	for dir := range f.emptyDirs {
		if path.Dir(dir) == p || (p == "" && path.Dir(dir) == ".") {
			entries[path.Base(dir)] = repo.DirEntry{Name: path.Base(dir), Path: dir, Kind: repo.KindDir}
		}
	}
	for _, entry := range f.extra[p] {
		entries[entry.Name] = entry
	}
	return entries, nil
}

func (f *fakeBrowser) CheckOutFile(ctx context.Context, p string) (string, error) {
	f.checkouts[p]++
	content, ok := f.files[p]
	if !ok || f.failFile[p] {
		return "", f.fail("check_out_file", p)
	}
	return content, nil
}

func (f *fakeBrowser) LastChanged(ctx context.Context, p string) (time.Time, error) {
	if f.failLast[p] {
		return time.Time{}, f.fail("last_changed", p)
	}
	if _, ok := f.files[p]; !ok && !f.isDir(p) {
		return time.Time{}, f.fail("last_changed", p)
	}
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), nil
}

func (f *fakeBrowser) Blame(ctx context.Context, p string) ([]index_model.BlameRange, error) {
	if f.failBlame[p] {
		return nil, f.fail("blame", p)
	}
	if _, ok := f.files[p]; !ok {
		return nil, f.fail("blame", p)
	}
	return []index_model.BlameRange{{StartLine: 1, EndLine: 1, Commit: "abc", Author: "Jane"}}, nil
}
