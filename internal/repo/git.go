package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	index_model "ci-scraper/datamodel/index-model"

	"github.com/rs/zerolog"
	"gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
)

// GitRepository browses the HEAD commit of a local git repository.
type GitRepository struct {
	name   string
	repo   *git.Repository
	logger zerolog.Logger
}

// CloneGitRepository clones cloneURL into dir and returns a browser for it.
func CloneGitRepository(ctx context.Context, name, cloneURL, dir string, logger zerolog.Logger) (*GitRepository, error) {
	logger = logger.With().Str("component", "git").Str("repo", name).Logger()
	logger.Info().Str("clone_url", maskTokenInURL(cloneURL)).Str("dir", dir).Msg("Cloning repository")

	r, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:      cloneURL,
		Progress: &gitOutputWriter{logger: logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository %s: %w", name, err)
	}
	return &GitRepository{name: name, repo: r, logger: logger}, nil
}

// OpenGitRepository returns a browser for an existing checkout in dir.
func OpenGitRepository(name, dir string, logger zerolog.Logger) (*GitRepository, error) {
	r, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository %s: %w", name, err)
	}
	return &GitRepository{
		name:   name,
		repo:   r,
		logger: logger.With().Str("component", "git").Str("repo", name).Logger(),
	}, nil
}

func (r *GitRepository) Name() string {
	return r.name
}

func (r *GitRepository) ListDirectory(ctx context.Context, path string) (map[string]DirEntry, error) {
	p := normalizePath(path)
	tree, err := r.headTree()
	if err != nil {
		return nil, checkoutError("list_directory", r.name, path, err)
	}
	if p != "" {
		tree, err = tree.Tree(p)
		if err != nil {
			return nil, checkoutError("list_directory", r.name, path, notFound(err))
		}
	}

	entries := make(map[string]DirEntry, len(tree.Entries))
	for _, e := range tree.Entries {
		kind := KindFile
		if e.Mode == filemode.Dir {
			kind = KindDir
		}
		full := e.Name
		if p != "" {
			full = p + "/" + e.Name
		}
		entries[e.Name] = DirEntry{Name: e.Name, Path: full, Kind: kind}
	}
	return entries, nil
}

func (r *GitRepository) CheckOutFile(ctx context.Context, path string) (string, error) {
	tree, err := r.headTree()
	if err != nil {
		return "", checkoutError("check_out_file", r.name, path, err)
	}
	file, err := tree.File(normalizePath(path))
	if err != nil {
		return "", checkoutError("check_out_file", r.name, path, notFound(err))
	}
	content, err := file.Contents()
	if err != nil {
		return "", checkoutError("check_out_file", r.name, path, err)
	}
	return content, nil
}

// LastChanged follows the first-parent history from HEAD and returns the
// commit time of the oldest commit in which the path still has its current hash.
func (r *GitRepository) LastChanged(ctx context.Context, path string) (time.Time, error) {
	p := normalizePath(path)
	commit, err := r.headCommit()
	if err != nil {
		return time.Time{}, checkoutError("last_changed", r.name, path, err)
	}
	current, err := pathHash(commit, p)
	if err != nil {
		return time.Time{}, checkoutError("last_changed", r.name, path, notFound(err))
	}

	for commit.NumParents() > 0 {
		if err := ctx.Err(); err != nil {
			return time.Time{}, checkoutError("last_changed", r.name, path, err)
		}
		parent, err := commit.Parent(0)
		if err != nil {
			return time.Time{}, checkoutError("last_changed", r.name, path, err)
		}
		previous, err := pathHash(parent, p)
		if err != nil || previous != current {
			break
		}
		commit = parent
	}
	return commit.Committer.When, nil
}

func (r *GitRepository) Blame(ctx context.Context, path string) ([]index_model.BlameRange, error) {
	commit, err := r.headCommit()
	if err != nil {
		return nil, checkoutError("blame", r.name, path, err)
	}
	result, err := git.Blame(commit, normalizePath(path))
	if err != nil {
		return nil, checkoutError("blame", r.name, path, notFound(err))
	}

	return blameRanges(result.Lines), nil
}

// blameRanges merges consecutive lines of the same commit. An empty file
// yields an empty, non-nil slice.
func blameRanges(lines []*git.Line) []index_model.BlameRange {
	ranges := make([]index_model.BlameRange, 0)
	for i, line := range lines {
		n := i + 1
		if last := len(ranges) - 1; last >= 0 && ranges[last].Commit == line.Hash.String() {
			ranges[last].EndLine = n
			continue
		}
		ranges = append(ranges, index_model.BlameRange{
			StartLine: n,
			EndLine:   n,
			Commit:    line.Hash.String(),
			Author:    line.Author,
			Date:      line.Date,
		})
	}
	return ranges
}

func (r *GitRepository) headCommit() (*object.Commit, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return r.repo.CommitObject(ref.Hash())
}

func (r *GitRepository) headTree() (*object.Tree, error) {
	commit, err := r.headCommit()
	if err != nil {
		return nil, err
	}
	return commit.Tree()
}

func pathHash(commit *object.Commit, p string) (plumbing.Hash, error) {
	tree, err := commit.Tree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if p == "" {
		return tree.Hash, nil
	}
	entry, err := tree.FindEntry(p)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return entry.Hash, nil
}

func notFound(err error) error {
	if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) ||
		errors.Is(err, object.ErrEntryNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// gitOutputWriter turns clone progress into log lines
type gitOutputWriter struct {
	logger zerolog.Logger
}

func (w *gitOutputWriter) Write(p []byte) (n int, err error) {
	output := strings.TrimSpace(string(p))
	if output != "" {
		w.logger.Debug().Str("progress", output).Msg("Git clone progress")
	}
	return len(p), nil
}
