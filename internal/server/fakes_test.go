package server

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"strings"
	"sync"
	"time"

	index_model "ci-scraper/datamodel/index-model"
	"ci-scraper/internal/config"
	"ci-scraper/internal/repo"
	"ci-scraper/internal/sources"
	"ci-scraper/internal/store"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	mu       sync.Mutex
	jobFiles map[string]index_model.JobFiles
	roles    map[string]index_model.RoleFiles
	jobs     []index_model.CanonicalJobRecord
	fail     error
	closed   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobFiles: map[string]index_model.JobFiles{},
		roles:    map[string]index_model.RoleFiles{},
	}
}

func (f *fakeStore) SaveJobFiles(ctx context.Context, repo string, files index_model.JobFiles) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobFiles[repo] = files
	return f.fail
}

func (f *fakeStore) SaveRoles(ctx context.Context, repo string, roles index_model.RoleFiles) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[repo] = roles
	return f.fail
}

func (f *fakeStore) SaveJobs(ctx context.Context, jobs []index_model.CanonicalJobRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobs...)
	return f.fail
}

func (f *fakeStore) ListJobs(ctx context.Context, tenant string) ([]index_model.CanonicalJobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	out := []index_model.CanonicalJobRecord{}
	for _, job := range f.jobs {
		for _, t := range job.Tenants {
			if t == tenant {
				out = append(out, job)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) FindDefinitions(ctx context.Context, jobName string) ([]store.DefinitionLocation, error) {
	return []store.DefinitionLocation{{Repo: "org/zuul-jobs", Path: "zuul.yaml", Name: jobName, LineStart: 1, LineEnd: 3}}, nil
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeJobService struct {
	mu       sync.Mutex
	jobs     map[string][]json.RawMessage
	job      []byte
	search   []byte
	searches []string
}

func (f *fakeJobService) GetJobs(ctx context.Context, tenant string) map[string][]json.RawMessage {
	return f.jobs
}

func (f *fakeJobService) GetJob(ctx context.Context, tenant, jobName string) []byte {
	return f.job
}

func (f *fakeJobService) SearchJobs(ctx context.Context, query string, exact bool, start, end int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	return f.search
}

// flatBrowser serves a fixed set of files; directories are derived from paths.
type flatBrowser struct {
	name  string
	files map[string]string
}

var errMissing = errors.New("missing")

func (b *flatBrowser) Name() string { return b.name }

func (b *flatBrowser) ListDirectory(ctx context.Context, p string) (map[string]repo.DirEntry, error) {
	dir := strings.Trim(p, "/")
	entries := map[string]repo.DirEntry{}
	for file := range b.files {
		rel := file
		if dir != "" {
			if !strings.HasPrefix(file, dir+"/") {
				continue
			}
			rel = strings.TrimPrefix(file, dir+"/")
		}
		name, rest, nested := strings.Cut(rel, "/")
		kind := repo.KindFile
		if nested && rest != "" {
			kind = repo.KindDir
		}
		entries[name] = repo.DirEntry{Name: name, Path: path.Join(dir, name), Kind: kind}
	}
	if len(entries) == 0 && dir != "" {
		return nil, errMissing
	}
	return entries, nil
}

func (b *flatBrowser) CheckOutFile(ctx context.Context, p string) (string, error) {
	content, ok := b.files[strings.Trim(p, "/")]
	if !ok {
		return "", errMissing
	}
	return content, nil
}

func (b *flatBrowser) LastChanged(ctx context.Context, p string) (time.Time, error) {
	return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), nil
}

func (b *flatBrowser) Blame(ctx context.Context, p string) ([]index_model.BlameRange, error) {
	return []index_model.BlameRange{{StartLine: 1, EndLine: 1, Commit: "abc"}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ServerPort:  "0",
		WorkerCount: 2,
		RateLimit:   100,
	}
}

func newTestServer(st *fakeStore, jobs JobService, browsers BrowserFactory, src sources.Sources) *Server {
	return NewServer(Dependencies{
		Config:   testConfig(),
		Store:    st,
		Jobs:     jobs,
		Browsers: browsers,
		Sources:  src,
		Logger:   zerolog.Nop(),
	})
}

func staticBrowsers(b repo.Browser) BrowserFactory {
	return func(ctx context.Context, repoName string) (repo.Browser, func(), error) {
		if b == nil {
			return nil, func() {}, errMissing
		}
		return b, func() {}, nil
	}
}
