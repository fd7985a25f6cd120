package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	index_model "ci-scraper/datamodel/index-model"
	"ci-scraper/internal/sources"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func doRequest(s *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, staticBrowsers(nil), sources.Sources{})

	rec := doRequest(s, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestScrapeRepositoryValidation(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, staticBrowsers(nil), sources.Sources{})

	cases := []struct {
		name string
		body interface{}
		want int
	}{
		{name: "valid", body: map[string]string{"repository": "org/zuul-jobs"}, want: http.StatusAccepted},
		{name: "missing", body: map[string]string{}, want: http.StatusBadRequest},
		{name: "no org", body: map[string]string{"repository": "zuul-jobs"}, want: http.StatusBadRequest},
		{name: "url", body: map[string]string{"repository": "https://github.com/org/zuul-jobs"}, want: http.StatusBadRequest},
		{name: "not json", body: "just a string", want: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/api/scrape/repository", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestScrapeRepositoryQueuesRun(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, staticBrowsers(nil), sources.Sources{})

	rec := doRequest(s, http.MethodPost, "/api/scrape/repository", map[string]string{"repository": "org/zuul-jobs"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, err := uuid.Parse(resp.RunID); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", resp.RunID, err)
	}

	rec = doRequest(s, http.MethodGet, "/api/scrapes/"+resp.RunID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var run ScrapeRun
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != StatusQueued || run.Kind != RunKindRepository || run.Target != "org/zuul-jobs" || run.Trigger != "api" {
		t.Fatalf("unexpected run %+v", run)
	}

	rec = doRequest(s, http.MethodGet, "/api/scrapes", nil)
	var runs []ScrapeRun
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil || len(runs) != 1 {
		t.Fatalf("expected one run, got %s (%v)", rec.Body.String(), err)
	}

	if rec := doRequest(s, http.MethodGet, "/api/scrapes/"+uuid.NewString(), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestScrapeTenant(t *testing.T) {
	withoutService := newTestServer(newFakeStore(), nil, staticBrowsers(nil), sources.Sources{})
	if rec := doRequest(withoutService, http.MethodPost, "/api/scrape/tenant", map[string]string{"tenant": "main"}); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	s := newTestServer(newFakeStore(), &fakeJobService{}, staticBrowsers(nil), sources.Sources{})
	if rec := doRequest(s, http.MethodPost, "/api/scrape/tenant", map[string]string{"tenant": "main"}); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if rec := doRequest(s, http.MethodPost, "/api/scrape/tenant", map[string]string{"tenant": "a/b"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, staticBrowsers(nil), sources.Sources{})
	s.RateLimiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	body := map[string]string{"repository": "org/zuul-jobs"}
	if rec := doRequest(s, http.MethodPost, "/api/scrape/repository", body); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if rec := doRequest(s, http.MethodPost, "/api/scrape/repository", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestQueueFull(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, staticBrowsers(nil), sources.Sources{})
	s.RunQueue = make(chan *ScrapeRun, 1)

	body := map[string]string{"repository": "org/zuul-jobs"}
	doRequest(s, http.MethodPost, "/api/scrape/repository", body)
	if rec := doRequest(s, http.MethodPost, "/api/scrape/repository", body); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestTenantJobs(t *testing.T) {
	st := newFakeStore()
	st.jobs = []index_model.CanonicalJobRecord{
		{ID: "1", JobName: "tox", Tenants: []string{"main"}, Platforms: []string{}},
		{ID: "2", JobName: "lint", Tenants: []string{"other"}, Platforms: []string{}},
	}
	s := newTestServer(st, nil, staticBrowsers(nil), sources.Sources{})

	rec := doRequest(s, http.MethodGet, "/api/tenant/main/jobs", nil)
	var jobs []index_model.CanonicalJobRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobName != "tox" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	st.fail = errors.New("db down")
	if rec := doRequest(s, http.MethodGet, "/api/tenant/main/jobs", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestTenantJobProxy(t *testing.T) {
	svc := &fakeJobService{job: []byte(`[{"name":"tox"}]`)}
	s := newTestServer(newFakeStore(), svc, staticBrowsers(nil), sources.Sources{})

	rec := doRequest(s, http.MethodGet, "/api/tenant/main/job/tox", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != `[{"name":"tox"}]` {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	svc.job = nil
	if rec := doRequest(s, http.MethodGet, "/api/tenant/main/job/tox", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestSearchJobsProxy(t *testing.T) {
	svc := &fakeJobService{search: []byte(`{"hits":[]}`)}
	s := newTestServer(newFakeStore(), svc, staticBrowsers(nil), sources.Sources{})

	cases := []struct {
		target string
		want   int
	}{
		{target: "/api/search_jobs?query=tox&exact=true&start=0&end=10", want: http.StatusOK},
		{target: "/api/search_jobs?query=tox", want: http.StatusOK},
		{target: "/api/search_jobs", want: http.StatusBadRequest},
		{target: "/api/search_jobs?query=tox&start=10&end=5", want: http.StatusBadRequest},
		{target: "/api/search_jobs?query=tox&start=abc", want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := doRequest(s, http.MethodGet, tc.target, nil); rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d (%s)", tc.target, rec.Code, tc.want, rec.Body.String())
		}
	}
	if len(svc.searches) != 2 {
		t.Fatalf("expected 2 proxied searches, got %v", svc.searches)
	}
}

func TestDefinitions(t *testing.T) {
	s := newTestServer(newFakeStore(), nil, staticBrowsers(nil), sources.Sources{})

	rec := doRequest(s, http.MethodGet, "/api/definitions/tox", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"name":"tox"`)) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
