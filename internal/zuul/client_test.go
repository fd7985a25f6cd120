package zuul

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	return NewClient(opts, zerolog.Nop())
}

func TestGetJobs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tenant/main/jobs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("full") != "true" {
			t.Errorf("expected full=true, got %q", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base": [{"parent": null}], "tox": [{"parent": "base"}, {"parent": "base"}]}`))
	}, Options{AuthToken: "secret"})

	jobs := c.GetJobs(context.Background(), "main")
	if len(jobs) != 2 || len(jobs["tox"]) != 2 {
		t.Fatalf("unexpected jobs: %v", jobs)
	}
}

func TestGetJobsFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"base": [`))
			},
		},
		{
			name: "null body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`null`))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler, Options{})
			if jobs := c.GetJobs(context.Background(), "main"); jobs != nil {
				t.Fatalf("expected nil, got %v", jobs)
			}
		})
	}
}

func TestGetJobsNoRetryByDefault(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, Options{})

	c.GetJobs(context.Background(), "main")
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single request, got %d", got)
	}
}

func TestGetJob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/tenant/main/job/tox-py%2F3" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		w.Write([]byte(`[{"name": "tox-py/3"}]`))
	}, Options{})

	body := c.GetJob(context.Background(), "main", "tox-py/3")
	if string(body) != `[{"name": "tox-py/3"}]` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSearchJobs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/api/search_jobs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if q.Get("query") != "tox & lint" || q.Get("exact") != "true" || q.Get("start") != "10" || q.Get("end") != "20" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"hits": []}`))
	}, Options{})

	if body := c.SearchJobs(context.Background(), "tox & lint", true, 10, 20); string(body) != `{"hits": []}` {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSearchJobsFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Options{})

	if body := c.SearchJobs(context.Background(), "tox", false, 0, 10); body != nil {
		t.Fatalf("expected nil, got %q", body)
	}
}
