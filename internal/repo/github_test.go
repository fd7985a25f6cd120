package repo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v55/github"
	"github.com/rs/zerolog"
)

func newGitHubTestRepository(t *testing.T, handler http.Handler) *GitHubRepository {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	if err != nil {
		t.Fatalf("url.Parse() error = %v", err)
	}
	client.BaseURL = base

	browser, err := NewGitHubRepository(client, "org/project", "", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGitHubRepository() error = %v", err)
	}
	return browser
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewGitHubRepositoryRejectsInvalidName(t *testing.T) {
	if _, err := NewGitHubRepository(github.NewClient(nil), "project", "", zerolog.Nop()); err == nil {
		t.Fatalf("expected error for name without owner")
	}
}

func TestGitHubRepositoryListDirectory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/project/contents/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/org/project/contents/":
			writeJSON(w, []map[string]string{
				{"name": "zuul.d", "path": "zuul.d", "type": "dir"},
				{"name": "zuul.yaml", "path": "zuul.yaml", "type": "file"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]string{"message": "Not Found"})
		}
	})
	browser := newGitHubTestRepository(t, mux)

	entries, err := browser.ListDirectory(context.Background(), Root)
	if err != nil {
		t.Fatalf("ListDirectory() error = %v", err)
	}
	if entries["zuul.d"].Kind != KindDir || entries["zuul.yaml"].Kind != KindFile {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	_, err = browser.ListDirectory(context.Background(), "roles")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing directory, got %v", err)
	}
}

func TestGitHubRepositoryCheckOutFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/project/contents/zuul.yaml", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"name":     "zuul.yaml",
			"path":     "zuul.yaml",
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte("- job:\n    name: gate\n")),
		})
	})
	browser := newGitHubTestRepository(t, mux)

	content, err := browser.CheckOutFile(context.Background(), "zuul.yaml")
	if err != nil {
		t.Fatalf("CheckOutFile() error = %v", err)
	}
	if content != "- job:\n    name: gate\n" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestGitHubRepositoryLastChanged(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/project/commits", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("path") != "zuul.yaml" || r.URL.Query().Get("per_page") != "1" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		writeJSON(w, []map[string]interface{}{
			{"sha": "abc", "commit": map[string]interface{}{
				"committer": map[string]string{"name": "Jane", "date": "2024-04-02T12:30:00Z"},
			}},
		})
	})
	browser := newGitHubTestRepository(t, mux)

	got, err := browser.LastChanged(context.Background(), "zuul.yaml")
	if err != nil {
		t.Fatalf("LastChanged() error = %v", err)
	}
	want := time.Date(2024, 4, 2, 12, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("LastChanged() = %v, want %v", got, want)
	}
}

func TestGitHubRepositoryBlame(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"path":"zuul.yaml"`) {
			t.Errorf("unexpected graphql body: %s", body)
		}
		io.WriteString(w, `{"data":{"repository":{"object":{"blame":{"ranges":[
			{"startingLine":1,"endingLine":3,"commit":{"oid":"abc","committedDate":"2024-04-02T12:30:00Z","author":{"name":"Jane"}}},
			{"startingLine":4,"endingLine":4,"commit":{"oid":"def","committedDate":"2024-05-01T08:00:00Z","author":{"name":"John"}}}
		]}}}}}`)
	})
	browser := newGitHubTestRepository(t, mux)

	ranges, err := browser.Blame(context.Background(), "zuul.yaml")
	if err != nil {
		t.Fatalf("Blame() error = %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(ranges))
	}
	if ranges[0].Commit != "abc" || ranges[0].EndLine != 3 || ranges[1].Author != "John" {
		t.Fatalf("unexpected ranges: %+v", ranges)
	}
}

func TestGitHubRepositoryBlameGraphQLError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":null,"errors":[{"message":"Could not resolve to a Repository"}]}`)
	})
	browser := newGitHubTestRepository(t, mux)

	_, err := browser.Blame(context.Background(), "zuul.yaml")
	var checkoutErr *CheckoutError
	if !errors.As(err, &checkoutErr) || checkoutErr.Op != "blame" {
		t.Fatalf("expected blame CheckoutError, got %v", err)
	}
}
