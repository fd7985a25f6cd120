// Package sources loads the list of repositories and tenants to scrape.
package sources

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Sources names what a scheduled scrape covers.
type Sources struct {
	Repositories []string `json:"repositories"`
	Tenants      []string `json:"tenants"`
}

// Load reads a JSON5 sources file. A missing or blank file yields empty sources.
func Load(path string) (Sources, error) {
	src := Sources{Repositories: []string{}, Tenants: []string{}}
	if strings.TrimSpace(path) == "" {
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return src, nil
		}
		return src, fmt.Errorf("failed to read sources file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return src, nil
	}

	var raw Sources
	if err := json5.Unmarshal(data, &raw); err != nil {
		return src, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}

	for _, name := range raw.Repositories {
		name = strings.Trim(strings.TrimSpace(name), "/")
		if name == "" {
			continue
		}
		owner, repo, ok := strings.Cut(name, "/")
		if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
			return src, fmt.Errorf("invalid repository %q, expected org/name", name)
		}
		src.Repositories = appendUnique(src.Repositories, name)
	}
	for _, tenant := range raw.Tenants {
		if tenant = strings.TrimSpace(tenant); tenant != "" {
			src.Tenants = appendUnique(src.Tenants, tenant)
		}
	}
	return src, nil
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
