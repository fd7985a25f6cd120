package index_model

import (
	"time"
)

// BlameRange attributes a contiguous block of lines to the commit that last touched it.
type BlameRange struct {
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Commit    string    `json:"commit"`
	Author    string    `json:"author"`
	Date      time.Time `json:"date"`
}

// JobFileRecord is one job-definition file found in a repository.
type JobFileRecord struct {
	Path        string       `json:"path"`
	LastChanged time.Time    `json:"last_changed"`
	Blame       []BlameRange `json:"blame"`
	Content     string       `json:"content"`
}

// FileRef is a checked out file inside a role directory.
type FileRef struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// RoleRecord is one role directory found in a repository.
type RoleRecord struct {
	Name          string    `json:"name"`
	LastChanged   time.Time `json:"last_changed"`
	ReadmeFile    *FileRef  `json:"readme_file,omitempty"`
	ChangelogFile *FileRef  `json:"changelog_file,omitempty"`
}

// JobFiles maps repository-relative paths to job files.
type JobFiles map[string]JobFileRecord

// RoleFiles maps role names to role records.
type RoleFiles map[string]RoleRecord

// CanonicalJobRecord is a job definition normalized for indexing.
type CanonicalJobRecord struct {
	ID              string    `json:"id"`
	JobName         string    `json:"job_name"`
	Repo            *string   `json:"repo"`
	Tenants         []string  `json:"tenants"`
	Private         bool      `json:"private"`
	ScrapeTime      time.Time `json:"scrape_time"`
	Description     string    `json:"description"`
	DescriptionHTML *string   `json:"description_html,omitempty"`
	Platforms       []string  `json:"platforms"`
	Parent          string    `json:"parent"`
}

// RepoName returns the defining project or an empty string.
func (j CanonicalJobRecord) RepoName() string {
	if j.Repo == nil {
		return ""
	}
	return *j.Repo
}
