package github

import (
	"fmt"
	"time"
)

// Repo identifies an already-resolved repository and branch pair.
type Repo struct {
	FullName string `json:"fullName"` // "owner/name"
	Branch   string `json:"branch,omitempty"`
}

// Commit represents a commit as returned by the hosting API. The file list
// is empty on listing responses and populated by GetCommitDetail.
type Commit struct {
	SHA        string
	Message    string
	AuthoredAt time.Time
	Files      []CommitFile
}

// CommitFile is one changed file within a commit.
type CommitFile struct {
	Path      string
	Status    string // "added", "modified", "removed", "renamed"
	Additions int
	Deletions int
	Patch     string // unified diff, may be empty for binary/huge files
	RawURL    string
}

// ShortSHA returns the abbreviated commit hash.
func (c Commit) ShortSHA() string {
	if len(c.SHA) < 7 {
		return c.SHA
	}
	return c.SHA[:7]
}

// APIError carries the upstream HTTP status of a failed hosting-API call.
type APIError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("github: unexpected status %d from %s", e.StatusCode, e.URL)
}
