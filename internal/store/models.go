package store

import (
	"time"

	"github.com/commitdeck/commitdeck/internal/github"
)

const (
	TierFree = "free"
	TierPro  = "pro"
)

type User struct {
	ID           int64         `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"` // Do not expose this in JSON responses
	GitHubToken  string        `json:"-"`
	Tier         string        `json:"tier"` // read-only here; written by the billing webhook
	RegenCount   int           `json:"-"`
	RegenDate    string        `json:"-"` // "2006-01-02"; stale date means an effective count of zero
	Repositories []github.Repo `json:"repositories"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SourceFile points at one file that contributed to a card's answer.
type SourceFile struct {
	Filename string `json:"filename"`
	RawURL   string `json:"rawUrl,omitempty"`
}

type CardMetadata struct {
	CommitMessage      string       `json:"commitMessage,omitempty"`
	SourceFiles        []SourceFile `json:"sourceFiles,omitempty"`
	RawDiff            string       `json:"rawDiff,omitempty"`
	RepositoryFullName string       `json:"repositoryFullName,omitempty"`
}

type FlashCard struct {
	ID         string        `json:"id"` // UUID
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	Highlights []string      `json:"highlights,omitempty"`
	Metadata   *CardMetadata `json:"metadata,omitempty"`
}

// DaySet is the persisted collection of cards for one identity and one
// calendar date in the reference timezone. Created at most once per key.
type DaySet struct {
	Identity  string      `json:"identity"`
	Date      string      `json:"date"` // "2006-01-02"
	Cards     []FlashCard `json:"data"`
	CreatedAt time.Time   `json:"created_at"`
}
