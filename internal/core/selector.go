package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/commitdeck/commitdeck/internal/github"
	"github.com/commitdeck/commitdeck/internal/llm"
)

// CommitSource is the slice of the hosting API the selector and pipeline
// consume. *github.Client satisfies it; tests inject fakes.
type CommitSource interface {
	ListCommits(ctx context.Context, repo github.Repo, since, until time.Time) ([]github.Commit, error)
	GetCommitDetail(ctx context.Context, repo github.Repo, sha string) (*github.Commit, error)
	GetFileContent(ctx context.Context, repo github.Repo, path, ref string) (string, error)
}

// Selection is the single artifact chosen from a window's commits.
type Selection struct {
	Content       string
	Type          llm.ContentType
	CommitMessage string
	Filename      string // set for markdown selections
	RawURL        string // set for markdown selections when the API reported one
	RawDiff       string // set for diff selections
}

func isMarkdownPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

// SelectContent picks the most useful artifact from a window's commits.
// Markdown wins: the first markdown file found walking commits newest-first
// is returned as-is, on the assumption that a written document (a learning
// log, notes) carries richer self-contained text than a raw diff. Only when
// no commit in the window touched markdown does it fall back to a diff
// summary of the first commit with any files. Commit details are fetched
// once per SHA and reused across both passes.
func SelectContent(ctx context.Context, src CommitSource, repo github.Repo, commits []github.Commit) (*Selection, error) {
	details := make(map[string]*github.Commit, len(commits))
	detailOf := func(sha string) (*github.Commit, error) {
		if d, ok := details[sha]; ok {
			return d, nil
		}
		d, err := src.GetCommitDetail(ctx, repo, sha)
		if err != nil {
			return nil, err
		}
		details[sha] = d
		return d, nil
	}

	for _, c := range commits {
		detail, err := detailOf(c.SHA)
		if err != nil {
			return nil, err
		}
		for _, f := range detail.Files {
			if f.Status == "removed" || !isMarkdownPath(f.Path) {
				continue
			}
			content, err := src.GetFileContent(ctx, repo, f.Path, detail.SHA)
			if err != nil {
				return nil, err
			}
			return &Selection{
				Content:       content,
				Type:          llm.ContentMarkdown,
				CommitMessage: detail.Message,
				Filename:      f.Path,
				RawURL:        f.RawURL,
			}, nil
		}
	}

	// No markdown anywhere in the window: summarize the first (most recent)
	// commit that changed any files at all.
	for _, c := range commits {
		detail, err := detailOf(c.SHA)
		if err != nil {
			return nil, err
		}
		if len(detail.Files) == 0 {
			continue
		}
		summary := buildDiffSummary(detail)
		return &Selection{
			Content:       summary,
			Type:          llm.ContentCodeDiff,
			CommitMessage: detail.Message,
			RawDiff:       summary,
		}, nil
	}

	return nil, ErrNoContent
}

// buildDiffSummary renders a commit's changes deterministically: a heading
// with the commit message, the short hash, then per-file sections with the
// change status and line counts, and the patch in a fenced diff block.
func buildDiffSummary(c *github.Commit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", c.Message)
	fmt.Fprintf(&sb, "Commit `%s`\n", c.ShortSHA())
	for _, f := range c.Files {
		fmt.Fprintf(&sb, "\n### %s\n%s, +%d/-%d\n", f.Path, f.Status, f.Additions, f.Deletions)
		if f.Patch != "" {
			fmt.Fprintf(&sb, "\n```diff\n%s\n```\n", f.Patch)
		}
	}
	return sb.String()
}
