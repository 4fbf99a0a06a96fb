package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ContentType tags what kind of source text is being turned into cards.
type ContentType string

const (
	ContentMarkdown ContentType = "markdown"
	ContentCodeDiff ContentType = "code-diff"
)

// Item is the uniform generation result consumed by the pipeline. Backends
// that only produce questions leave Answer empty; Normalize fills it in.
type Item struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Highlights []string `json:"highlights,omitempty"`
}

// Generator is the single contract both backends implement. Call sites never
// branch on which backend is behind it.
type Generator interface {
	// Generate produces question/answer items for the given content.
	Generate(ctx context.Context, content string, contentType ContentType) ([]Item, error)
	// RegenerateQuestion produces one replacement question for a card,
	// holding the answer fixed.
	RegenerateQuestion(ctx context.Context, rawDiff, existingQuestion, existingAnswer string) (Item, error)
}

// ErrTimeout marks an AI call that exceeded its client-side deadline. It is
// distinguishable from parse and transport failures so callers can say "the
// AI took too long" instead of a generic error.
var ErrTimeout = errors.New("llm: request timed out")

// ParseError marks a model response that was not valid JSON or was missing
// the expected fields.
type ParseError struct {
	Backend string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("llm: %s response not parseable: %v", e.Backend, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Normalize produces the shape the pipeline consumes: items with empty
// answers are paired with the window's source content, and highlights that
// are not verbatim substrings of the final answer are dropped so that the
// rendering layer's substring search always succeeds.
func Normalize(items []Item, content string) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		item.Question = strings.TrimSpace(item.Question)
		if item.Question == "" {
			continue
		}
		if strings.TrimSpace(item.Answer) == "" {
			item.Answer = content
		}
		var highlights []string
		for _, h := range item.Highlights {
			if h != "" && strings.Contains(item.Answer, h) {
				highlights = append(highlights, h)
			}
		}
		item.Highlights = highlights
		out = append(out, item)
	}
	return out
}

// stripFences removes a surrounding markdown code fence, which some models
// insist on wrapping JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
