package core

import (
	"errors"
	"fmt"
)

// ErrNoContent means a lookback window had nothing usable: no commits, or
// only commits with no files and no markdown. The window contributes zero
// cards; it is not a failure of the pipeline.
var ErrNoContent = errors.New("no selectable content in window")

// ErrProRequired gates operations available only to the pro tier.
var ErrProRequired = errors.New("pro subscription required")

var errEmptyQuestion = errors.New("regenerated question is empty")

// RateLimitError signals that the identity's regeneration ceiling for today
// is exhausted. It carries the ceiling so the caller can render a specific
// "limit reached" message, never a generic failure.
type RateLimitError struct {
	Limit int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("daily regeneration limit of %d reached", e.Limit)
}

// ValidationError marks a request missing a required field. No side effects
// have been performed when it is returned.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
