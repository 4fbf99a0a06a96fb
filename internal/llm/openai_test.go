package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func openAIServer(t *testing.T, messageContent string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
			t.Error("expected a json_schema response_format constraint")
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": messageContent}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIGenerate(t *testing.T) {
	server := openAIServer(t, `{"items": [
        {"question": "What changed?", "answer": "The parser was rewritten.", "highlights": ["rewritten"]},
        {"question": "Why?", "answer": "To handle nested lists.", "highlights": []}
    ]}`)
	defer server.Close()

	gen := NewOpenAIGenerator(server.URL, "key", "test-model")
	items, err := gen.Generate(context.Background(), "diff text", ContentCodeDiff)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Question != "What changed?" || items[0].Answer != "The parser was rewritten." {
		t.Errorf("unexpected first item %+v", items[0])
	}
	if len(items[0].Highlights) != 1 || items[0].Highlights[0] != "rewritten" {
		t.Errorf("unexpected highlights %v", items[0].Highlights)
	}
}

func TestOpenAIGenerateMalformedContent(t *testing.T) {
	server := openAIServer(t, "sure! here are your flashcards:")
	defer server.Close()

	gen := NewOpenAIGenerator(server.URL, "key", "test-model")
	_, err := gen.Generate(context.Background(), "diff text", ContentCodeDiff)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("parse error must not be classified as a timeout")
	}
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	gen := NewOpenAIGenerator(server.URL, "key", "test-model")
	_, err := gen.Generate(context.Background(), "text", ContentMarkdown)

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestOpenAIGenerateTimeout(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	gen := NewOpenAIGenerator(server.URL, "key", "test-model").
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond})

	_, err := gen.Generate(context.Background(), "text", ContentMarkdown)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestOpenAIRegenerateQuestion(t *testing.T) {
	server := openAIServer(t, `{"items": [
        {"question": "A different question?", "answer": "ignored", "highlights": ["kept"]}
    ]}`)
	defer server.Close()

	gen := NewOpenAIGenerator(server.URL, "key", "test-model")
	item, err := gen.RegenerateQuestion(context.Background(), "diff", "old question", "the fixed answer with kept phrase")
	if err != nil {
		t.Fatalf("RegenerateQuestion: %v", err)
	}

	if item.Question != "A different question?" {
		t.Errorf("unexpected question %q", item.Question)
	}
	// The answer is held fixed regardless of what the model returns.
	if item.Answer != "the fixed answer with kept phrase" {
		t.Errorf("answer was not held fixed: %q", item.Answer)
	}
}

func TestOpenAIRegenerateQuestionEmptyItems(t *testing.T) {
	server := openAIServer(t, `{"items": []}`)
	defer server.Close()

	gen := NewOpenAIGenerator(server.URL, "key", "test-model")
	_, err := gen.RegenerateQuestion(context.Background(), "diff", "old", "answer")

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}
