package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const openAITimeout = 30 * time.Second

// cardSchema constrains the structured backend's output. The API enforces
// conformance, so once the message content decodes the shape is trusted.
const cardSchema = `{
  "type": "object",
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "question": { "type": "string" },
          "answer": { "type": "string" },
          "highlights": {
            "type": "array",
            "items": { "type": "string" }
          }
        },
        "required": ["question", "answer", "highlights"],
        "additionalProperties": false
      }
    }
  },
  "required": ["items"],
  "additionalProperties": false
}`

// OpenAIGenerator is the structured-output backend for any OpenAI-compatible
// chat-completions API.
type OpenAIGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIGenerator(baseURL, apiKey, model string) *OpenAIGenerator {
	return &OpenAIGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: openAITimeout},
	}
}

// WithHTTPClient swaps the underlying transport, for tests.
func (g *OpenAIGenerator) WithHTTPClient(hc *http.Client) *OpenAIGenerator {
	g.client = hc
	return g
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type itemsEnvelope struct {
	Items []Item `json:"items"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, content string, contentType ContentType) ([]Item, error) {
	items, err := g.completeStructured(ctx, structuredInstruction(contentType), content)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (g *OpenAIGenerator) RegenerateQuestion(ctx context.Context, rawDiff, existingQuestion, existingAnswer string) (Item, error) {
	prompt := fmt.Sprintf("Existing question: %s\n\nAnswer (keep unchanged): %s\n\nDiff:\n%s",
		existingQuestion, existingAnswer, rawDiff)
	items, err := g.completeStructured(ctx, regenerateInstruction, prompt)
	if err != nil {
		return Item{}, err
	}
	if len(items) == 0 {
		return Item{}, &ParseError{Backend: "openai", Err: errors.New("no items in regeneration response")}
	}
	item := items[0]
	item.Answer = existingAnswer
	return item, nil
}

func (g *OpenAIGenerator) completeStructured(ctx context.Context, instruction, content string) ([]Item, error) {
	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: content},
		},
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "flashcards",
				Strict: true,
				Schema: json.RawMessage(cardSchema),
			},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ParseError{Backend: "openai", Err: err}
	}
	if result.Error != nil {
		return nil, fmt.Errorf("openai API error: %s (%s)", result.Error.Message, result.Error.Type)
	}
	if len(result.Choices) == 0 {
		return nil, &ParseError{Backend: "openai", Err: errors.New("no choices in response")}
	}

	// The schema-constrained payload still arrives as raw text inside the
	// envelope, so the top-level decode stays defensive.
	var envelope itemsEnvelope
	if err := json.Unmarshal([]byte(stripFences(result.Choices[0].Message.Content)), &envelope); err != nil {
		return nil, &ParseError{Backend: "openai", Err: err}
	}
	return envelope.Items, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
