package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// GeminiGenerator is the vendor chat backend. Its contract is the earlier,
// simpler one: the model replies with a JSON array of question strings and
// no answers, so every item it returns has an empty Answer for Normalize to
// pair with the window's source content.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiGenerator{client: client, model: defaultGeminiModel}, nil
}

func (g *GeminiGenerator) Close() {
	if g.client != nil {
		if err := g.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (g *GeminiGenerator) Generate(ctx context.Context, content string, contentType ContentType) ([]Item, error) {
	text, err := g.complete(ctx, questionsInstruction(contentType), content)
	if err != nil {
		return nil, err
	}

	questions, err := parseQuestionList(text)
	if err != nil {
		return nil, &ParseError{Backend: "gemini", Err: err}
	}

	items := make([]Item, 0, len(questions))
	for _, q := range questions {
		items = append(items, Item{Question: q})
	}
	return items, nil
}

func (g *GeminiGenerator) RegenerateQuestion(ctx context.Context, rawDiff, existingQuestion, existingAnswer string) (Item, error) {
	prompt := fmt.Sprintf("Existing question: %s\n\nDiff:\n%s\n\nRespond with a JSON array containing exactly one new question string.", existingQuestion, rawDiff)
	text, err := g.complete(ctx, diffQuestionsInstruction, prompt)
	if err != nil {
		return Item{}, err
	}

	questions, err := parseQuestionList(text)
	if err != nil || len(questions) == 0 {
		return Item{}, &ParseError{Backend: "gemini", Err: fmt.Errorf("expected one question: %v", err)}
	}
	return Item{Question: questions[0], Answer: existingAnswer}, nil
}

func (g *GeminiGenerator) complete(ctx context.Context, instruction, content string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(content))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("gemini generate request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &ParseError{Backend: "gemini", Err: errors.New("empty response")}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}
	if sb.Len() == 0 {
		return "", &ParseError{Backend: "gemini", Err: errors.New("no text parts in response")}
	}
	return sb.String(), nil
}

// parseQuestionList decodes the legacy questions-only reply shape.
func parseQuestionList(text string) ([]string, error) {
	var questions []string
	if err := json.Unmarshal([]byte(stripFences(text)), &questions); err != nil {
		return nil, fmt.Errorf("decoding question array: %w", err)
	}
	var out []string
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("question array is empty")
	}
	return out, nil
}
