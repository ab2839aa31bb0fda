// Package openai implements the summarization gate against the OpenAI
// chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/auction-sentry/internal/config"
	"github.com/auction-sentry/internal/domain"
)

const apiURL = "https://api.openai.com/v1/chat/completions"

const systemPrompt = `You judge posts from an auction channel. Reply with a JSON object:
{"valid": true|false, "summary": "..."}.
"valid" is true only if the post announces an auction for a single item.
"summary" is one sentence naming the item and any deadline. No other text.`

// Summarizer asks the model whether a post is a genuine auction announcement
// and, when it is, for a one-line summary.
type Summarizer struct {
	apiKey string
	model  string
	client *http.Client
}

func NewSummarizer(cfg *config.Config) *Summarizer {
	return &Summarizer{
		apiKey: cfg.OpenAIAPIKey,
		model:  cfg.OpenAIModel,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Summarizer) IsConfigured() bool {
	return s.apiKey != ""
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
	Temperature    float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (*domain.Judgment, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("openai api key not set")
	}

	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openai error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("no choices in openai response")
	}

	var judgment domain.Judgment
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &judgment); err != nil {
		return nil, fmt.Errorf("parse judgment: %w", err)
	}
	return &judgment, nil
}
