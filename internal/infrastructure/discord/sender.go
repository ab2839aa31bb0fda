// Package discord posts channel messages through the Discord REST API
// using a bot token.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/auction-sentry/internal/config"
)

// Sender delivers notification texts to Discord channels.
type Sender struct {
	apiBase string
	token   string
	client  *http.Client
}

func NewSender(cfg *config.Config) *Sender {
	return &Sender{
		apiBase: cfg.DiscordAPIBase,
		token:   cfg.DiscordBotToken,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *Sender) IsConfigured() bool {
	return s.token != ""
}

type createMessage struct {
	Content string `json:"content"`
}

func (s *Sender) Send(ctx context.Context, channelID, text string) error {
	body, err := json.Marshal(createMessage{Content: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", s.apiBase, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("discord api error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
