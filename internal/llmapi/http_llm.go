package llmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragcore/internal/config"
)

// HTTPLLM calls an OpenAI-compatible chat-completions endpoint. Used by
// the extraction (C5), resolution tie-breaking (C6), and LLM_SUMMARIZE
// merge strategy (C7).
type HTTPLLM struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewHTTPLLM builds an LLM client against an optional caller-supplied
// client (e.g. one instrumented via observability.NewHTTPClient); a nil
// client falls back to a plain client with the given timeout.
func NewHTTPLLM(cfg config.LLMConfig, timeout time.Duration, client *http.Client) *HTTPLLM {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	} else if client.Timeout == 0 {
		client.Timeout = timeout
	}
	return &HTTPLLM{cfg: cfg, client: client}
}

func (l *HTTPLLM) Name() string { return l.cfg.Model }

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (l *HTTPLLM) Complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	wire := make([]chatMessage, len(messages))
	for i, m := range messages {
		wire[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	body, err := json.Marshal(chatRequest{Model: l.cfg.Model, Messages: wire, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat request failed: %s: %s", resp.Status, string(b))
	}
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
