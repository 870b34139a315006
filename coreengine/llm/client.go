// Package llm provides a Generate client for OpenAI-compatible chat
// completions endpoints.
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
	"os"
	"strings"
	"time"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/observability"
)

// DefaultTimeout bounds one request when the config leaves the timeout unset.
const DefaultTimeout = 60 * time.Second

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Client sends single-turn prompts to a chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  observability.Logger
}

// NewClient creates a client from cfg. The API key is read from the
// environment variable cfg.APIKeyEnv; an unset variable sends no
// Authorization header, which local servers accept.
func NewClient(cfg config.LLMConfig, logger observability.Logger) (*Client, error) {
	baseURL := normalizeBaseURL(cfg.Endpoint)
	if baseURL == "" {
		return nil, errors.New("llm endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: observability.OrNop(logger).Bind("component", "llm"),
	}, nil
}

// Generate sends prompt as a single user message to model and returns the
// first choice's content. Recognized options are "temperature" and
// "max_tokens"; others are ignored.
func (c *Client) Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error) {
	if model == "" {
		return "", errors.New("model is required")
	}
	req := chatRequest{
		Model:    model,
		Messages: []Message{{Role: "user", Content: prompt}},
	}
	if v, ok := floatOption(options, "temperature"); ok {
		req.Temperature = &v
	}
	if v, ok := floatOption(options, "max_tokens"); ok {
		req.MaxTokens = int(v)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("llm_request_rejected", "model", model, "status", resp.StatusCode)
		return "", fmt.Errorf("llm returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("llm response has no choices")
	}
	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("llm response is empty")
	}
	c.logger.Debug("llm_request_completed", "model", model, "finish_reason", decoded.Choices[0].FinishReason)
	return content, nil
}

// normalizeBaseURL trims trailing slashes and defaults the scheme to http.
func normalizeBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

func floatOption(options map[string]any, key string) (float64, bool) {
	switch v := options[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
