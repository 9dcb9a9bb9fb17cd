// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is a minimal client for the Anthropic Messages API, shared by
// the Claude structurer and the Claude narrator.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/record-harmonizer/internal/collab"
	"github.com/pdiddy/record-harmonizer/internal/httputil"
	"github.com/pdiddy/record-harmonizer/pkg/types"
)

// DefaultEndpoint is the Messages API URL.
const DefaultEndpoint = "https://api.anthropic.com/v1/messages"

const apiVersion = "2023-06-01"

// throttleRetries bounds httputil's 429/529 retries inside one attempt.
const throttleRetries = 2

// ErrNoAPIKey is returned when a Claude-backed collaborator is configured
// without a key.
var ErrNoAPIKey = errors.New("anthropic API key not set (config api_key or .secrets/anthropic-api-key)")

// Client calls the Messages API.
type Client struct {
	APIKey    string
	Model     string
	MaxTokens int
	Endpoint  string
	HTTP      *http.Client
	Log       *zap.Logger
}

// New returns a Client for cfg.
func New(cfg types.AIConfig, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Endpoint:  DefaultEndpoint,
		HTTP:      &http.Client{},
		Log:       log,
	}, nil
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete sends one user message under the system instruction and returns
// the text of the reply. Client errors other than throttling are permanent.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, err := json.Marshal(request{
		Model:     c.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetryLog(ctx, client, req, throttleRetries, c.Log)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	if err := httputil.CheckStatus(resp); err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return "", collab.Permanent(fmt.Errorf("Claude API: %w", err))
		}
		return "", fmt.Errorf("Claude API: %w", err)
	}
	defer resp.Body.Close()

	var cResp response
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}
	if cResp.StopReason == "max_tokens" {
		return "", fmt.Errorf("Claude output truncated (stop_reason: max_tokens)")
	}

	var sb strings.Builder
	for _, block := range cResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text content in Claude API response")
	}
	return sb.String(), nil
}

// JSONBody strips a Markdown code fence around a JSON reply, if present.
func JSONBody(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
