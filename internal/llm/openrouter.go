package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenRouter is a Completer backed by the OpenRouter chat-completions API.
// Per-call deadlines are supplied by the caller's context; the client itself
// carries no timeout.
type OpenRouter struct {
	client  HTTPClient
	apiKey  string
	baseURL string

	// Optional attribution headers forwarded to the provider.
	SiteURL  string
	SiteName string
}

// NewOpenRouter creates a client with the default HTTP transport.
func NewOpenRouter(apiKey string) *OpenRouter {
	return NewOpenRouterWithClient(apiKey, http.DefaultClient)
}

// NewOpenRouterWithClient creates a client with a custom HTTP client
// (useful for testing).
func NewOpenRouterWithClient(apiKey string, client HTTPClient) *OpenRouter {
	return &OpenRouter{
		client:  client,
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
}

type completionRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a JSON-mode chat completion and returns the first choice's
// message content. An empty body or empty content is an error.
func (c *OpenRouter) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	payload, err := json.Marshal(completionRequest{
		Model:          model,
		Messages:       messages,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.SiteURL)
	}
	if c.SiteName != "" {
		req.Header.Set("X-Title", c.SiteName)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded completionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	content := decoded.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("empty completion content")
	}
	return content, nil
}
