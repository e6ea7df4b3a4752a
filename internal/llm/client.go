// Package llm talks to an OpenAI-compatible completions endpoint and makes
// sense of what comes back: streamed or buffered responses, and the loosely
// structured JSON the model embeds in its answers.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/dailydigest/internal/relay"
)

// Doer forwards an outbound request; satisfied by *relay.Relay.
type Doer interface {
	Do(ctx context.Context, req relay.Request) (*http.Response, error)
}

// Credentials identify one upstream account for the duration of a run. They
// are read-only once a pipeline starts.
type Credentials struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl"`
	Model   string `json:"model"`
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest mirrors the chat-completions wire format. Tools are kept
// loosely typed because search-tool attachment differs across providers.
type CompletionRequest struct {
	Model          string           `json:"model"`
	Messages       []Message        `json:"messages"`
	Stream         bool             `json:"stream"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"`
	Tools          []map[string]any `json:"tools,omitempty"`
	ResponseFormat map[string]any   `json:"response_format,omitempty"`
}

// Client issues completion requests through the relay.
type Client struct {
	doer Doer
}

// NewClient builds a completions client on top of the given forwarder.
func NewClient(doer Doer) *Client {
	return &Client{doer: doer}
}

// Complete sends one completion request and returns the assistant's text,
// decoding either response mode. The model defaults to the credential's model
// when the request leaves it empty.
func (c *Client) Complete(ctx context.Context, creds Credentials, req CompletionRequest) (string, error) {
	if req.Model == "" {
		req.Model = creds.Model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}
	headers := map[string]string{
		"Authorization": "Bearer " + creds.APIKey,
		"Content-Type":  "application/json",
	}
	if req.Stream {
		headers["Accept"] = "text/event-stream"
	}
	resp, err := c.doer.Do(ctx, relay.Request{
		TargetURL: strings.TrimSuffix(creds.BaseURL, "/") + "/chat/completions",
		Method:    http.MethodPost,
		Headers:   headers,
		Body:      body,
	})
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	return DecodeCompletion(resp)
}
