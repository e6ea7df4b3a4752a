// Package mail renders a digest into email bodies and delivers them through
// a transactional email provider.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ProviderError is a non-success answer from the email provider, as opposed
// to a transport failure.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("email provider status %d: %s", e.Status, e.Message)
}

// ResendClient talks to the Resend REST API (or any compatible endpoint).
type ResendClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewResendClient builds a provider client. baseURL defaults to the public
// Resend endpoint.
func NewResendClient(apiKey, baseURL string) *ResendClient {
	if baseURL == "" {
		baseURL = "https://api.resend.com"
	}
	return &ResendClient{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ResendClient) Send(ctx context.Context, msg Message) (string, error) {
	body, err := json.Marshal(map[string]any{
		"from":    msg.From,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
		"text":    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var detail struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(payload, &detail)
		msg := detail.Message
		if msg == "" {
			msg = detail.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(payload))
		}
		if msg == "" {
			msg = "unknown error"
		}
		return "", &ProviderError{Status: resp.StatusCode, Message: msg}
	}

	var out struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(payload, &out)
	return out.ID, nil
}
