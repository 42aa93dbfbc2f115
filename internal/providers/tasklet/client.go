package tasklet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrMissingWebhook = errors.New("TASKLET_WEBHOOK_URL is not configured")

// StatusError is returned when the webhook answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tasklet request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("tasklet request failed with status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	WebhookURL string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client posts committed text to the task processor's webhook.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{url: strings.TrimSpace(cfg.WebhookURL), client: client}
}

type submitRequest struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

// Submit posts a job. jobID is sent as thread_id and is the key the
// processor writes its answer under.
func (c *Client) Submit(ctx context.Context, jobID string, text string) error {
	if c.url == "" {
		return ErrMissingWebhook
	}

	body, err := json.Marshal(submitRequest{ThreadID: jobID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
