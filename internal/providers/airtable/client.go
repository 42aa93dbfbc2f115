package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("airtable table URL or token is not configured")

// Error is a non-2xx answer from the Airtable REST API.
type Error struct {
	HTTPStatus int
	Type       string
	Message    string
}

func (e *Error) Error() string {
	if e.Type == "" && e.Message == "" {
		return fmt.Sprintf("airtable request failed with status %d", e.HTTPStatus)
	}
	return fmt.Sprintf("airtable: %s: %s (status=%d)", e.Type, e.Message, e.HTTPStatus)
}

type Config struct {
	// JobsURL is the REST URL of the table the task processor writes
	// answers to, e.g. https://api.airtable.com/v0/<base>/<table>.
	JobsURL string
	// UsageURL is the telemetry table. Empty means JobsURL.
	UsageURL   string
	Token      string
	Fields     Fields
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client reads job results and usage telemetry from Airtable.
type Client struct {
	jobsURL  string
	usageURL string
	token    string
	fields   Fields
	client   *http.Client
}

func NewClient(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	usageURL := strings.TrimSpace(cfg.UsageURL)
	if usageURL == "" {
		usageURL = strings.TrimSpace(cfg.JobsURL)
	}
	return &Client{
		jobsURL:  strings.TrimSpace(cfg.JobsURL),
		usageURL: usageURL,
		token:    strings.TrimSpace(cfg.Token),
		fields:   cfg.Fields.withDefaults(),
		client:   client,
	}
}

// Configured reports whether the client has enough settings to make calls.
func (c *Client) Configured() bool {
	return c.jobsURL != "" && c.token != ""
}

type listResponse struct {
	Records []record `json:"records"`
}

type record struct {
	ID          string                     `json:"id"`
	CreatedTime time.Time                  `json:"createdTime"`
	Fields      map[string]json.RawMessage `json:"fields"`
}

type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

func (c *Client) list(ctx context.Context, tableURL string, query url.Values) ([]record, error) {
	if tableURL == "" || c.token == "" {
		return nil, ErrNotConfigured
	}

	u, err := url.Parse(tableURL)
	if err != nil {
		return nil, fmt.Errorf("invalid airtable url: %w", err)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseError(body, resp.StatusCode)
	}

	var out listResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return out.Records, nil
}

// parseError accepts both error shapes Airtable uses: a bare string or an
// object with type and message.
func parseError(body []byte, status int) error {
	apiErr := &Error{HTTPStatus: status}

	var envelope errorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return apiErr
	}

	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		apiErr.Type = detail.Type
		apiErr.Message = detail.Message
		return apiErr
	}

	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil {
		apiErr.Type = code
	}
	return apiErr
}
