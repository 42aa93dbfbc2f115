package elevenlabs

import (
	"bytes"
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

const (
	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultModel   = "eleven_turbo_v2"
)

var (
	ErrMissingAPIKey = errors.New("ELEVENLABS_API_KEY is not configured")
	ErrMissingVoice  = errors.New("ELEVENLABS_VOICE_ID is not configured")
	ErrEmptyAudio    = errors.New("elevenlabs returned no audio")
)

// Error is a non-2xx answer from the text-to-speech endpoint.
type Error struct {
	HTTPStatus int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("elevenlabs request failed with status %d: %s", e.HTTPStatus, e.Body)
}

// QuotaExceeded reports whether the account ran out of characters.
func (e *Error) QuotaExceeded() bool {
	return e.HTTPStatus == http.StatusUnauthorized && strings.Contains(e.Body, "quota_exceeded")
}

type Config struct {
	APIKey          string
	VoiceID         string
	BaseURL         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Client implements ports.Synthesizer against ElevenLabs.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModel
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.SimilarityBoost == 0 {
		cfg.SimilarityBoost = 0.75
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, client: client}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns MP3 audio for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(c.cfg.VoiceID) == "" {
		return nil, ErrMissingVoice
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:    text,
		ModelID: c.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       c.cfg.Stability,
			SimilarityBoost: c.cfg.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/text-to-speech/" + url.PathEscape(c.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &Error{HTTPStatus: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}
