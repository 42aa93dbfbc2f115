package deepgram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"taskvoice/internal/domain"
	"taskvoice/internal/ports"
)

const defaultBaseURL = "https://api.deepgram.com/v1"

var ErrMissingAPIKey = errors.New("DEEPGRAM_API_KEY is not configured")

// Config controls the Deepgram live transcription endpoint.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	// Endpointing is the silence, in milliseconds, after which Deepgram
	// finalizes a segment. Zero leaves the server default.
	Endpointing int
	// KeepAlive is the interval between KeepAlive frames while no audio is
	// flowing. Zero disables them.
	KeepAlive time.Duration
	Logger    *slog.Logger
}

// Provider implements ports.TranscriptionProvider for Deepgram.
type Provider struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Provider{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	wsURL, err := listenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect to deepgram: %w", err)
	}
	p.cfg.Logger.Debug("deepgram stream opened", "model", p.cfg.Model, "language", p.cfg.Language)

	return newSession(ctx, conn, p.cfg.KeepAlive, p.cfg.Logger), nil
}

// listenURL converts the HTTP API base into the websocket /listen endpoint
// carrying the stream parameters.
func listenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	encoding := streamCfg.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	sampleRate := streamCfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := streamCfg.Channels
	if channels <= 0 {
		channels = 1
	}

	query := u.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", encoding)
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("channels", strconv.Itoa(channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	query.Set("punctuate", "true")
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	if providerCfg.Endpointing > 0 {
		query.Set("endpointing", strconv.Itoa(providerCfg.Endpointing))
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// message is the subset of Deepgram's live response envelope the session
// reads. Results, Metadata, SpeechStarted and UtteranceEnd share it.
type message struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

func (m message) transcript() string {
	if len(m.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(m.Channel.Alternatives[0].Transcript)
}

func (m message) errText() string {
	for _, text := range []string{m.Description, m.Message} {
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return "deepgram returned an unknown error"
}

// event maps a Results message to a transcript event. ok is false for
// anything that carries no text.
func (m message) event() (domain.TranscriptEvent, bool) {
	if m.Type != "" && !strings.EqualFold(m.Type, "Results") {
		return domain.TranscriptEvent{}, false
	}
	text := m.transcript()
	if text == "" {
		return domain.TranscriptEvent{}, false
	}
	kind := domain.TranscriptKindPartial
	if m.IsFinal || m.SpeechFinal {
		kind = domain.TranscriptKindFinal
	}
	return domain.TranscriptEvent{Kind: kind, Text: text, IsSpeechFinal: m.SpeechFinal}, true
}
