package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesizeSendsVoiceRequest(t *testing.T) {
	t.Parallel()

	var got synthesizeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/voice-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3mp3"))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", VoiceID: "voice-1", BaseURL: server.URL})
	audio, err := client.Synthesize(context.Background(), "Hello.")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if string(audio) != "ID3mp3" {
		t.Fatalf("unexpected audio %q", audio)
	}
	want := synthesizeRequest{
		Text:          "Hello.",
		ModelID:       "eleven_turbo_v2",
		VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	}
	if got != want {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestSynthesizeReportsQuota(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":{"status":"quota_exceeded"}}`))
	}))
	defer server.Close()

	_, err := NewClient(Config{APIKey: "key", VoiceID: "v", BaseURL: server.URL}).Synthesize(context.Background(), "hi")
	var apiErr *Error
	if !errors.As(err, &apiErr) || !apiErr.QuotaExceeded() {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestSynthesizeRejectsEmptyAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer server.Close()

	_, err := NewClient(Config{APIKey: "key", VoiceID: "v", BaseURL: server.URL}).Synthesize(context.Background(), "hi")
	if !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestSynthesizeRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{VoiceID: "v"}).Synthesize(context.Background(), "hi"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := NewClient(Config{APIKey: "k"}).Synthesize(context.Background(), "hi"); !errors.Is(err, ErrMissingVoice) {
		t.Fatalf("expected ErrMissingVoice, got %v", err)
	}
}
