package ports

import (
	"context"
	"io"

	"taskvoice/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// JobBackend hands committed text to the remote task processor.
type JobBackend interface {
	// Submit posts the job; an error means the job was rejected.
	Submit(ctx context.Context, jobID string, text string) error
	// Await blocks until the job is done and returns its response text.
	Await(ctx context.Context, jobID string) (string, error)
}

// Synthesizer turns reply text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player starts playback of synthesized audio. It returns once playback has
// begun, not when it completes.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// LocalSpeaker is the on-device speech fallback.
type LocalSpeaker interface {
	Speak(ctx context.Context, text string) error
}

// LockGate guards all interaction behind a secret phrase.
type LockGate interface {
	Locked() bool
	Blocked() bool
	Attempt(text string) bool
	State() domain.LockState
}

// TurnRecorder persists committed turns into the current conversation.
type TurnRecorder interface {
	Record(ctx context.Context, turn domain.Turn) error
	UpdateStatus(ctx context.Context, turnID string, status domain.TurnStatus) error
}

// ThreadStore persists conversation threads and their turns.
type ThreadStore interface {
	CreateThread(ctx context.Context, thread domain.Thread) error
	GetThread(ctx context.Context, id string) (domain.Thread, error)
	ListThreads(ctx context.Context) ([]domain.Thread, error)
	UpdateThread(ctx context.Context, thread domain.Thread) error
	DeleteThread(ctx context.Context, id string) error
	AppendTurn(ctx context.Context, threadID string, turn domain.Turn) error
	SetTurnStatus(ctx context.Context, turnID string, status domain.TurnStatus) error
	ClearTurns(ctx context.Context, threadID string) error
}

// KVStore is a small key-value contract keyed by opaque string IDs.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	ModeChanged(mode domain.Mode, reason domain.ModeReason)
	PartialTranscript(text string)
	TranscriptReady(text string)
	TurnAppended(turn domain.Turn)
	TurnUpdated(turn domain.Turn)
	LockChanged(state domain.LockState)
	APIErrorChanged(active bool)
	SessionError(code domain.ErrorCode, detail string)
}

// UsageSink receives usage telemetry updates. Event sinks may implement it
// alongside EventSink.
type UsageSink interface {
	UsageChanged(snapshot domain.UsageSnapshot)
}
