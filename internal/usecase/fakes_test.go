package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"taskvoice/internal/domain"
	"taskvoice/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.StreamingSession
	err      error
	calls    int
}

func (f *fakeProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeStreamingSession struct {
	mu         sync.Mutex
	events     chan domain.TranscriptEvent
	waitErr    error
	closeSend  int
	closeCalls int
	closed     bool
}

func newFakeStreamingSession(events ...domain.TranscriptEvent) *fakeStreamingSession {
	s := &fakeStreamingSession{events: make(chan domain.TranscriptEvent, 16)}
	for _, event := range events {
		s.events <- event
	}
	return s
}

func (f *fakeStreamingSession) SendAudio(_ []byte) error { return nil }

func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSend++
	f.closeEventsLocked()
	return nil
}

func (f *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error {
	time.Sleep(5 * time.Millisecond)
	return f.waitErr
}

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	f.closeEventsLocked()
	return nil
}

func (f *fakeStreamingSession) closeEventsLocked() {
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

func (f *fakeStreamingSession) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

type fakeRules struct {
	transform string
	err       error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.transform != "" {
		return f.transform, nil
	}
	return text, nil
}

// fakeBackend answers every job with answer. When release is set, Await
// blocks until it is closed.
type fakeBackend struct {
	mu        sync.Mutex
	answer    string
	submitErr error
	awaitErr  error
	release   chan struct{}
	submitted []string
	cancelled int
}

func (f *fakeBackend) Submit(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, text)
	return f.submitErr
}

func (f *fakeBackend) Await(ctx context.Context, _ string) (string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			f.mu.Lock()
			f.cancelled++
			f.mu.Unlock()
			return "", ctx.Err()
		}
	}
	if f.awaitErr != nil {
		return "", f.awaitErr
	}
	return f.answer, nil
}

func (f *fakeBackend) submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func (f *fakeBackend) cancellations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// fakeSynth echoes text as audio. When hold is set, every text other than
// pass stalls until hold is closed or ctx is done.
type fakeSynth struct {
	mu    sync.Mutex
	err   error
	texts []string
	hold  chan struct{}
	pass  string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	err := f.err
	f.mu.Unlock()

	if f.hold != nil && text != f.pass {
		select {
		case <-f.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("audio:" + text), nil
}

func (f *fakeSynth) synthesized() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakePlayer struct {
	mu     sync.Mutex
	err    error
	played []string
}

func (f *fakePlayer) Play(_ context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, string(audio))
	return f.err
}

func (f *fakePlayer) plays() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...)
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeSpeaker) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return nil
}

func (f *fakeSpeaker) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

// fakeGate unlocks when an attempt equals secret.
type fakeGate struct {
	mu       sync.Mutex
	locked   bool
	blocked  bool
	secret   string
	attempts []string
}

func (f *fakeGate) Locked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked
}

func (f *fakeGate) Blocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocked
}

func (f *fakeGate) Attempt(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, text)
	if text == f.secret {
		f.locked = false
		return true
	}
	return false
}

func (f *fakeGate) State() domain.LockState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.LockState{Enabled: true, Locked: f.locked}
}

func (f *fakeGate) attempted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.attempts...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	turns    []domain.Turn
	statuses map[string]domain.TurnStatus
}

func (f *fakeRecorder) Record(_ context.Context, turn domain.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeRecorder) UpdateStatus(_ context.Context, turnID string, status domain.TurnStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = make(map[string]domain.TurnStatus)
	}
	f.statuses[turnID] = status
	return nil
}

type fakeEventSink struct {
	mu sync.Mutex

	modes     []modeEvent
	partials  []string
	ready     []string
	appended  []domain.Turn
	updated   []domain.Turn
	locks     []domain.LockState
	apiErrors []bool
	errors    []errEvent
}

type modeEvent struct {
	mode   domain.Mode
	reason domain.ModeReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) ModeChanged(mode domain.Mode, reason domain.ModeReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, modeEvent{mode: mode, reason: reason})
}

func (f *fakeEventSink) PartialTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, text)
}

func (f *fakeEventSink) TranscriptReady(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = append(f.ready, text)
}

func (f *fakeEventSink) TurnAppended(turn domain.Turn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, turn)
}

func (f *fakeEventSink) TurnUpdated(turn domain.Turn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, turn)
}

func (f *fakeEventSink) LockChanged(state domain.LockState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append(f.locks, state)
}

func (f *fakeEventSink) APIErrorChanged(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiErrors = append(f.apiErrors, active)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotModes() []modeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]modeEvent(nil), f.modes...)
}

func (f *fakeEventSink) lastReason() domain.ModeReason {
	modes := f.snapshotModes()
	if len(modes) == 0 {
		return ""
	}
	return modes[len(modes)-1].reason
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotAppended() []domain.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Turn(nil), f.appended...)
}

func (f *fakeEventSink) snapshotAPIErrors() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.apiErrors...)
}

func (f *fakeEventSink) hasError(code domain.ErrorCode) bool {
	for _, e := range f.snapshotErrors() {
		if e.code == code {
			return true
		}
	}
	return false
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
