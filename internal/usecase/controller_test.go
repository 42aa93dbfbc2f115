package usecase

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"taskvoice/internal/domain"
	"taskvoice/internal/phrases"
	"taskvoice/internal/ports"
)

type controllerHarness struct {
	controller *SessionController
	audio      *fakeAudioSession
	backend    *fakeBackend
	synth      *fakeSynth
	player     *fakePlayer
	speaker    *fakeSpeaker
	gate       *fakeGate
	recorder   *fakeRecorder
	events     *fakeEventSink
}

type harnessOptions struct {
	heard    []domain.TranscriptEvent
	rules    *fakeRules
	backend  *fakeBackend
	synth    *fakeSynth
	gate     *fakeGate
	audioErr error
	cfg      Config
}

func newControllerHarness(t *testing.T, opts harnessOptions) *controllerHarness {
	t.Helper()

	h := &controllerHarness{
		audio:    &fakeAudioSession{chunks: [][]byte{[]byte("pcm")}},
		backend:  opts.backend,
		synth:    opts.synth,
		player:   &fakePlayer{},
		speaker:  &fakeSpeaker{},
		gate:     opts.gate,
		recorder: &fakeRecorder{},
		events:   &fakeEventSink{},
	}
	if h.backend == nil {
		h.backend = &fakeBackend{answer: "Hi there."}
	}
	if h.synth == nil {
		h.synth = &fakeSynth{}
	}
	if h.gate == nil {
		h.gate = &fakeGate{}
	}
	rules := opts.rules
	if rules == nil {
		rules = &fakeRules{}
	}

	cfg := opts.cfg
	if cfg.CommitDelay == 0 {
		cfg.CommitDelay = 30 * time.Millisecond
	}
	if cfg.PrefetchDelay == 0 {
		cfg.PrefetchDelay = 5 * time.Millisecond
	}
	if cfg.ErrorIndicator == 0 {
		cfg.ErrorIndicator = 20 * time.Millisecond
	}

	h.controller = NewSessionController(Dependencies{
		Audio:       &fakeAudioCapture{sessions: []ports.AudioSession{h.audio}, err: opts.audioErr},
		Provider:    &fakeProvider{sessions: []ports.StreamingSession{newFakeStreamingSession(opts.heard...)}},
		Rules:       rules,
		Backend:     h.backend,
		Synthesizer: h.synth,
		Player:      h.player,
		Speaker:     h.speaker,
		Gate:        h.gate,
		Recorder:    h.recorder,
		Events:      h.events,
	}, cfg)
	t.Cleanup(h.controller.Close)
	return h
}

func heard(text string) []domain.TranscriptEvent {
	return []domain.TranscriptEvent{{Kind: domain.TranscriptKindFinal, Text: text}}
}

func (h *controllerHarness) speak(t *testing.T) {
	t.Helper()
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.End(context.Background()); err != nil {
		t.Fatalf("end failed: %v", err)
	}
}

func (h *controllerHarness) waitForReason(t *testing.T, reason domain.ModeReason) {
	t.Helper()
	waitUntil(t, string(reason), func() bool { return h.events.lastReason() == reason })
}

func TestSessionControllerTurnDeliversReply(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{heard: heard("hello world")})
	h.speak(t)
	h.waitForReason(t, domain.ReasonReplyDelivered)

	if got := h.backend.submissions(); len(got) != 1 || got[0] != "Hello world." {
		t.Fatalf("unexpected submissions %v", got)
	}
	if !slices.Contains(h.player.plays(), "audio:Hi there.") {
		t.Fatalf("reply audio was not played: %v", h.player.plays())
	}

	turns := h.controller.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected user and assistant turns, got %+v", turns)
	}
	if turns[0].Role != domain.RoleUser || turns[0].Status != domain.TurnStatusConfirmed {
		t.Fatalf("unexpected user turn %+v", turns[0])
	}
	if turns[1].Role != domain.RoleAssistant || turns[1].Text != "Hi there." {
		t.Fatalf("unexpected assistant turn %+v", turns[1])
	}

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	if len(h.recorder.turns) != 2 || h.recorder.statuses[turns[0].ID] != domain.TurnStatusConfirmed {
		t.Fatalf("turns were not recorded: %+v %+v", h.recorder.turns, h.recorder.statuses)
	}

	modes := h.events.snapshotModes()
	want := []domain.Mode{domain.ModeListening, domain.ModePending, domain.ModeThinking, domain.ModeIdle}
	if len(modes) != len(want) {
		t.Fatalf("unexpected transitions %+v", modes)
	}
	for i, mode := range want {
		if modes[i].mode != mode {
			t.Fatalf("transition %d: got %s want %s", i, modes[i].mode, mode)
		}
	}
}

func TestSessionControllerPrefetchesBeforeCommit(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "Sure.", release: make(chan struct{})}
	h := newControllerHarness(t, harnessOptions{
		heard:   heard("book a table"),
		backend: backend,
		cfg:     Config{CommitDelay: 300 * time.Millisecond, PrefetchDelay: 5 * time.Millisecond},
	})
	h.speak(t)

	waitUntil(t, "prefetch", func() bool { return len(backend.submissions()) == 1 })
	if mode := h.controller.Status().Mode; mode != domain.ModePending {
		t.Fatalf("prefetch should not commit, mode=%s", mode)
	}

	close(backend.release)
	h.waitForReason(t, domain.ReasonReplyDelivered)
	if got := backend.submissions(); len(got) != 1 {
		t.Fatalf("commit should reuse the prefetched reply, got %v", got)
	}
}

func TestSessionControllerEditCancelsPrefetchAndResubmits(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "Noted.", release: make(chan struct{})}
	h := newControllerHarness(t, harnessOptions{
		heard:   heard("remind me at five"),
		backend: backend,
		cfg:     Config{CommitDelay: time.Second, PrefetchDelay: 5 * time.Millisecond},
	})
	h.speak(t)
	waitUntil(t, "prefetch", func() bool { return len(backend.submissions()) == 1 })

	text, err := h.controller.EnterEdit()
	if err != nil {
		t.Fatalf("enter edit failed: %v", err)
	}
	if text != "Remind me at five." {
		t.Fatalf("unexpected edit text %q", text)
	}
	waitUntil(t, "prefetch cancellation", func() bool { return backend.cancellations() == 1 })
	if status := h.controller.Status(); status.Mode != domain.ModeEditing || status.EditText != text {
		t.Fatalf("unexpected status %+v", status)
	}

	close(backend.release)
	if err := h.controller.SubmitEdit("remind me at six"); err != nil {
		t.Fatalf("submit edit failed: %v", err)
	}
	h.waitForReason(t, domain.ReasonReplyDelivered)

	got := backend.submissions()
	if len(got) != 2 || got[1] != "remind me at six." {
		t.Fatalf("unexpected submissions %v", got)
	}
}

func TestSessionControllerCancelDropsPendingTranscript(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{
		heard: heard("never mind"),
		cfg:   Config{CommitDelay: 50 * time.Millisecond, PrefetchDelay: 40 * time.Millisecond},
	})
	h.speak(t)

	if err := h.controller.Cancel(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if h.events.lastReason() != domain.ReasonMessageCancelled {
		t.Fatalf("unexpected reason %s", h.events.lastReason())
	}

	time.Sleep(100 * time.Millisecond)
	if got := h.backend.submissions(); len(got) != 0 {
		t.Fatalf("cancelled transcript was submitted: %v", got)
	}
	if len(h.controller.Turns()) != 0 {
		t.Fatalf("cancelled transcript was added to the conversation")
	}
	if err := h.controller.Cancel(); !errors.Is(err, ErrNothingToCancel) {
		t.Fatalf("expected ErrNothingToCancel, got %v", err)
	}
}

func TestSessionControllerEmptyTranscriptReturnsToIdle(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{})
	h.speak(t)

	if h.events.lastReason() != domain.ReasonNoTranscript {
		t.Fatalf("unexpected reason %s", h.events.lastReason())
	}
	if status := h.controller.Status(); status.Mode != domain.ModeIdle || status.Active {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestSessionControllerIncludesInterimInCommit(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{heard: []domain.TranscriptEvent{
		{Kind: domain.TranscriptKindFinal, Text: "where is"},
		{Kind: domain.TranscriptKindPartial, Text: "my phone"},
	}})
	h.speak(t)
	h.waitForReason(t, domain.ReasonReplyDelivered)

	if got := h.backend.submissions(); len(got) != 1 || got[0] != "Where is my phone?" {
		t.Fatalf("unexpected submissions %v", got)
	}
}

func TestSessionControllerLockedGateTreatsSpeechAsAttempt(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{locked: true, secret: "Open sesame."}
	h := newControllerHarness(t, harnessOptions{heard: heard("let me in"), gate: gate})
	h.speak(t)
	h.waitForReason(t, domain.ReasonUnlockAttempted)

	if got := gate.attempted(); len(got) != 1 || got[0] != "Let me in." {
		t.Fatalf("unexpected attempts %v", got)
	}
	if got := h.backend.submissions(); len(got) != 0 {
		t.Fatalf("locked speech reached the backend: %v", got)
	}
	if len(h.controller.Turns()) != 0 {
		t.Fatalf("attempt should not become a turn")
	}
}

func TestSessionControllerUnlockAnnouncesAccess(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{locked: true, secret: "Open sesame."}
	h := newControllerHarness(t, harnessOptions{heard: heard("open sesame"), gate: gate})
	h.speak(t)
	h.waitForReason(t, domain.ReasonUnlocked)

	waitUntil(t, "access announcement", func() bool {
		return slices.Contains(h.player.plays(), "audio:"+phrases.AccessGranted)
	})
	if gate.Locked() {
		t.Fatalf("gate should be unlocked")
	}
}

func TestSessionControllerBlockedGateRejectsInput(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{gate: &fakeGate{locked: true, blocked: true}})
	if err := h.controller.Start(context.Background()); !errors.Is(err, ErrInputBlocked) {
		t.Fatalf("expected ErrInputBlocked, got %v", err)
	}
}

func TestSessionControllerBackendFailureApologises(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{
		heard:   heard("status report"),
		backend: &fakeBackend{submitErr: errors.New("webhook down")},
	})
	h.speak(t)
	h.waitForReason(t, domain.ReasonReplyUnavailable)

	if !slices.Contains(h.speaker.said(), phrases.Apology) {
		t.Fatalf("expected local apology, got %v", h.speaker.said())
	}
	if !h.events.hasError(domain.ErrorCodeBackend) {
		t.Fatalf("expected backend error event")
	}
	turns := h.controller.Turns()
	if len(turns) != 1 || turns[0].Status != domain.TurnStatusPending {
		t.Fatalf("rejected turn should stay pending: %+v", turns)
	}

	waitUntil(t, "api error indicator to clear", func() bool {
		return slices.Equal(h.events.snapshotAPIErrors(), []bool{true, false})
	})
	if h.controller.Status().APIError {
		t.Fatalf("api error flag should be cleared")
	}
}

func TestSessionControllerSynthesisFailureSpeaksLocally(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{
		heard: heard("status report"),
		synth: &fakeSynth{err: errors.New("quota exceeded")},
	})
	h.speak(t)
	h.waitForReason(t, domain.ReasonReplyDelivered)

	if !slices.Contains(h.speaker.said(), "Hi there.") {
		t.Fatalf("expected local reply, got %v", h.speaker.said())
	}
	if !h.events.hasError(domain.ErrorCodeSynthesis) {
		t.Fatalf("expected synthesis error event")
	}
}

func TestSessionControllerSpeaksThinkingPhraseWhileWaiting(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "Done.", release: make(chan struct{})}
	h := newControllerHarness(t, harnessOptions{heard: heard("summarize my inbox"), backend: backend})
	h.speak(t)

	waitUntil(t, "thinking phrase", func() bool { return len(h.synth.synthesized()) > 0 })
	if first := h.synth.synthesized()[0]; first == "Done." {
		t.Fatalf("expected a filler phrase before the reply")
	}

	close(backend.release)
	h.waitForReason(t, domain.ReasonReplyDelivered)
}

func TestSessionControllerRulesFailureUsesRawText(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{
		heard: heard("hello world"),
		rules: &fakeRules{err: errors.New("bad rules")},
	})
	h.speak(t)
	h.waitForReason(t, domain.ReasonReplyDelivered)

	if !h.events.hasError(domain.ErrorCodeRules) {
		t.Fatalf("expected rules error event")
	}
	if got := h.backend.submissions(); len(got) != 1 || got[0] != "Hello world." {
		t.Fatalf("unexpected submissions %v", got)
	}
}

func TestSessionControllerRejectsSecondStart(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := h.controller.Start(context.Background()); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
}

func TestSessionControllerAbortLifecycle(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{heard: heard("discard me")})
	if err := h.controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if status := h.controller.Status(); status.Mode != domain.ModeListening || !status.Active {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := h.controller.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}

	if h.events.lastReason() != domain.ReasonCaptureDiscarded {
		t.Fatalf("expected discarded reason, got %s", h.events.lastReason())
	}
	if h.audio.stops() == 0 {
		t.Fatalf("expected audio to be stopped")
	}
	if err := h.controller.End(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestSessionControllerCaptureFailure(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{audioErr: errors.New("no microphone")})
	if err := h.controller.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if h.events.lastReason() != domain.ReasonCaptureFailed {
		t.Fatalf("unexpected reason %s", h.events.lastReason())
	}
	if !h.events.hasError(domain.ErrorCodeCapture) {
		t.Fatalf("expected capture error event")
	}
	if h.controller.Status().Mode != domain.ModeIdle {
		t.Fatalf("controller should be idle")
	}
}

func TestSessionControllerEmptyEditReturnsToIdle(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{
		heard: heard("draft"),
		cfg:   Config{CommitDelay: time.Second, PrefetchDelay: time.Second},
	})
	h.speak(t)
	if _, err := h.controller.EnterEdit(); err != nil {
		t.Fatalf("enter edit failed: %v", err)
	}
	if err := h.controller.SubmitEdit("   "); err != nil {
		t.Fatalf("submit edit failed: %v", err)
	}
	if h.controller.Status().Mode != domain.ModeIdle {
		t.Fatalf("controller should be idle")
	}
	if err := h.controller.SubmitEdit("again"); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("expected ErrNotEditing, got %v", err)
	}
}

func TestSessionControllerLoadTurnsReplacesConversation(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{})
	h.controller.LoadTurns([]domain.Turn{{ID: "a", Text: "Earlier.", Role: domain.RoleUser}})
	if got := h.controller.Turns(); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("unexpected turns %+v", got)
	}
	h.controller.ClearTurns()
	if len(h.controller.Turns()) != 0 {
		t.Fatalf("turns should be cleared")
	}
}

func (h *controllerHarness) ending() bool {
	h.controller.mu.Lock()
	defer h.controller.mu.Unlock()
	return h.controller.ending != nil
}

func TestSessionControllerAbortRefusedWhileEnding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newControllerHarness(t, harnessOptions{
		heard: heard("delete everything"),
		cfg: Config{
			StreamingGrace: 200 * time.Millisecond,
			CommitDelay:    time.Second,
			PrefetchDelay:  time.Second,
		},
	})
	if err := h.controller.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ended := make(chan error, 1)
	go func() { ended <- h.controller.End(ctx) }()
	waitUntil(t, "session to start ending", h.ending)

	if err := h.controller.Abort(); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("abort while ending: expected ErrSessionBusy, got %v", err)
	}
	if err := h.controller.Start(ctx); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("start while ending: expected ErrSessionBusy, got %v", err)
	}
	if mode := h.controller.Status().Mode; mode != domain.ModeListening {
		t.Fatalf("expected listening while ending, got %s", mode)
	}

	if err := <-ended; err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if mode := h.controller.Status().Mode; mode != domain.ModePending {
		t.Fatalf("expected pending after end, got %s", mode)
	}
	for _, m := range h.events.snapshotModes() {
		if m.reason == domain.ReasonCaptureDiscarded {
			t.Fatalf("ending session must not report a discard: %+v", h.events.snapshotModes())
		}
	}

	if err := h.controller.Cancel(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := h.backend.submissions(); len(got) != 0 {
		t.Fatalf("cancelled transcript was submitted: %v", got)
	}
}

func TestSessionControllerCloseWhileEndingDropsTranscript(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newControllerHarness(t, harnessOptions{
		heard: heard("book a flight"),
		cfg:   Config{StreamingGrace: 200 * time.Millisecond},
	})
	if err := h.controller.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ended := make(chan error, 1)
	go func() { ended <- h.controller.End(ctx) }()
	waitUntil(t, "session to start ending", h.ending)
	h.controller.Close()

	if err := <-ended; !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if mode := h.controller.Status().Mode; mode != domain.ModeIdle {
		t.Fatalf("expected idle after close, got %s", mode)
	}
	if got := h.backend.submissions(); len(got) != 0 {
		t.Fatalf("transcript committed after close: %v", got)
	}
}

func TestSessionControllerCancelledPrefetchNeverAppendsTurn(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "Too late.", release: make(chan struct{})}
	h := newControllerHarness(t, harnessOptions{
		heard:   heard("order pizza"),
		backend: backend,
		cfg:     Config{CommitDelay: 100 * time.Millisecond, PrefetchDelay: 5 * time.Millisecond},
	})
	h.speak(t)
	waitUntil(t, "prefetch", func() bool { return len(backend.submissions()) == 1 })

	if err := h.controller.Cancel(); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	waitUntil(t, "prefetch cancellation", func() bool { return backend.cancellations() == 1 })
	close(backend.release)

	time.Sleep(200 * time.Millisecond)
	if turns := h.controller.Turns(); len(turns) != 0 {
		t.Fatalf("cancelled prefetch appended turns: %+v", turns)
	}
	if appended := h.events.snapshotAppended(); len(appended) != 0 {
		t.Fatalf("cancelled prefetch emitted turns: %+v", appended)
	}
	h.recorder.mu.Lock()
	recorded := len(h.recorder.turns)
	h.recorder.mu.Unlock()
	if recorded != 0 {
		t.Fatalf("cancelled prefetch recorded %d turns", recorded)
	}
	if plays := h.player.plays(); len(plays) != 0 {
		t.Fatalf("cancelled prefetch was played: %v", plays)
	}
	if mode := h.controller.Status().Mode; mode != domain.ModeIdle {
		t.Fatalf("expected idle, got %s", mode)
	}
}

func TestSessionControllerWhitespaceTranscriptReturnsToIdle(t *testing.T) {
	t.Parallel()

	h := newControllerHarness(t, harnessOptions{heard: []domain.TranscriptEvent{
		{Kind: domain.TranscriptKindFinal, Text: "   \t "},
		{Kind: domain.TranscriptKindPartial, Text: "\n"},
	}})
	h.speak(t)

	if h.events.lastReason() != domain.ReasonNoTranscript {
		t.Fatalf("unexpected reason %s", h.events.lastReason())
	}
	if status := h.controller.Status(); status.Mode != domain.ModeIdle || status.Transcript != "" {
		t.Fatalf("unexpected status %+v", status)
	}
	time.Sleep(50 * time.Millisecond)
	if got := h.backend.submissions(); len(got) != 0 {
		t.Fatalf("whitespace was submitted: %v", got)
	}
	if len(h.controller.Turns()) != 0 || len(h.events.snapshotAppended()) != 0 {
		t.Fatalf("whitespace became a turn")
	}
	h.events.mu.Lock()
	ready := len(h.events.ready)
	h.events.mu.Unlock()
	if ready != 0 {
		t.Fatalf("whitespace reported as a ready transcript")
	}
}

func TestSessionControllerThinkingPhraseNeverFollowsReply(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{answer: "Done.", release: make(chan struct{})}
	synth := &fakeSynth{hold: make(chan struct{}), pass: "Done."}
	h := newControllerHarness(t, harnessOptions{
		heard:   heard("tidy my calendar"),
		backend: backend,
		synth:   synth,
	})
	h.speak(t)

	waitUntil(t, "thinking phrase synthesis", func() bool { return len(synth.synthesized()) > 0 })
	close(backend.release)
	h.waitForReason(t, domain.ReasonReplyDelivered)
	close(synth.hold)

	time.Sleep(50 * time.Millisecond)
	if plays := h.player.plays(); !slices.Equal(plays, []string{"audio:Done."}) {
		t.Fatalf("expected only the reply to play, got %v", plays)
	}
}
