package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskvoice/internal/domain"
	"taskvoice/internal/phrases"
	"taskvoice/internal/ports"
	"taskvoice/internal/transcript"
)

var (
	ErrNoActiveSession = errors.New("no active listening session")
	ErrSessionBusy     = errors.New("a turn is already in progress")
	ErrInputBlocked    = errors.New("input is blocked by the lockout gate")
	ErrNotPending      = errors.New("no transcript is awaiting commit")
	ErrNotEditing      = errors.New("not in edit mode")
	ErrNothingToCancel = errors.New("nothing to cancel")

	errNoPlayer = errors.New("no audio player configured")
)

// Config controls capture and turn timing.
type Config struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration

	// CommitDelay is the debounce window between the end of speech and the
	// automatic commit.
	CommitDelay time.Duration
	// PrefetchDelay is how long after the end of speech the reply is
	// fetched speculatively.
	PrefetchDelay time.Duration
	// ErrorIndicator is how long the transient API error flag stays raised.
	ErrorIndicator time.Duration
}

// Dependencies are the collaborators of a SessionController. Recorder and
// Logger are optional.
type Dependencies struct {
	Audio       ports.AudioCapture
	Provider    ports.TranscriptionProvider
	Rules       ports.RulesEngine
	Backend     ports.JobBackend
	Synthesizer ports.Synthesizer
	Player      ports.Player
	Speaker     ports.LocalSpeaker
	Gate        ports.LockGate
	Recorder    ports.TurnRecorder
	Events      ports.EventSink
	Logger      *slog.Logger
}

// SessionController owns the turn lifecycle:
// idle → listening → pending → (thinking → idle) | editing → idle.
type SessionController struct {
	capture  speechCapture
	pipeline replyPipeline
	rules    ports.RulesEngine
	player   ports.Player
	speaker  ports.LocalSpeaker
	synth    ports.Synthesizer
	gate     ports.LockGate
	recorder ports.TurnRecorder
	events   ports.EventSink
	logger   *slog.Logger
	cfg      Config
	newID    func() string
	now      func() time.Time

	lifetime context.Context
	shutdown context.CancelFunc

	mu          sync.Mutex
	mode        domain.Mode
	session     *captureSession
	ending      *captureSession
	held        bool
	transcript  string
	editText    string
	pending     *turnToken
	active      *turnToken
	turns       []domain.Turn
	apiError    bool
	apiErrorGen uint64
	apiTimer    *time.Timer
}

// turnToken is the cancellation handle for one turn between the end of
// speech and the reply.
type turnToken struct {
	text          string
	ctx           context.Context
	cancel        context.CancelFunc
	commitTimer   *time.Timer
	prefetchTimer *time.Timer
	fetch         *replyFetch
}

func (t *turnToken) stop() {
	if t.commitTimer != nil {
		t.commitTimer.Stop()
	}
	if t.prefetchTimer != nil {
		t.prefetchTimer.Stop()
	}
	t.cancel()
}

func NewSessionController(deps Dependencies, cfg Config) *SessionController {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.CommitDelay <= 0 {
		cfg.CommitDelay = 1300 * time.Millisecond
	}
	if cfg.PrefetchDelay <= 0 {
		cfg.PrefetchDelay = 500 * time.Millisecond
	}
	if cfg.ErrorIndicator <= 0 {
		cfg.ErrorIndicator = 3 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lifetime, shutdown := context.WithCancel(context.Background())
	return &SessionController{
		capture: speechCapture{
			audio:    deps.Audio,
			provider: deps.Provider,
			events:   deps.Events,
			cfg:      cfg,
		},
		pipeline: replyPipeline{
			backend: deps.Backend,
			synth:   deps.Synthesizer,
			newID:   uuid.NewString,
			logger:  logger,
		},
		rules:    deps.Rules,
		player:   deps.Player,
		speaker:  deps.Speaker,
		synth:    deps.Synthesizer,
		gate:     deps.Gate,
		recorder: deps.Recorder,
		events:   deps.Events,
		logger:   logger,
		cfg:      cfg,
		newID:    uuid.NewString,
		now:      time.Now,
		lifetime: lifetime,
		shutdown: shutdown,
		mode:     domain.ModeIdle,
	}
}

// Start begins listening. It is rejected while the gate blocks input or while
// another turn is in progress.
func (c *SessionController) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.gate.Blocked() {
		c.mu.Unlock()
		return ErrInputBlocked
	}
	if c.mode != domain.ModeIdle || c.active != nil || c.held {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	c.mode = domain.ModeListening
	c.transcript = ""
	c.editText = ""
	c.mu.Unlock()

	session, err := c.capture.start(c.lifetime)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeCapture, err.Error())
		c.setMode(domain.ModeIdle, domain.ReasonCaptureFailed)
		return err
	}

	c.mu.Lock()
	if c.mode != domain.ModeListening || c.session != nil {
		// Aborted while the capture was starting.
		c.mu.Unlock()
		session.discard()
		return ErrNoActiveSession
	}
	c.session = session
	c.mu.Unlock()

	c.events.ModeChanged(domain.ModeListening, domain.ReasonListening)
	return nil
}

// End stops listening and opens the commit window for what was heard. The
// controller stays in listening until the provider has flushed; Abort and
// Start are refused meanwhile.
func (c *SessionController) End(ctx context.Context) error {
	c.mu.Lock()
	if c.gate.Blocked() {
		c.mu.Unlock()
		return ErrInputBlocked
	}
	session := c.session
	if c.mode != domain.ModeListening || session == nil {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.session = nil
	c.ending = session
	c.mu.Unlock()

	heard, err := session.finish(ctx)
	var finalText string
	if err == nil {
		finalText = c.finalizeTranscript(heard)
	}

	c.mu.Lock()
	if c.ending != session {
		// Closed while the provider was flushing.
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.ending = nil
	switch {
	case err != nil:
		c.mode = domain.ModeIdle
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeCapture, err.Error())
		c.events.ModeChanged(domain.ModeIdle, domain.ReasonCaptureFailed)
		return err
	case finalText == "":
		c.mode = domain.ModeIdle
		c.mu.Unlock()
		c.events.ModeChanged(domain.ModeIdle, domain.ReasonNoTranscript)
		return nil
	}
	c.armPendingLocked(finalText)
	c.mu.Unlock()

	c.events.TranscriptReady(finalText)
	c.events.ModeChanged(domain.ModePending, domain.ReasonAwaitingCommit)
	return nil
}

// Abort discards a listening session without committing anything. A session
// that is already ending cannot be aborted; cancel its pending turn instead.
func (c *SessionController) Abort() error {
	c.mu.Lock()
	if c.mode != domain.ModeListening {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	if c.ending != nil {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	session := c.session
	c.session = nil
	c.mode = domain.ModeIdle
	c.mu.Unlock()

	if session != nil {
		session.discard()
	}
	c.events.ModeChanged(domain.ModeIdle, domain.ReasonCaptureDiscarded)
	return nil
}

// EnterEdit stops the pending commit and returns the text to edit.
func (c *SessionController) EnterEdit() (string, error) {
	c.mu.Lock()
	if c.gate.Blocked() {
		c.mu.Unlock()
		return "", ErrInputBlocked
	}
	if c.mode != domain.ModePending || c.pending == nil {
		c.mu.Unlock()
		return "", ErrNotPending
	}
	tok := c.pending
	c.pending = nil
	tok.stop()
	c.editText = tok.text
	c.mode = domain.ModeEditing
	text := c.editText
	c.mu.Unlock()

	c.events.ModeChanged(domain.ModeEditing, domain.ReasonEditing)
	return text, nil
}

// Cancel drops a pending or edited transcript.
func (c *SessionController) Cancel() error {
	c.mu.Lock()
	switch c.mode {
	case domain.ModePending:
		if c.pending != nil {
			c.pending.stop()
			c.pending = nil
		}
	case domain.ModeEditing:
	default:
		c.mu.Unlock()
		return ErrNothingToCancel
	}
	c.transcript = ""
	c.editText = ""
	c.mode = domain.ModeIdle
	c.mu.Unlock()

	c.events.ModeChanged(domain.ModeIdle, domain.ReasonMessageCancelled)
	return nil
}

// SubmitEdit commits edited text. The reply is awaited in the background.
func (c *SessionController) SubmitEdit(text string) error {
	c.mu.Lock()
	if c.gate.Blocked() {
		c.mu.Unlock()
		return ErrInputBlocked
	}
	if c.mode != domain.ModeEditing || c.active != nil {
		c.mu.Unlock()
		return ErrNotEditing
	}

	finalText := transcript.AddPunctuation(text)
	if finalText == "" {
		c.editText = ""
		c.mode = domain.ModeIdle
		c.mu.Unlock()
		c.events.ModeChanged(domain.ModeIdle, domain.ReasonNoTranscript)
		return nil
	}

	tok := c.newTokenLocked(finalText)
	c.active = tok
	c.mu.Unlock()

	go c.commit(tok)
	return nil
}

// Status returns the current controller snapshot.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		Mode:       c.mode,
		Active:     c.mode != domain.ModeIdle,
		Transcript: c.transcript,
		EditText:   c.editText,
		APIError:   c.apiError,
		Lock:       c.gate.State(),
	}
	if c.session != nil {
		status.Interim = c.session.interim()
	}
	if c.mode == domain.ModePending && transcript.IsIncomplete(c.transcript) {
		status.Message = "Transcript looks incomplete"
	}
	return status
}

// Turns returns the conversation in insertion order.
func (c *SessionController) Turns() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// LoadTurns replaces the in-memory conversation, e.g. after switching thread.
func (c *SessionController) LoadTurns(turns []domain.Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append([]domain.Turn(nil), turns...)
}

// ClearTurns empties the in-memory conversation.
func (c *SessionController) ClearTurns() {
	c.LoadTurns(nil)
}

// Close cancels every outstanding timer, capture and fetch.
func (c *SessionController) Close() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.ending = nil
	if c.pending != nil {
		c.pending.stop()
		c.pending = nil
	}
	if c.active != nil {
		c.active.stop()
		c.active = nil
	}
	if c.apiTimer != nil {
		c.apiTimer.Stop()
	}
	c.mode = domain.ModeIdle
	c.mu.Unlock()

	c.shutdown()
	if session != nil {
		session.discard()
	}
}

// finalizeTranscript turns what was heard into commit text. Blank speech
// yields "".
func (c *SessionController) finalizeTranscript(heard domain.Transcript) string {
	full := transcript.Normalize(heard.Final + " " + heard.Interim)
	if full == "" {
		return ""
	}
	return transcript.AddPunctuation(c.applyRules(full))
}

func (c *SessionController) armPendingLocked(text string) {
	tok := c.newTokenLocked(text)
	c.pending = tok
	c.transcript = text
	c.mode = domain.ModePending
	tok.commitTimer = time.AfterFunc(c.cfg.CommitDelay, func() { c.commitPending(tok) })
	if !c.gate.Locked() {
		tok.prefetchTimer = time.AfterFunc(c.cfg.PrefetchDelay, func() { c.prefetch(tok) })
	}
}

// holdIdle keeps the controller idle until release is called: Start is
// refused while held. It fails with ErrSessionBusy mid-turn.
func (c *SessionController) holdIdle() (release func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != domain.ModeIdle || c.active != nil || c.held {
		return nil, ErrSessionBusy
	}
	c.held = true
	return func() {
		c.mu.Lock()
		c.held = false
		c.mu.Unlock()
	}, nil
}

func (c *SessionController) applyRules(text string) string {
	if c.rules == nil {
		return text
	}
	out, err := c.rules.Apply(text)
	if err != nil {
		c.events.SessionError(domain.ErrorCodeRules, err.Error())
		return text
	}
	return out
}

func (c *SessionController) newTokenLocked(text string) *turnToken {
	ctx, cancel := context.WithCancel(c.lifetime)
	return &turnToken{text: text, ctx: ctx, cancel: cancel}
}

func (c *SessionController) prefetch(tok *turnToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != tok {
		return
	}
	c.ensureFetchLocked(tok)
}

func (c *SessionController) ensureFetchLocked(tok *turnToken) *replyFetch {
	if tok.fetch == nil {
		tok.fetch = c.pipeline.start(tok.ctx, tok.text)
	}
	return tok.fetch
}

func (c *SessionController) commitPending(tok *turnToken) {
	c.mu.Lock()
	if c.pending != tok {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.active = tok
	c.mu.Unlock()

	c.commit(tok)
}

func (c *SessionController) commit(tok *turnToken) {
	if c.gate.Locked() {
		c.commitUnlockAttempt(tok)
		return
	}

	userTurn := domain.Turn{
		ID:        c.newID(),
		Text:      tok.text,
		Timestamp: c.now(),
		Role:      domain.RoleUser,
		Status:    domain.TurnStatusPending,
	}

	c.mu.Lock()
	if c.active != tok {
		c.mu.Unlock()
		return
	}
	c.turns = append(c.turns, userTurn)
	c.mode = domain.ModeThinking
	c.transcript = ""
	c.editText = ""
	fetch := c.ensureFetchLocked(tok)
	c.mu.Unlock()

	c.events.TurnAppended(userTurn)
	c.events.ModeChanged(domain.ModeThinking, domain.ReasonThinking)
	c.record(userTurn)

	stopThinking := c.startThinking(tok.ctx, fetch)
	reply, err := fetch.wait(tok.ctx)
	stopThinking()
	if err != nil {
		return
	}

	c.mu.Lock()
	if c.active != tok || tok.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	var confirmed *domain.Turn
	if reply.Accepted {
		for i := range c.turns {
			if c.turns[i].ID == userTurn.ID {
				c.turns[i].Status = domain.TurnStatusConfirmed
				turn := c.turns[i]
				confirmed = &turn
				break
			}
		}
	}
	var assistant *domain.Turn
	if strings.TrimSpace(reply.Text) != "" {
		turn := domain.Turn{
			ID:        c.newID(),
			Text:      reply.Text,
			Timestamp: c.now(),
			Role:      domain.RoleAssistant,
		}
		c.turns = append(c.turns, turn)
		assistant = &turn
	}
	c.mu.Unlock()

	if confirmed != nil {
		c.events.TurnUpdated(*confirmed)
		c.recordStatus(confirmed.ID, domain.TurnStatusConfirmed)
	}
	if assistant != nil {
		c.events.TurnAppended(*assistant)
		c.record(*assistant)
	}

	c.deliver(tok.ctx, reply)

	reason := domain.ReasonReplyDelivered
	if assistant == nil {
		reason = domain.ReasonReplyUnavailable
	}
	c.finishTurn(tok, reason)
}

// startThinking speaks a filler phrase while the reply is outstanding. The
// returned func cancels the phrase and waits for it to let go of the player,
// so it can never start over the reply.
func (c *SessionController) startThinking(ctx context.Context, fetch *replyFetch) func() {
	if fetch.ready() {
		return func() {}
	}
	thinkCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.speakRemote(thinkCtx, phrases.Thinking())
	}()
	return func() {
		cancel()
		<-done
	}
}

func (c *SessionController) commitUnlockAttempt(tok *turnToken) {
	unlocked := c.gate.Attempt(tok.text)

	c.mu.Lock()
	if c.active != tok {
		c.mu.Unlock()
		return
	}
	c.transcript = ""
	c.editText = ""
	c.mu.Unlock()

	reason := domain.ReasonUnlockAttempted
	if unlocked {
		reason = domain.ReasonUnlocked
		go c.speakRemote(c.lifetime, phrases.AccessGranted)
	}
	c.finishTurn(tok, reason)
}

func (c *SessionController) finishTurn(tok *turnToken, reason domain.ModeReason) {
	c.mu.Lock()
	if c.active != tok {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.mode = domain.ModeIdle
	c.mu.Unlock()

	tok.cancel()
	c.events.ModeChanged(domain.ModeIdle, reason)
}

func (c *SessionController) setMode(mode domain.Mode, reason domain.ModeReason) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	c.events.ModeChanged(mode, reason)
}

func (c *SessionController) record(turn domain.Turn) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(c.lifetime, turn); err != nil {
		c.logger.Warn("failed to record turn", "turn_id", turn.ID, "error", err)
		c.events.SessionError(domain.ErrorCodeStorage, err.Error())
	}
}

func (c *SessionController) recordStatus(turnID string, status domain.TurnStatus) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.UpdateStatus(c.lifetime, turnID, status); err != nil {
		c.logger.Warn("failed to update turn status", "turn_id", turnID, "error", err)
		c.events.SessionError(domain.ErrorCodeStorage, err.Error())
	}
}
