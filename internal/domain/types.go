package domain

import "time"

// Mode models the push-to-talk turn lifecycle.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeListening Mode = "listening"
	ModePending   Mode = "pending"
	ModeThinking  Mode = "thinking"
	ModeEditing   Mode = "editing"
)

// ModeReason provides a structured reason for mode transitions.
type ModeReason string

const (
	ReasonReady            ModeReason = "ready"
	ReasonListening        ModeReason = "listening"
	ReasonCaptureDiscarded ModeReason = "capture_discarded"
	ReasonCaptureFailed    ModeReason = "capture_failed"
	ReasonNoTranscript     ModeReason = "no_transcript"
	ReasonAwaitingCommit   ModeReason = "awaiting_commit"
	ReasonEditing          ModeReason = "editing"
	ReasonMessageCancelled ModeReason = "message_cancelled"
	ReasonThinking         ModeReason = "thinking"
	ReasonReplyDelivered   ModeReason = "reply_delivered"
	ReasonReplyUnavailable ModeReason = "reply_unavailable"
	ReasonUnlockAttempted  ModeReason = "unlock_attempted"
	ReasonUnlocked         ModeReason = "unlocked"
)

// ErrorCode identifies non-fatal backend errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup   ErrorCode = "startup"
	ErrorCodeCapture   ErrorCode = "capture"
	ErrorCodeAudioStop ErrorCode = "audio_stop"
	ErrorCodeStream    ErrorCode = "audio_stream"
	ErrorCodeRules     ErrorCode = "rules"
	ErrorCodeBackend   ErrorCode = "backend"
	ErrorCodeSynthesis ErrorCode = "synthesis"
	ErrorCodePlayback  ErrorCode = "playback"
	ErrorCodeStorage   ErrorCode = "storage"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// Transcript is what a finished capture session heard.
type Transcript struct {
	Final   string `json:"final"`
	Interim string `json:"interim"`
}

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnStatus tracks backend acceptance of a user turn.
type TurnStatus string

const (
	TurnStatusNone      TurnStatus = ""
	TurnStatusPending   TurnStatus = "pending"
	TurnStatusConfirmed TurnStatus = "confirmed"
)

// Turn is one user or assistant message in a conversation.
type Turn struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Timestamp time.Time  `json:"timestamp"`
	Role      Role       `json:"role"`
	Status    TurnStatus `json:"status,omitempty"`
}

// Thread is a persisted conversation.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Turns     []Turn    `json:"turns,omitempty"`
}

// LockStatus is the sub-state of the unlock gate.
type LockStatus string

const (
	LockStatusIdle    LockStatus = "idle"
	LockStatusLevel1  LockStatus = "level1"
	LockStatusLevel2  LockStatus = "level2"
	LockStatusLockout LockStatus = "lockout"
)

// LockState summarizes the gate for the UI.
type LockState struct {
	Enabled   bool       `json:"enabled"`
	Locked    bool       `json:"locked"`
	Status    LockStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	Countdown int        `json:"countdown"`
}

// Blocked reports whether the gate currently rejects all input.
func (s LockState) Blocked() bool {
	return s.Status != LockStatusIdle
}

// JobState is the lifecycle of a submitted backend job.
type JobState string

const (
	JobStateUnknown JobState = ""
	JobStateWorking JobState = "working"
	JobStateDone    JobState = "done"
)

// JobStatus is one poll result for a submitted job.
type JobStatus struct {
	JobID        string   `json:"jobId"`
	State        JobState `json:"state"`
	ResponseText string   `json:"responseText"`
}

// Reply is the outcome of fetching and synthesizing a backend answer.
type Reply struct {
	Text     string `json:"text"`
	Audio    []byte `json:"-"`
	Accepted bool   `json:"accepted"`
	Err      error  `json:"-"`
	SynthErr error  `json:"-"`
}

// HealthStatus classifies usage consumption.
type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"
	HealthWarning HealthStatus = "warning"
	HealthDanger  HealthStatus = "danger"
)

// UsagePoint is one telemetry sample.
type UsagePoint struct {
	Percentage float64   `json:"percentage"`
	Timestamp  time.Time `json:"timestamp"`
}

// UsageSnapshot is the latest backend quota telemetry.
type UsageSnapshot struct {
	Percentage float64      `json:"percentage"`
	RefreshAt  *time.Time   `json:"refreshAt,omitempty"`
	History    []UsagePoint `json:"history"`
	Health     HealthStatus `json:"health"`
	FetchedAt  time.Time    `json:"fetchedAt"`
}

// Status summarizes the current runtime status.
type Status struct {
	Mode       Mode      `json:"mode"`
	Active     bool      `json:"active"`
	Transcript string    `json:"transcript,omitempty"`
	Interim    string    `json:"interim,omitempty"`
	EditText   string    `json:"editText,omitempty"`
	APIError   bool      `json:"apiError"`
	Lock       LockState `json:"lock"`
	Message    string    `json:"message,omitempty"`
}
