package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"taskvoice/internal/bootstrap"
	"taskvoice/internal/domain"
	"taskvoice/internal/kv"
	"taskvoice/internal/usecase"
)

const (
	eventMode       = "taskvoice:mode"
	eventPartial    = "taskvoice:partial"
	eventTranscript = "taskvoice:transcript"
	eventTurn       = "taskvoice:turn"
	eventTurnUpdate = "taskvoice:turn-updated"
	eventLock       = "taskvoice:lock"
	eventAPIError   = "taskvoice:api-error"
	eventError      = "taskvoice:error"
	eventUsage      = "taskvoice:usage"
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	stop   context.CancelFunc
	logger *slog.Logger

	services *bootstrap.Services
	bootErr  error
}

func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a, a.logger)
	if err != nil {
		a.bootErr = err
		a.logger.Error("startup failed", "error", err)
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services

	runCtx, stop := context.WithCancel(ctx)
	a.stop = stop
	go services.Run(runCtx)

	a.LockChanged(services.Gate.State())
	a.ModeChanged(domain.ModeIdle, domain.ReasonReady)
}

func (a *App) shutdown(context.Context) {
	if a.stop != nil {
		a.stop()
	}
	if a.services != nil {
		if err := a.services.Close(); err != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}
}

// StartTalking begins push-to-talk capture.
func (a *App) StartTalking() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Start(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.services.Controller.Status(), nil
}

// StopTalking ends capture and opens the commit window.
func (a *App) StopTalking() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.End(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.services.Controller.Status(), nil
}

// AbortTalking discards an in-progress capture.
func (a *App) AbortTalking() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Controller.Abort(); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		return err
	}
	return nil
}

// EditTranscript stops the commit countdown and returns the text to edit.
func (a *App) EditTranscript() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.services.Controller.EnterEdit()
}

// CancelMessage drops the pending or edited transcript.
func (a *App) CancelMessage() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.Cancel()
}

// SubmitEdit commits the edited text.
func (a *App) SubmitEdit(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.SubmitEdit(text)
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		status := domain.Status{Mode: domain.ModeIdle}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.services.Controller.Status()
}

// GetTurns returns the visible conversation.
func (a *App) GetTurns() []domain.Turn {
	if a.services == nil {
		return nil
	}
	return a.services.Controller.Turns()
}

func (a *App) ListThreads() ([]domain.Thread, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Conversations.List(a.ctx)
}

func (a *App) SelectThread(id string) (domain.Thread, error) {
	if err := a.requireReady(); err != nil {
		return domain.Thread{}, err
	}
	return a.services.Conversations.Select(a.ctx, id)
}

func (a *App) NewThread() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Conversations.New(a.ctx)
}

func (a *App) ClearThread() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Conversations.Clear(a.ctx)
}

func (a *App) DeleteThread(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Conversations.Delete(a.ctx, id)
}

// GetUsage returns the latest usage snapshot, or nil before any telemetry.
func (a *App) GetUsage() *domain.UsageSnapshot {
	if a.services == nil {
		return nil
	}
	snapshot, ok := a.services.Usage.Snapshot()
	if !ok {
		return nil
	}
	return &snapshot
}

func (a *App) GetLockoutEnabled() (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return kv.LockoutEnabled(a.ctx, a.services.KV, a.services.Config.Lockout.Enabled)
}

// SetLockoutEnabled stores the preference; it applies on next launch.
func (a *App) SetLockoutEnabled(enabled bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return kv.SetLockoutEnabled(a.ctx, a.services.KV, enabled)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"provider":         "Deepgram",
		"model":            cfg.Deepgram.Model,
		"language":         cfg.Deepgram.Language,
		"rulesFile":        cfg.Rules.Path,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"configFile":       cfg.File,
		"database":         cfg.Storage.DatabasePath,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// ModeChanged emits turn lifecycle updates to the frontend.
func (a *App) ModeChanged(mode domain.Mode, reason domain.ModeReason) {
	a.emit(eventMode, map[string]string{
		"mode":    string(mode),
		"reason":  string(reason),
		"message": modeReasonMessage(reason),
	})
}

func (a *App) PartialTranscript(text string) {
	a.emit(eventPartial, map[string]string{"text": text})
}

func (a *App) TranscriptReady(text string) {
	a.emit(eventTranscript, map[string]string{"text": text})
}

func (a *App) TurnAppended(turn domain.Turn) {
	a.emit(eventTurn, turn)
}

func (a *App) TurnUpdated(turn domain.Turn) {
	a.emit(eventTurnUpdate, turn)
}

func (a *App) LockChanged(state domain.LockState) {
	a.emit(eventLock, state)
}

func (a *App) APIErrorChanged(active bool) {
	a.emit(eventAPIError, map[string]bool{"active": active})
}

func (a *App) UsageChanged(snapshot domain.UsageSnapshot) {
	a.emit(eventUsage, snapshot)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(name string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

func modeReasonMessage(reason domain.ModeReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Hold to talk"
	case domain.ReasonListening:
		return "Listening..."
	case domain.ReasonCaptureDiscarded:
		return "Recording discarded"
	case domain.ReasonCaptureFailed:
		return "Microphone or transcription failed"
	case domain.ReasonNoTranscript:
		return "Didn't catch that"
	case domain.ReasonAwaitingCommit:
		return "Sending shortly. Tap to edit"
	case domain.ReasonEditing:
		return "Editing message"
	case domain.ReasonMessageCancelled:
		return "Message cancelled"
	case domain.ReasonThinking:
		return "Thinking..."
	case domain.ReasonReplyDelivered:
		return "Reply delivered"
	case domain.ReasonReplyUnavailable:
		return "No reply available"
	case domain.ReasonUnlockAttempted:
		return "Access denied"
	case domain.ReasonUnlocked:
		return "Access granted"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCapture:
		return "Capture failed"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeStream:
		return "Audio streaming issue"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	case domain.ErrorCodeBackend:
		return "Assistant unavailable"
	case domain.ErrorCodeSynthesis:
		return "Voice unavailable"
	case domain.ErrorCodePlayback:
		return "Playback failed"
	case domain.ErrorCodeStorage:
		return "History unavailable"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
