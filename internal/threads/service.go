package threads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"taskvoice/internal/domain"
	"taskvoice/internal/kv"
	"taskvoice/internal/ports"
	"taskvoice/internal/store"
)

const (
	DefaultTitle  = "New Conversation"
	titleMaxRunes = 50
	currentKey    = "threads/current"
)

// Service manages conversation threads and the pointer to the current one.
// It implements ports.TurnRecorder: recording into no thread creates one.
type Service struct {
	store  ports.ThreadStore
	kv     ports.KVStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu sync.Mutex
}

func NewService(threadStore ports.ThreadStore, kvStore ports.KVStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  threadStore,
		kv:     kvStore,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Title derives a thread title from the first user message.
func Title(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(text) <= titleMaxRunes {
		return text
	}
	return string([]rune(text)[:titleMaxRunes]) + "..."
}

// CurrentID returns the current thread ID, or "" when none is selected.
func (s *Service) CurrentID(ctx context.Context) (string, error) {
	raw, err := s.kv.Get(ctx, currentKey)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read current thread: %w", err)
	}
	return string(raw), nil
}

// Current returns the current thread with its turns. ok is false when no
// thread is selected or the selected one no longer exists.
func (s *Service) Current(ctx context.Context) (domain.Thread, bool, error) {
	id, err := s.CurrentID(ctx)
	if err != nil || id == "" {
		return domain.Thread{}, false, err
	}
	thread, err := s.store.GetThread(ctx, id)
	if errors.Is(err, store.ErrThreadNotFound) {
		return domain.Thread{}, false, nil
	}
	if err != nil {
		return domain.Thread{}, false, err
	}
	return thread, true, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Thread, error) {
	return s.store.ListThreads(ctx)
}

// Get returns a thread with its turns without selecting it.
func (s *Service) Get(ctx context.Context, id string) (domain.Thread, error) {
	return s.store.GetThread(ctx, id)
}

// Create starts a new empty thread and makes it current.
func (s *Service) Create(ctx context.Context) (domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(ctx)
}

// Load makes an existing thread current and returns it.
func (s *Service) Load(ctx context.Context, id string) (domain.Thread, error) {
	thread, err := s.store.GetThread(ctx, id)
	if err != nil {
		return domain.Thread{}, err
	}
	if err := s.setCurrent(ctx, id); err != nil {
		return domain.Thread{}, err
	}
	return thread, nil
}

// Delete removes a thread. Deleting the current thread deselects it.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteThread(ctx, id); err != nil {
		return err
	}
	current, err := s.CurrentID(ctx)
	if err != nil {
		return err
	}
	if current == id {
		return s.setCurrent(ctx, "")
	}
	return nil
}

// ClearCurrent removes the current thread's turns but keeps the thread.
func (s *Service) ClearCurrent(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.CurrentID(ctx)
	if err != nil || id == "" {
		return err
	}
	if err := s.store.ClearTurns(ctx, id); err != nil {
		return err
	}
	thread, err := s.store.GetThread(ctx, id)
	if err != nil {
		return err
	}
	thread.UpdatedAt = s.now()
	return s.store.UpdateThread(ctx, thread)
}

// StartFresh deselects the current thread; the next recorded turn opens a
// new one.
func (s *Service) StartFresh(ctx context.Context) error {
	return s.setCurrent(ctx, "")
}

// Record appends turn to the current thread, creating one when needed. The
// first user turn titles a thread that still has the default title.
func (s *Service) Record(ctx context.Context, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if thread, err = s.createLocked(ctx); err != nil {
			return err
		}
	}

	if err := s.store.AppendTurn(ctx, thread.ID, turn); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	if thread.Title == DefaultTitle && turn.Role == domain.RoleUser {
		thread.Title = Title(turn.Text)
		thread.UpdatedAt = maxTime(turn.Timestamp, s.now())
		if err := s.store.UpdateThread(ctx, thread); err != nil {
			return fmt.Errorf("title thread: %w", err)
		}
		s.logger.Debug("thread titled", "thread_id", thread.ID, "title", thread.Title)
	}
	return nil
}

func (s *Service) UpdateStatus(ctx context.Context, turnID string, status domain.TurnStatus) error {
	return s.store.SetTurnStatus(ctx, turnID, status)
}

func (s *Service) createLocked(ctx context.Context) (domain.Thread, error) {
	now := s.now()
	thread := domain.Thread{ID: s.newID(), Title: DefaultTitle, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreateThread(ctx, thread); err != nil {
		return domain.Thread{}, err
	}
	if err := s.setCurrent(ctx, thread.ID); err != nil {
		return domain.Thread{}, err
	}
	s.logger.Info("thread created", "thread_id", thread.ID)
	return thread, nil
}

func (s *Service) setCurrent(ctx context.Context, id string) error {
	if id == "" {
		return s.kv.Delete(ctx, currentKey)
	}
	if err := s.kv.Set(ctx, currentKey, []byte(id)); err != nil {
		return fmt.Errorf("save current thread: %w", err)
	}
	return nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
