package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskvoice/internal/domain"
)

var (
	errSendClosed    = errors.New("audio stream is already closed")
	errSessionClosed = errors.New("deepgram session closed")

	keepAliveFrame   = []byte(`{"type":"KeepAlive"}`)
	closeStreamFrame = []byte(`{"type":"CloseStream"}`)
)

// session is one live /listen websocket. Audio goes out through a single
// writer goroutine; events come back through a single reader.
type session struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	keepAlive time.Duration

	events chan domain.TranscriptEvent
	audio  chan []byte
	done   chan struct{}
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error

	sendMu     sync.RWMutex
	sendClosed bool
	closeSend  sync.Once
	closeConn  sync.Once
}

func newSession(ctx context.Context, conn *websocket.Conn, keepAlive time.Duration, logger *slog.Logger) *session {
	s := &session{
		conn:      conn,
		logger:    logger,
		keepAlive: keepAlive,
		events:    make(chan domain.TranscriptEvent, 64),
		audio:     make(chan []byte, 32),
		done:      make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s
}

func (s *session) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errSendClosed
	}

	select {
	case s.audio <- append([]byte(nil), chunk...):
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errSessionClosed
	}
}

// CloseSend asks Deepgram to flush the remaining results and close.
func (s *session) CloseSend() error {
	s.closeSend.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *session) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *session) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *session) Close() error {
	s.closeConn.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *session) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *session) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *session) writeLoop() {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, closeStreamFrame); err != nil {
					s.setErr(fmt.Errorf("close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("send audio: %w", err))
				return
			}
		case <-tick:
			if err := s.conn.WriteMessage(websocket.TextMessage, keepAliveFrame); err != nil {
				s.setErr(fmt.Errorf("send keepalive: %w", err))
				return
			}
		}
	}
}

func (s *session) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("read deepgram event: %w", err))
			return
		}

		var msg message
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Debug("ignoring undecodable deepgram frame", "error", err)
			continue
		}

		if strings.EqualFold(msg.Type, "Error") {
			s.setErr(errors.New(msg.errText()))
			return
		}
		if event, ok := msg.event(); ok {
			s.emit(event)
		}
	}
}

// emit never blocks the reader; a stalled consumer loses interim results
// rather than stalling the socket.
func (s *session) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	default:
		s.logger.Debug("dropping transcript event", "kind", event.Kind)
	}
}
