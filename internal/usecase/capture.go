package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"taskvoice/internal/domain"
	"taskvoice/internal/ports"
)

// speechCapture pairs microphone capture with a streaming transcription
// provider for one push-to-talk press.
type speechCapture struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	events   ports.EventSink
	cfg      Config
}

type captureSession struct {
	cancel     context.CancelFunc
	audio      ports.AudioSession
	stream     ports.StreamingSession
	aggregator *transcriptAggregator
	events     ports.EventSink
	grace      time.Duration
	eventsDone chan struct{}
	audioDone  chan struct{}
}

func (c speechCapture) start(ctx context.Context) (*captureSession, error) {
	sessionCtx, cancel := context.WithCancel(ctx)
	stream, err := c.provider.StartStreaming(sessionCtx, c.cfg.Streaming)
	if err != nil {
		cancel()
		return nil, err
	}

	audio, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, err
	}

	session := &captureSession{
		cancel:     cancel,
		audio:      audio,
		stream:     stream,
		aggregator: newTranscriptAggregator(),
		events:     c.events,
		grace:      c.cfg.StreamingGrace,
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}

	go session.consumeEvents()
	go session.pumpAudio(c.cfg.ChunkSize)
	return session, nil
}

// finish stops the microphone, lets the provider flush its last results and
// returns everything that was heard.
func (s *captureSession) finish(ctx context.Context) (domain.Transcript, error) {
	defer s.cancel()

	if err := s.audio.Stop(); err != nil {
		s.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}

	if s.grace > 0 {
		timer := time.NewTimer(s.grace)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	_ = s.stream.CloseSend()
	streamErr := waitForStream(s.stream, 4*time.Second)
	<-s.eventsDone
	<-s.audioDone

	heard := s.aggregator.Transcript()
	if heard.Final == "" && heard.Interim == "" {
		if streamErr != nil {
			return domain.Transcript{}, streamErr
		}
		return domain.Transcript{}, nil
	}
	return heard, nil
}

func (s *captureSession) discard() {
	s.cancel()
	_ = s.audio.Stop()
	_ = s.stream.Close()
	<-s.eventsDone
	<-s.audioDone
}

func (s *captureSession) interim() string {
	return s.aggregator.Transcript().Interim
}

func (s *captureSession) consumeEvents() {
	defer close(s.eventsDone)

	for event := range s.stream.Events() {
		if s.aggregator.Add(event) && event.Kind == domain.TranscriptKindPartial {
			s.events.PartialTranscript(s.aggregator.Transcript().Interim)
		}
	}
}

func (s *captureSession) pumpAudio(chunkSize int) {
	defer close(s.audioDone)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			if sendErr := s.stream.SendAudio(buf[:n]); sendErr != nil {
				s.events.SessionError(domain.ErrorCodeStream, fmt.Sprintf("failed to stream audio: %v", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.events.SessionError(domain.ErrorCodeStream, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
	}
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
