package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"taskvoice/internal/ports"
)

// FFMPEGCapture streams microphone PCM audio using ffmpeg.
type FFMPEGCapture struct {
	command string
	// startupGrace is how long ffmpeg must survive before the device is
	// considered open.
	startupGrace time.Duration
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command, startupGrace: 250 * time.Millisecond}
}

func captureArgs(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-fflags", "nobuffer",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create ffmpeg stdout pipe: %w", err)
	}

	proc, err := startProcess(cmd)
	if err != nil {
		return nil, err
	}

	if exited, exitErr := proc.exitedWithin(c.startupGrace); exited {
		if exitErr != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w", exitErr)
		}
		return nil, errors.New("ffmpeg exited before capture started")
	}

	return &captureSession{stdout: stdout, proc: proc}, nil
}

type captureSession struct {
	stdout io.ReadCloser
	proc   *process
}

func (s *captureSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *captureSession) Close() error {
	return s.Stop()
}

func (s *captureSession) Stop() error {
	err := s.proc.stop(1200 * time.Millisecond)
	if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) && err == nil {
		err = closeErr
	}
	if err != nil {
		if detail := s.proc.stderrText(); detail != "" {
			return fmt.Errorf("%w: %s", err, detail)
		}
	}
	return err
}
