package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var errNothingToSay = errors.New("nothing to say")

// FFPlayPlayer plays encoded audio (MP3 from the synthesizer) through ffplay
// reading stdin. Play returns once ffplay is running.
type FFPlayPlayer struct {
	command string
	args    []string
	out     channel
}

func NewFFPlayPlayer(command string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{
		command: command,
		args:    []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-"},
	}
}

// Play starts playback, interrupting anything already playing. Playback
// outlives ctx once started.
func (p *FFPlayPlayer) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return errors.New("no audio to play")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(p.command, p.args...)
	cmd.Stdin = bytes.NewReader(audio)
	proc, err := startProcess(cmd)
	if err != nil {
		return fmt.Errorf("ffplay: %w", err)
	}
	if exited, exitErr := proc.exitedWithin(20 * time.Millisecond); exited && exitErr != nil {
		return fmt.Errorf("ffplay failed: %w", exitErr)
	}
	p.out.replace(proc)
	return nil
}

func (p *FFPlayPlayer) Stop() error {
	return p.out.stop()
}

// CommandSpeaker is the on-device voice: a speech command such as espeak-ng
// taking the text as its last argument.
type CommandSpeaker struct {
	command string
	args    []string
	out     channel
}

func NewCommandSpeaker(command string, args ...string) *CommandSpeaker {
	if command == "" {
		command = "espeak-ng"
	}
	return &CommandSpeaker{command: command, args: args}
}

// Speak starts speaking text and returns without waiting for it to finish.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errNothingToSay
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args := append(append([]string(nil), s.args...), "--", text)
	proc, err := startProcess(exec.Command(s.command, args...))
	if err != nil {
		return fmt.Errorf("speech command: %w", err)
	}
	s.out.replace(proc)
	return nil
}

func (s *CommandSpeaker) Stop() error {
	return s.out.stop()
}
